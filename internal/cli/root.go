// Package cli implements the seqguard command line interface.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/seqguard/seqguard/internal/config"
	"github.com/seqguard/seqguard/internal/logger"
	"github.com/seqguard/seqguard/internal/rule"
	"github.com/seqguard/seqguard/rules"
)

// Version information set via ldflags
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var (
	verbose    bool
	configFile string
	rulesDir   string
)

var rootCmd = &cobra.Command{
	Use:   "seqguard",
	Short: "Runtime detector for unsafe agent action sequences",
	Long: `Seqguard watches streams of agent actions and detects unsafe
behavioral sequences: read-then-exfiltrate chains, path traversal,
role violations and suspicious action bursts.

Rules are declarative YAML. A builtin pack ships with the binary;
point --rules at a directory to load your own alongside it.

Configure defaults in ~/.seqguard/config.yaml.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("seqguard %s\n", Version)
		fmt.Printf("  commit: %s\n", Commit)
		fmt.Printf("  built:  %s\n", Date)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Override config file path")
	rootCmd.PersistentFlags().StringVarP(&rulesDir, "rules", "r", "", "Override rules directory")

	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig resolves the effective configuration, with command line
// flags taking precedence over config files.
func loadConfig() (*config.Config, error) {
	loader, err := config.NewLoader(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to create config loader: %w", err)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	if rulesDir != "" {
		cfg.Settings.RulesDir = rulesDir
	}
	if verbose {
		cfg.Settings.LogLevel = "debug"
	}
	return cfg, nil
}

// loadRules builds the rule set: the embedded builtin pack (unless
// disabled) plus the configured rules directory.
func loadRules(cfg *config.Config) (*rule.Loader, error) {
	loader := rule.NewLoader()
	if !cfg.Settings.DisableBuiltin {
		if err := loader.LoadFS(rules.FS()); err != nil {
			return nil, fmt.Errorf("loading builtin rules: %w", err)
		}
	}
	if cfg.Settings.RulesDir != "" {
		// Invalid files are skipped with a warning; the valid remainder
		// still loads.
		if err := loader.LoadDir(cfg.Settings.RulesDir); err != nil {
			logger.Warn().Err(err).Msg("Some rule files failed validation")
		}
	}
	return loader, nil
}

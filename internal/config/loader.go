package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	globalConfigDir = ".seqguard"
	configFileName  = "config.yaml"
)

// Loader resolves and merges configuration sources.
type Loader struct {
	globalPath   string
	explicitPath string
}

// NewLoader creates a loader. explicitPath may be empty, in which case
// only the global config (if present) overrides the defaults.
func NewLoader(explicitPath string) (*Loader, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	return &Loader{
		globalPath:   filepath.Join(homeDir, globalConfigDir, configFileName),
		explicitPath: explicitPath,
	}, nil
}

// Load merges configuration from all sources, later sources winning.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	globalCfg, err := loadFile(l.globalPath)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load global config: %w", err)
	}
	if globalCfg != nil {
		cfg = merge(cfg, globalCfg)
	}

	if l.explicitPath != "" {
		fileCfg, err := loadFile(l.explicitPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config %s: %w", l.explicitPath, err)
		}
		cfg = merge(cfg, fileCfg)
	}

	return cfg, nil
}

// GlobalConfigPath returns the path to the global config file.
func (l *Loader) GlobalConfigPath() string {
	return l.globalPath
}

func loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return &cfg, nil
}

// merge layers override on top of base, field by field, where zero
// values in the override mean "keep the base value". Booleans cannot
// distinguish unset from false, so the metrics and storage toggles are
// taken from the override only when a sibling field is set.
func merge(base, override *Config) *Config {
	result := &Config{
		Version: coalesce(override.Version, base.Version),
		Settings: Settings{
			LogLevel:       coalesce(override.Settings.LogLevel, base.Settings.LogLevel),
			LogFile:        coalesce(override.Settings.LogFile, base.Settings.LogFile),
			RulesDir:       coalesce(override.Settings.RulesDir, base.Settings.RulesDir),
			DisableBuiltin: base.Settings.DisableBuiltin || override.Settings.DisableBuiltin,
			WatchRules:     base.Settings.WatchRules || override.Settings.WatchRules,
		},
		Tracker: Tracker{
			IdleTTL:       base.Tracker.IdleTTL,
			SweepInterval: base.Tracker.SweepInterval,
			MinHistory:    base.Tracker.MinHistory,
		},
		Server:  base.Server,
		Storage: base.Storage,
	}

	if override.Tracker.IdleTTL != 0 {
		result.Tracker.IdleTTL = override.Tracker.IdleTTL
	}
	if override.Tracker.SweepInterval != 0 {
		result.Tracker.SweepInterval = override.Tracker.SweepInterval
	}
	if override.Tracker.MinHistory != 0 {
		result.Tracker.MinHistory = override.Tracker.MinHistory
	}

	if override.Server.Bind != "" || override.Server.Port != 0 {
		result.Server.Bind = coalesce(override.Server.Bind, base.Server.Bind)
		if override.Server.Port != 0 {
			result.Server.Port = override.Server.Port
		}
		result.Server.Metrics = override.Server.Metrics
	}

	if override.Storage.Path != "" || override.Storage.Enabled {
		result.Storage.Enabled = override.Storage.Enabled
		result.Storage.Path = coalesce(override.Storage.Path, base.Storage.Path)
	}

	return result
}

func coalesce(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// Exists checks if a config file exists at the given path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

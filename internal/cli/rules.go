package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/seqguard/seqguard/internal/logger"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect the loaded rule set",
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List loaded rules",
	Long: `List the rules that would be active: the builtin pack plus
the configured rules directory.`,
	RunE: runRulesList,
}

func init() {
	rulesCmd.AddCommand(rulesListCmd)
	rootCmd.AddCommand(rulesCmd)
}

func runRulesList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger.InitQuiet()

	loader, err := loadRules(cfg)
	if err != nil {
		return err
	}

	snap := loader.Snapshot()
	if snap.Len() == 0 {
		fmt.Println("No rules loaded.")
		return nil
	}

	fmt.Printf("%-10s %-10s %-9s %-12s %-6s %s\n", "RULE", "SEVERITY", "ORDERING", "WINDOW", "STEPS", "NAME")
	for _, id := range snap.IDs() {
		r, _ := snap.Get(id)
		fmt.Printf("%-10s %-10s %-9s %-12s %-6d %s\n",
			r.ID, r.Severity, r.Ordering, r.EffectiveWindow(), len(r.Steps), r.Name)
	}
	return nil
}

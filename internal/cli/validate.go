package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/seqguard/seqguard/internal/rule"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file>...",
	Short: "Validate rule files",
	Long: `Validate seqguard rule files.

Checks that each file is valid YAML, that every rule satisfies the
schema, and that regex patterns compile. Violations are reported with
the field path of the offending value, e.g.:

  rules[2].steps[0].pattern: invalid regex "([" ...`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	failed := false
	for _, path := range args {
		fmt.Printf("Validating %s\n", path)

		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Printf("  %v\n", err)
			failed = true
			continue
		}

		rules, err := rule.Parse(data)
		if err != nil {
			var verrs rule.ValidationErrors
			if errors.As(err, &verrs) {
				for _, ve := range verrs {
					fmt.Printf("  %v\n", ve)
				}
			} else {
				fmt.Printf("  %v\n", err)
			}
			failed = true
			continue
		}

		fmt.Printf("  Valid: %d rule(s)\n", len(rules))
	}

	if failed {
		return fmt.Errorf("validation failed")
	}
	return nil
}

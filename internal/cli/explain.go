package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/seqguard/seqguard/internal/rule"
)

var explainCmd = &cobra.Command{
	Use:   "explain [match_type]",
	Short: "Show the rule schema reference",
	Long: `Show the field reference and a canonical example for every
match type, or for a single one:

  seqguard explain
  seqguard explain count_threshold`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExplain,
}

func init() {
	rootCmd.AddCommand(explainCmd)
}

func runExplain(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		schema, ok := rule.SchemaFor(rule.MatchType(args[0]))
		if !ok {
			names := make([]string, len(rule.MatchTypes))
			for i, t := range rule.MatchTypes {
				names[i] = string(t)
			}
			return fmt.Errorf("unknown match_type %q (want one of: %s)", args[0], strings.Join(names, ", "))
		}
		printSchema(schema)
		return nil
	}

	for i, schema := range rule.SchemaReference() {
		if i > 0 {
			fmt.Println()
		}
		printSchema(schema)
	}
	return nil
}

func printSchema(s rule.MatchTypeSchema) {
	fmt.Printf("%s\n", s.Type)
	fmt.Printf("  %s\n", s.Summary)

	fmt.Println("  Required:")
	for _, f := range s.Required {
		fmt.Printf("    %-14s %-18s %s\n", f.Name, f.Type, f.Doc)
	}
	if len(s.Optional) > 0 {
		fmt.Println("  Optional:")
		for _, f := range s.Optional {
			fmt.Printf("    %-14s %-18s %s\n", f.Name, f.Type, f.Doc)
		}
	}

	fmt.Println("  Example:")
	for _, line := range strings.Split(s.Example, "\n") {
		fmt.Printf("    %s\n", line)
	}
}

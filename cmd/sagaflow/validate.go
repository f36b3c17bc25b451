package main

import (
	"fmt"

	"github.com/aretw0/sagaflow/pkg/definition"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file|dir>",
	Short: "Check saga templates for consistency",
	Long: `Parses every template and reports unknown steps, dependency cycles, compensations
for undeclared steps and event rules that can never apply.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "."
		if len(args) > 0 {
			path = args[0]
		}
		templates, err := definition.Load(path)
		if err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		for _, t := range templates {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d steps, %d compensations ✅\n", t.Name, len(t.Steps), len(t.Compensations))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

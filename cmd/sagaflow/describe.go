package main

import (
	"fmt"
	"os"

	"github.com/aretw0/sagaflow/internal/presentation/tui"
	"github.com/aretw0/sagaflow/pkg/definition"
	"github.com/spf13/cobra"
)

var describeCmd = &cobra.Command{
	Use:   "describe <template>",
	Short: "Render a saga template as a readable document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tpl, err := definition.LoadFile(args[0])
		if err != nil {
			return err
		}
		plain, _ := cmd.Flags().GetBool("plain")
		render := tui.NewRenderer(!plain && tui.IsTerminal(os.Stdout))

		out, err := render(tui.Describe(tpl))
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(describeCmd)
	describeCmd.Flags().Bool("plain", false, "Print raw Markdown even on a terminal")
}

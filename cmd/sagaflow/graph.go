package main

import (
	"fmt"

	"github.com/aretw0/sagaflow/internal/presentation/graph"
	"github.com/aretw0/sagaflow/pkg/definition"
	"github.com/spf13/cobra"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph <template>",
	Short: "Export the saga as a Mermaid diagram",
	Long:  `Outputs a Mermaid flowchart (graph TD) of the steps, their dependencies and compensations.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tpl, err := definition.LoadFile(args[0])
		if err != nil {
			return err
		}
		saga, err := tpl.CreateSaga(cmd.Context(), sampleParams(tpl))
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(saga, nil))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
}

// sampleParams satisfies the declared parameters and the correlation key so a template
// can be instantiated for display.
func sampleParams(tpl *definition.Template) map[string]any {
	params := tpl.Parameters.Sample()
	if tpl.CorrelationKey != "" {
		if _, ok := params[tpl.CorrelationKey]; !ok {
			params[tpl.CorrelationKey] = "sample"
		}
	}
	return params
}

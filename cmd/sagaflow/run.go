package main

import (
	"os"

	"github.com/aretw0/sagaflow/internal/cli"
	"github.com/aretw0/sagaflow/internal/presentation/tui"
	"github.com/aretw0/sagaflow/pkg/definition"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <template>",
	Short: "Dry-run a saga template against an in-memory bus",
	Long: `Starts one saga from the template with every command succeeding, except the
steps and compensations named by --fail and --fail-compensation, then prints the
transitions and commands.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}

		tpl, err := definition.LoadFile(args[0])
		if err != nil {
			return err
		}
		pairs, _ := cmd.Flags().GetStringArray("param")
		params, err := cli.ParseParams(pairs)
		if err != nil {
			return err
		}
		failSteps, _ := cmd.Flags().GetStringSlice("fail")
		failComps, _ := cmd.Flags().GetStringSlice("fail-compensation")
		jsonMode, _ := cmd.Flags().GetBool("json")

		painter := tui.NewPlainPainter()
		if tui.IsTerminal(os.Stdout) {
			painter = tui.NewPainter()
		}

		_, err = cli.Run(cmd.Context(), cmd.OutOrStdout(), cli.RunOptions{
			Template:          tpl,
			Params:            params,
			FailSteps:         failSteps,
			FailCompensations: failComps,
			JSON:              jsonMode,
			Painter:           painter,
			Logger:            logger,
		})
		return err
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringArrayP("param", "p", nil, "Start parameter as key=value (repeatable)")
	runCmd.Flags().StringSlice("fail", nil, "Step ids whose commands fail")
	runCmd.Flags().StringSlice("fail-compensation", nil, "Step ids whose compensations fail")
	runCmd.Flags().Bool("json", false, "Print the saga, history and commands as JSON")
}

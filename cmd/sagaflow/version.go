package main

import (
	"fmt"

	"github.com/aretw0/sagaflow"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of sagaflow",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "sagaflow version %s\n", sagaflow.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/sagaflow"
	"github.com/aretw0/sagaflow/internal/cli"
	"github.com/aretw0/sagaflow/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Registers the configured templates and exposes the engine over HTTP with
Prometheus metrics and live event streams. With SAGAFLOW_REDIS_ADDR set, sagas
are mirrored to Redis, commands go to per-domain streams and inbound domain
events are consumed from SAGAFLOW_INBOUND_STREAM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.HTTPAddr = addr
		}
		if dir, _ := cmd.Flags().GetString("templates"); dir != "" {
			cfg.Templates = dir
		}
		if catalog, _ := cmd.Flags().GetString("catalog"); catalog != "" {
			cfg.Catalog = catalog
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}

		if tui.IsTerminal(os.Stdout) {
			tui.PrintBanner(os.Stdout, sagaflow.Version)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return cli.Serve(ctx, cfg, logger, sagaflow.Version)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Address to listen on (default from SAGAFLOW_HTTP_ADDR or :8080)")
	serveCmd.Flags().String("templates", "", "Template file or directory")
	serveCmd.Flags().String("catalog", "", "Loam repository of Markdown saga documents")
}

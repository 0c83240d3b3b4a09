package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"loom/internal/server"
)

var (
	flagAddr    string
	flagOffline bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the turn API over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if flagAddr != "" {
			cfg.Server.Addr = flagAddr
		}

		store, _, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		client := buildClient(cfg, flagOffline)
		eng, metrics, err := buildEngine(cfg, store, client)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// A fresh world opens with its first scene before accepting turns.
		if _, err := eng.OpeningScene(ctx); err != nil {
			return err
		}

		var metricsHandler = metrics
		if !cfg.Observability.Metrics.Enabled {
			metricsHandler = nil
		}
		return server.New(eng, cfg.Server.Addr, metricsHandler).Run(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&flagAddr, "addr", "", "listen address (default :8080)")
	serveCmd.Flags().BoolVar(&flagOffline, "offline", false, "use the scripted generation client")
}

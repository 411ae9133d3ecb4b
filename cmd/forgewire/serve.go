package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pthm/forgewire/internal/config"
	"github.com/pthm/forgewire/internal/server"
)

func serveCmd() *cobra.Command {
	var (
		configPath string
		addr       string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the demo server",
		Long: `Serve the demo components over HTTP.

Settings come from the YAML file given by --config, then from the
environment (FORGEWIRE_SECRET, FORGEWIRE_ADDR, FORGEWIRE_STORE_DSN), then
from flags.

Examples:
  FORGEWIRE_SECRET=$(forgewire keygen) forgewire serve
  forgewire serve --config forgewire.yaml --addr :9000 --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			if debug {
				cfg.Debug = true
			}

			logger, err := newLogger(cfg.Debug)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv, err := server.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := srv.Close(); err != nil {
					logger.Warn("close", zap.Error(err))
				}
			}()
			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "forgewire.yaml", "Path to the YAML configuration")
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (overrides config)")
	cmd.Flags().BoolVar(&debug, "debug", false, "Development logging")
	return cmd
}

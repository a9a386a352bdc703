package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/congo-pay/accountant/internal/infra"
	"github.com/congo-pay/accountant/internal/logging"
	"github.com/congo-pay/accountant/internal/server"
)

func newServeCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve batch processing over HTTP",
		Long: `serve exposes POST /api/v1/batches, which runs a CSV body through an
independent engine and responds with the account table, and GET /healthz.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}

			logger, closeLog, err := logging.Open(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
			if err != nil {
				return err
			}
			defer closeLog()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			conns, err := infra.Connect(ctx, cfg)
			if err != nil {
				logger.Error("connect backends", "error", err)
				return err
			}
			defer func() {
				if err := conns.Close(); err != nil {
					logger.Warn("close backends", "error", err)
				}
			}()

			srv := server.New(cfg, conns, logger)

			srvErrCh := make(chan error, 1)
			go func() {
				srvErrCh <- srv.Listen()
			}()
			logger.Info("listening", "addr", cfg.Address(), "ledger", cfg.LedgerBackend, "workers", cfg.Workers)

			select {
			case <-ctx.Done():
				logger.Info("shutdown signal received")
			case err := <-srvErrCh:
				if err != nil {
					logger.Error("server error", "error", err)
				}
				return err
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("shutdown error", "error", err)
				return err
			}

			logger.Info("server exited cleanly")
			return nil
		},
	}
}

package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/dealflow/internal/container"
	httpapi "github.com/garyjia/dealflow/internal/interfaces/http"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the retention worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap(cmd)
			if err != nil {
				return err
			}
			defer logger.Sync()

			logger.Info("Starting dealflow",
				zap.String("version", httpapi.Version),
				zap.Int("port", cfg.Server.Port))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			c, err := container.NewContainer(cfg.ToContainerConfig(), logger)
			if err != nil {
				return err
			}
			if err := c.Start(ctx); err != nil {
				return err
			}
			defer func() {
				if err := c.Close(); err != nil {
					logger.Error("Container shutdown error", zap.Error(err))
				}
			}()

			if err := c.Server().Start(ctx); err != nil {
				return err
			}

			logger.Info("Server exited successfully")
			return nil
		},
	}
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/dealflow/internal/container"
)

func newSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one retention sweep and print its summary",
		Long:  `Expires stale signing sessions, clears signature previews past their window and deletes signatures past retention, then exits.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap(cmd)
			if err != nil {
				return err
			}
			defer logger.Sync()

			timeout, _ := cmd.Flags().GetDuration("timeout")

			cc := cfg.ToContainerConfig()
			cc.Retention.Enabled = false

			c, err := container.NewContainer(cc, logger)
			if err != nil {
				return err
			}
			if err := c.Start(cmd.Context()); err != nil {
				return err
			}
			defer func() {
				if err := c.Close(); err != nil {
					logger.Error("Container shutdown error", zap.Error(err))
				}
			}()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			summary, sweepErr := c.Sweeper().Sweep(ctx, time.Now().UTC())
			if summary != nil {
				out, err := json.MarshalIndent(summary, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
			}
			if sweepErr != nil {
				return fmt.Errorf("sweep failed: %w", sweepErr)
			}
			return nil
		},
	}

	cmd.Flags().Duration("timeout", time.Minute, "Upper bound on the sweep duration")
	return cmd
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/dealflow/internal/config"
	"github.com/garyjia/dealflow/pkg/utils"
)

// newRootCmd builds the command tree. Persistent flags are shared by every subcommand.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "dealflow",
		Short:         "Dealership workflow and e-signature service",
		Long:          `dealflow tracks deals, vehicles and clients through their lifecycles and collects signer consent and signatures for deal documents.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", "configs/config.yaml", "Path to the YAML configuration file (empty for defaults and environment only)")
	root.PersistentFlags().String("env-file", ".env", "Optional dotenv file loaded before the configuration")

	root.AddCommand(newServeCmd(), newSweepCmd(), newMigrateCmd(), newVersionCmd())
	return root
}

// bootstrap loads configuration and builds the process logger
func bootstrap(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	envFile, _ := cmd.Flags().GetString("env-file")

	cfg, err := config.LoadWithEnvFile(path, envFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(cfg.ToLoggerConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger, nil
}

package main

import (
	"fmt"

	"github.com/lalith-99/linegate/internal/config"
	"github.com/lalith-99/linegate/internal/db"
	"github.com/lalith-99/linegate/internal/observ"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
			if err != nil {
				return fmt.Errorf("create logger: %w", err)
			}
			defer logger.Sync()

			return db.RunMigrations(cfg.DatabaseURL, logger)
		},
	}
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"task-service/internal/config"
	"task-service/internal/db"
	"task-service/internal/logger"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			appLogger := logger.New(cfg.Environment)

			database, err := db.New(cfg, appLogger)
			if err != nil {
				return fmt.Errorf("failed to connect database: %w", err)
			}
			return db.Migrate(database, appLogger)
		},
	}
}

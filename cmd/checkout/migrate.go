package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shestoi/yookassa-checkout/internal/config"
	"github.com/shestoi/yookassa-checkout/internal/repository/postgres"
	"github.com/shestoi/yookassa-checkout/internal/repository/sqlite"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations for the configured STORAGE_DRIVER",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			switch cfg.StorageDriver {
			case config.StoragePostgres:
				if err := postgres.Migrate(cmd.Context(), cfg.PostgresDSN); err != nil {
					return err
				}
			case config.StorageSQLite:
				// схема применяется при открытии
				store, err := sqlite.Open(cfg.SQLitePath)
				if err != nil {
					return err
				}
				if err := store.Close(); err != nil {
					return err
				}
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "storage driver %s has nothing to migrate\n", cfg.StorageDriver)
				return nil
			}

			fmt.Fprintf(cmd.OutOrStdout(), "migrations applied (%s)\n", cfg.StorageDriver)
			return nil
		},
	}
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shestoi/yookassa-checkout/internal/app"
	"github.com/shestoi/yookassa-checkout/internal/config"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the notification dispatcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			// Build собирает граф зависимостей, Run блокируется до graceful shutdown
			application, err := app.Build(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to build app: %w", err)
			}
			return application.Run(cmd.Context())
		},
	}
}

package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	httpapi "github.com/shestoi/yookassa-checkout/internal/api/http"
	"github.com/shestoi/yookassa-checkout/internal/app"
	"github.com/shestoi/yookassa-checkout/internal/config"
)

func orderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Manage orders",
	}
	cmd.AddCommand(orderRetryPaymentCmd())
	return cmd
}

// orderRetryPaymentCmd повторно запрашивает платёж для заказа, оставшегося в created после сбоя шлюза
func orderRetryPaymentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry-payment [order-id]",
		Short: "Request a new payment session for an order stuck in created",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orderID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || orderID <= 0 {
				return fmt.Errorf("invalid order id: %q", args[0])
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			application, err := app.Build(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to build app: %w", err)
			}
			defer application.Close()

			out, err := application.Service().RequestPayment(cmd.Context(), orderID)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(httpapi.CreateOrderResponse{OrderID: out.OrderID, PaymentURL: out.PaymentURL})
		},
	}
}

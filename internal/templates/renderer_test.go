package templates

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/shestoi/yookassa-checkout/internal/repository"
)

func TestRenderer_Render(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	data := DataFromOrder(repository.Order{ID: 1, TotalAmount: decimal.RequireFromString("1500")})

	tests := []struct {
		status repository.OrderStatus
		want   string
	}{
		{repository.StatusPaid, "Оплачен заказ №1, сумма 1500.00 руб."},
		{repository.StatusPaymentFailed, "Оплата заказа №1 не прошла, сумма 1500.00 руб."},
		{repository.StatusCanceled, "Платёж по заказу №1 отменён, сумма 1500.00 руб."},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			got, err := r.Render(tt.status, data)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestRenderer_UnknownStatus(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	_, err = r.Render(repository.StatusAwaitingPayment, MessageData{OrderID: 1})
	require.Error(t, err)
}

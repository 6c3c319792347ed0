package repository

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestOrderStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from OrderStatus
		to   OrderStatus
		want bool
	}{
		{StatusCreated, StatusAwaitingPayment, true},
		{StatusAwaitingPayment, StatusPaid, true},
		{StatusAwaitingPayment, StatusPaymentFailed, true},
		{StatusAwaitingPayment, StatusCanceled, true},
		{StatusCreated, StatusPaid, false},
		{StatusPaid, StatusPaymentFailed, false},
		{StatusPaid, StatusAwaitingPayment, false},
		{StatusAwaitingPayment, StatusCreated, false},
		{StatusCreated, OrderStatus("unknown"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			require.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}

func TestOrderStatus_IsTerminal(t *testing.T) {
	require.False(t, StatusCreated.IsTerminal())
	require.False(t, StatusAwaitingPayment.IsTerminal())
	require.True(t, StatusPaid.IsTerminal())
	require.True(t, StatusPaymentFailed.IsTerminal())
	require.True(t, StatusCanceled.IsTerminal())
}

func TestNewOrder_Validate(t *testing.T) {
	valid := NewOrder{
		Items:       []OrderItem{{Name: "Pizza", Quantity: 2}},
		TotalAmount: decimal.RequireFromString("1500.00"),
	}

	tests := []struct {
		name    string
		mutate  func(n *NewOrder)
		wantErr bool
	}{
		{name: "valid", mutate: func(n *NewOrder) {}},
		{name: "empty items", mutate: func(n *NewOrder) { n.Items = nil }, wantErr: true},
		{name: "zero quantity", mutate: func(n *NewOrder) { n.Items = []OrderItem{{Name: "Cola", Quantity: 0}} }, wantErr: true},
		{name: "zero total", mutate: func(n *NewOrder) { n.TotalAmount = decimal.Zero }, wantErr: true},
		{name: "negative total", mutate: func(n *NewOrder) { n.TotalAmount = decimal.NewFromInt(-1) }, wantErr: true},
		{name: "sub-kopeck total", mutate: func(n *NewOrder) { n.TotalAmount = decimal.RequireFromString("0.001") }, wantErr: true},
		{name: "third fractional digit", mutate: func(n *NewOrder) { n.TotalAmount = decimal.RequireFromString("1500.005") }, wantErr: true},
		{name: "trailing zeros allowed", mutate: func(n *NewOrder) { n.TotalAmount = decimal.RequireFromString("1500.500") }},
		{name: "one kopeck", mutate: func(n *NewOrder) { n.TotalAmount = decimal.RequireFromString("0.01") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)

			err := in.Validate()
			if tt.wantErr {
				require.True(t, errors.Is(err, ErrValidation))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestOrder_CloneDoesNotShareSlices(t *testing.T) {
	o := Order{
		Items:            []OrderItem{{Name: "Pizza", Quantity: 2}},
		NotifiedStatuses: []OrderStatus{StatusPaid},
	}

	c := o.Clone()
	c.Items[0].Quantity = 10
	c.NotifiedStatuses[0] = StatusCanceled

	require.Equal(t, int32(2), o.Items[0].Quantity)
	require.True(t, o.HasNotified(StatusPaid))
	require.False(t, o.HasNotified(StatusCanceled))
}

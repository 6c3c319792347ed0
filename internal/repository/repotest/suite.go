// Package repotest общий набор проверок контракта repository.Store для всех backend'ов
package repotest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shestoi/yookassa-checkout/internal/repository"
)

// NewPizzaOrder заказ из сценария: Pizza x2, Cola x1 на 1500.00
func NewPizzaOrder() repository.NewOrder {
	return repository.NewOrder{
		Email:           "customer@example.com",
		Phone:           "+79990000000",
		DeliveryAddress: "Москва, ул. Тверская, 1",
		OrderTime:       "2024-05-01 18:00",
		DeliveryTime:    "2024-05-01 19:00",
		Items: []repository.OrderItem{
			{Name: "Pizza", Quantity: 2},
			{Name: "Cola", Quantity: 1},
		},
		TotalAmount: decimal.RequireFromString("1500.00"),
	}
}

// RunStoreSuite прогоняет контракт на свежем store, который возвращает newStore
func RunStoreSuite(t *testing.T, newStore func(t *testing.T) repository.Store) {
	t.Helper()

	t.Run("Create assigns sequential ids and created status", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		first, err := store.Create(ctx, NewPizzaOrder())
		require.NoError(t, err)
		second, err := store.Create(ctx, NewPizzaOrder())
		require.NoError(t, err)

		require.Equal(t, int64(1), first.ID)
		require.Equal(t, int64(2), second.ID)
		require.Equal(t, repository.StatusCreated, first.Status)

		got, err := store.GetByID(ctx, first.ID)
		require.NoError(t, err)
		require.Equal(t, "customer@example.com", got.Email)
		require.Equal(t, "Москва, ул. Тверская, 1", got.DeliveryAddress)
		require.Equal(t, []repository.OrderItem{{Name: "Pizza", Quantity: 2}, {Name: "Cola", Quantity: 1}}, got.Items)
		require.True(t, decimal.RequireFromString("1500").Equal(got.TotalAmount))
		require.Empty(t, got.NotifiedStatuses)
	})

	t.Run("Create rejects invalid order", func(t *testing.T) {
		tests := []struct {
			name   string
			mutate func(in *repository.NewOrder)
		}{
			{name: "empty items", mutate: func(in *repository.NewOrder) { in.Items = nil }},
			{name: "sub-kopeck total", mutate: func(in *repository.NewOrder) { in.TotalAmount = decimal.RequireFromString("0.001") }},
			{name: "three fractional digits", mutate: func(in *repository.NewOrder) { in.TotalAmount = decimal.RequireFromString("1500.005") }},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				store := newStore(t)

				in := NewPizzaOrder()
				tt.mutate(&in)

				_, err := store.Create(context.Background(), in)
				require.True(t, errors.Is(err, repository.ErrValidation), "Expected ErrValidation, got: %v", err)
			})
		}
	})

	t.Run("Create keeps total amount exactly", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		in := NewPizzaOrder()
		in.TotalAmount = decimal.RequireFromString("1499.99")

		order, err := store.Create(ctx, in)
		require.NoError(t, err)

		got, err := store.GetByID(ctx, order.ID)
		require.NoError(t, err)
		require.Equal(t, "1499.99", got.TotalAmount.StringFixed(repository.AmountScale))
		require.True(t, in.TotalAmount.Equal(got.TotalAmount))
	})

	t.Run("GetByID not found", func(t *testing.T) {
		store := newStore(t)

		_, err := store.GetByID(context.Background(), 404)
		require.True(t, errors.Is(err, repository.ErrNotFound), "Expected ErrNotFound, got: %v", err)

		_, err = store.GetByPaymentSession(context.Background(), "missing")
		require.True(t, errors.Is(err, repository.ErrNotFound), "Expected ErrNotFound, got: %v", err)
	})

	t.Run("SetPaymentSession is once only", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		order, err := store.Create(ctx, NewPizzaOrder())
		require.NoError(t, err)

		updated, err := store.SetPaymentSession(ctx, order.ID, "pay-1")
		require.NoError(t, err)
		require.Equal(t, "pay-1", updated.PaymentSessionID)

		_, err = store.SetPaymentSession(ctx, order.ID, "pay-2")
		require.True(t, errors.Is(err, repository.ErrConflict), "Expected ErrConflict, got: %v", err)

		bySession, err := store.GetByPaymentSession(ctx, "pay-1")
		require.NoError(t, err)
		require.Equal(t, order.ID, bySession.ID)
	})

	t.Run("UpdateStatus compare and set", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		order, err := store.Create(ctx, NewPizzaOrder())
		require.NoError(t, err)

		// неверный expected
		_, err = store.UpdateStatus(ctx, order.ID, repository.StatusPaid, repository.StatusAwaitingPayment)
		require.True(t, errors.Is(err, repository.ErrConflict))

		// прыжок через статус запрещён
		_, err = store.UpdateStatus(ctx, order.ID, repository.StatusPaid, repository.StatusCreated)
		require.True(t, errors.Is(err, repository.ErrConflict))

		updated, err := store.UpdateStatus(ctx, order.ID, repository.StatusAwaitingPayment, repository.StatusCreated)
		require.NoError(t, err)
		require.Equal(t, repository.StatusAwaitingPayment, updated.Status)

		updated, err = store.UpdateStatus(ctx, order.ID, repository.StatusPaid, repository.StatusAwaitingPayment)
		require.NoError(t, err)
		require.Equal(t, repository.StatusPaid, updated.Status)

		// откат терминального статуса запрещён
		_, err = store.UpdateStatus(ctx, order.ID, repository.StatusAwaitingPayment, repository.StatusPaid)
		require.True(t, errors.Is(err, repository.ErrConflict))

		_, err = store.UpdateStatus(ctx, 404, repository.StatusAwaitingPayment, repository.StatusCreated)
		require.True(t, errors.Is(err, repository.ErrNotFound))
	})

	t.Run("Concurrent UpdateStatus has one winner", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		order, err := store.Create(ctx, NewPizzaOrder())
		require.NoError(t, err)
		_, err = store.UpdateStatus(ctx, order.ID, repository.StatusAwaitingPayment, repository.StatusCreated)
		require.NoError(t, err)

		targets := []repository.OrderStatus{
			repository.StatusPaid, repository.StatusPaymentFailed,
			repository.StatusPaid, repository.StatusPaymentFailed,
			repository.StatusCanceled, repository.StatusPaid,
		}

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			winners []repository.OrderStatus
		)
		for _, target := range targets {
			wg.Add(1)
			go func(target repository.OrderStatus) {
				defer wg.Done()
				_, err := store.UpdateStatus(ctx, order.ID, target, repository.StatusAwaitingPayment)
				if err == nil {
					mu.Lock()
					winners = append(winners, target)
					mu.Unlock()
					return
				}
				assert.True(t, errors.Is(err, repository.ErrConflict), "unexpected error: %v", err)
			}(target)
		}
		wg.Wait()

		require.Len(t, winners, 1)
		got, err := store.GetByID(ctx, order.ID)
		require.NoError(t, err)
		require.Equal(t, winners[0], got.Status)
	})

	t.Run("EnqueueNotification deduplicates", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		order, err := store.Create(ctx, NewPizzaOrder())
		require.NoError(t, err)

		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			inserted int
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := store.EnqueueNotification(ctx, order.ID, repository.StatusPaid)
				assert.NoError(t, err)
				if ok {
					mu.Lock()
					inserted++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		require.Equal(t, 1, inserted)

		tasks, err := store.PendingNotifications(ctx, 10)
		require.NoError(t, err)
		require.Len(t, tasks, 1)
		require.Equal(t, order.ID, tasks[0].OrderID)
		require.Equal(t, repository.StatusPaid, tasks[0].Status)
		require.Equal(t, repository.NotificationPending, tasks[0].State)

		_, err = store.EnqueueNotification(ctx, 404, repository.StatusPaid)
		require.True(t, errors.Is(err, repository.ErrNotFound))
	})

	t.Run("MarkNotificationSent records notified status", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		order, err := store.Create(ctx, NewPizzaOrder())
		require.NoError(t, err)

		ok, err := store.EnqueueNotification(ctx, order.ID, repository.StatusPaid)
		require.NoError(t, err)
		require.True(t, ok)

		tasks, err := store.PendingNotifications(ctx, 10)
		require.NoError(t, err)
		require.Len(t, tasks, 1)

		require.NoError(t, store.MarkNotificationSent(ctx, tasks[0].ID))

		got, err := store.GetByID(ctx, order.ID)
		require.NoError(t, err)
		require.Equal(t, []repository.OrderStatus{repository.StatusPaid}, got.NotifiedStatuses)

		pending, err := store.PendingNotifications(ctx, 10)
		require.NoError(t, err)
		require.Empty(t, pending)

		// уведомление уже доставлено, повторная постановка ничего не делает
		ok, err = store.EnqueueNotification(ctx, order.ID, repository.StatusPaid)
		require.NoError(t, err)
		require.False(t, ok)

		err = store.MarkNotificationSent(ctx, tasks[0].ID)
		require.True(t, errors.Is(err, repository.ErrConflict))
	})

	t.Run("MarkNotificationFailed is terminal", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		order, err := store.Create(ctx, NewPizzaOrder())
		require.NoError(t, err)

		_, err = store.EnqueueNotification(ctx, order.ID, repository.StatusPaymentFailed)
		require.NoError(t, err)
		tasks, err := store.PendingNotifications(ctx, 10)
		require.NoError(t, err)
		require.Len(t, tasks, 1)

		require.NoError(t, store.MarkNotificationFailed(ctx, tasks[0].ID, 5, "telegram: 502"))

		pending, err := store.PendingNotifications(ctx, 10)
		require.NoError(t, err)
		require.Empty(t, pending)

		got, err := store.GetByID(ctx, order.ID)
		require.NoError(t, err)
		require.Empty(t, got.NotifiedStatuses)

		err = store.MarkNotificationFailed(ctx, 404, 1, "x")
		require.True(t, errors.Is(err, repository.ErrNotFound))
	})

	t.Run("PendingNotifications oldest first with limit", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)

		var ids []int64
		for i := 0; i < 3; i++ {
			order, err := store.Create(ctx, NewPizzaOrder())
			require.NoError(t, err)
			_, err = store.EnqueueNotification(ctx, order.ID, repository.StatusPaid)
			require.NoError(t, err)
			ids = append(ids, order.ID)
		}

		tasks, err := store.PendingNotifications(ctx, 2)
		require.NoError(t, err)
		require.Len(t, tasks, 2)
		require.Equal(t, ids[0], tasks[0].OrderID)
		require.Equal(t, ids[1], tasks[1].OrderID)
	})

	t.Run("Ping", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Ping(context.Background()))
	})
}

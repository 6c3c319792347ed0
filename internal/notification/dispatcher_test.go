package notification_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shestoi/yookassa-checkout/internal/notification"
	"github.com/shestoi/yookassa-checkout/internal/notification/mocks"
	"github.com/shestoi/yookassa-checkout/internal/repository"
	"github.com/shestoi/yookassa-checkout/internal/repository/memory"
	"github.com/shestoi/yookassa-checkout/internal/repository/repotest"
	"github.com/shestoi/yookassa-checkout/internal/telegram"
	"github.com/shestoi/yookassa-checkout/internal/templates"
)

const (
	chatID   = "-100500"
	paidText = "Оплачен заказ №1, сумма 1500.00 руб."
)

// recordingSleeper не ждёт, только запоминает задержки
type recordingSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits = append(s.waits, d)
	return ctx.Err()
}

type fixture struct {
	repo       *memory.Repository
	sender     *mocks.Sender
	alerter    *mocks.Alerter
	sleeper    *recordingSleeper
	dispatcher *notification.Dispatcher
	order      repository.Order
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := memory.NewRepository()
	order, err := repo.Create(context.Background(), repotest.NewPizzaOrder())
	require.NoError(t, err)

	renderer, err := templates.NewRenderer()
	require.NoError(t, err)

	f := &fixture{
		repo:    repo,
		sender:  mocks.NewSender(t),
		alerter: mocks.NewAlerter(t),
		sleeper: &recordingSleeper{},
		order:   order,
	}
	f.dispatcher = notification.NewDispatcherWithSleeper(zap.NewNop(), repo, f.sender, renderer, f.alerter, nil,
		notification.Config{
			ChatID:       chatID,
			MaxAttempts:  5,
			BackoffBase:  time.Second,
			BackoffMax:   5 * time.Second,
			PollInterval: time.Hour,
			BatchSize:    10,
		}, f.sleeper)
	return f
}

func TestDispatcher_DeliversOnce(t *testing.T) {
	// Arrange
	ctx := context.Background()
	f := newFixture(t)
	f.sender.On("Send", ctx, chatID, paidText).Return(nil).Once()

	// Act
	inserted, err := f.dispatcher.Enqueue(ctx, f.order.ID, repository.StatusPaid)
	require.NoError(t, err)
	require.True(t, inserted)

	duplicate, err := f.dispatcher.Enqueue(ctx, f.order.ID, repository.StatusPaid)
	require.NoError(t, err)
	require.False(t, duplicate)

	require.NoError(t, f.dispatcher.ProcessPending(ctx))

	// Assert
	got, err := f.repo.GetByID(ctx, f.order.ID)
	require.NoError(t, err)
	require.Equal(t, []repository.OrderStatus{repository.StatusPaid}, got.NotifiedStatuses)

	// после доставки повторная постановка ничего не создаёт
	again, err := f.dispatcher.Enqueue(ctx, f.order.ID, repository.StatusPaid)
	require.NoError(t, err)
	require.False(t, again)
	require.NoError(t, f.dispatcher.ProcessPending(ctx))

	require.Empty(t, f.sleeper.waits)
}

func TestDispatcher_RetriesTransientErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.sender.On("Send", ctx, chatID, paidText).Return(errors.New("connection reset")).Twice()
	f.sender.On("Send", ctx, chatID, paidText).Return(nil).Once()

	_, err := f.dispatcher.Enqueue(ctx, f.order.ID, repository.StatusPaid)
	require.NoError(t, err)
	require.NoError(t, f.dispatcher.ProcessPending(ctx))

	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, f.sleeper.waits)

	got, err := f.repo.GetByID(ctx, f.order.ID)
	require.NoError(t, err)
	require.True(t, got.HasNotified(repository.StatusPaid))
}

func TestDispatcher_ExhaustedRetriesRaiseAlert(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	sendErr := errors.New("telegram unavailable")
	f.sender.On("Send", ctx, chatID, paidText).Return(sendErr).Times(5)
	f.alerter.On("Alert", ctx, mock.MatchedBy(func(failure *notification.DeliveryFailedError) bool {
		return failure.OrderID == f.order.ID &&
			failure.Status == repository.StatusPaid &&
			failure.Attempts == 5 &&
			errors.Is(failure, sendErr)
	})).Return(nil).Once()

	_, err := f.dispatcher.Enqueue(ctx, f.order.ID, repository.StatusPaid)
	require.NoError(t, err)

	// DeliveryFailed не возвращается вызывающему
	require.NoError(t, f.dispatcher.ProcessPending(ctx))

	// 1s, 2s, 4s, затем потолок 5s
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second}, f.sleeper.waits)

	pending, err := f.repo.PendingNotifications(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, pending)

	got, err := f.repo.GetByID(ctx, f.order.ID)
	require.NoError(t, err)
	require.Empty(t, got.NotifiedStatuses)

	// failed задача не даёт поставить уведомление заново
	inserted, err := f.dispatcher.Enqueue(ctx, f.order.ID, repository.StatusPaid)
	require.NoError(t, err)
	require.False(t, inserted)
}

func TestDispatcher_PermanentErrorStopsImmediately(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.sender.On("Send", ctx, chatID, paidText).
		Return(&telegram.APIError{StatusCode: 400, Description: "Bad Request: chat not found"}).Once()
	f.alerter.On("Alert", ctx, mock.MatchedBy(func(failure *notification.DeliveryFailedError) bool {
		return failure.Attempts == 1
	})).Return(errors.New("kafka down")).Once()

	_, err := f.dispatcher.Enqueue(ctx, f.order.ID, repository.StatusPaid)
	require.NoError(t, err)
	require.NoError(t, f.dispatcher.ProcessPending(ctx))

	require.Empty(t, f.sleeper.waits)
}

func TestDispatcher_StartDeliversOnWakeAndStops(t *testing.T) {
	f := newFixture(t)

	delivered := make(chan struct{})
	f.sender.On("Send", mock.Anything, chatID, paidText).
		Run(func(args mock.Arguments) { close(delivered) }).
		Return(nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.dispatcher.Start(ctx) }()

	_, err := f.dispatcher.Enqueue(context.Background(), f.order.ID, repository.StatusPaid)
	require.NoError(t, err)

	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("notification was not delivered")
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop")
	}
}

func TestDispatcher_StartPicksUpTasksLeftBeforeRestart(t *testing.T) {
	f := newFixture(t)

	// задача сохранена до "рестарта", wake сигнала нет
	_, err := f.repo.EnqueueNotification(context.Background(), f.order.ID, repository.StatusPaid)
	require.NoError(t, err)

	delivered := make(chan struct{})
	f.sender.On("Send", mock.Anything, chatID, paidText).
		Run(func(args mock.Arguments) { close(delivered) }).
		Return(nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = f.dispatcher.Start(ctx) }()

	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("pending notification was not delivered on start")
	}
}

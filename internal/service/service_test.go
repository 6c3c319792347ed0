package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shestoi/yookassa-checkout/internal/notification"
	notificationMocks "github.com/shestoi/yookassa-checkout/internal/notification/mocks"
	"github.com/shestoi/yookassa-checkout/internal/repository"
	"github.com/shestoi/yookassa-checkout/internal/repository/memory"
	repoMocks "github.com/shestoi/yookassa-checkout/internal/repository/mocks"
	"github.com/shestoi/yookassa-checkout/internal/service"
	"github.com/shestoi/yookassa-checkout/internal/service/mocks"
	"github.com/shestoi/yookassa-checkout/internal/templates"
	"github.com/shestoi/yookassa-checkout/internal/webhook"
)

const paymentURL = "https://yoomoney.ru/checkout/payments/v2/contract?orderId=pay-1"

func pizzaInput() service.PlaceOrderInput {
	return service.PlaceOrderInput{
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

func amountEquals(v string) interface{} {
	want := decimal.RequireFromString(v)
	return mock.MatchedBy(func(got decimal.Decimal) bool { return got.Equal(want) })
}

func event(id string, t webhook.EventType) webhook.PaymentEvent {
	return webhook.PaymentEvent{SessionID: "pay-1", Type: t, ProviderEventID: id, ReceivedAt: time.Now()}
}

// env сервис на in-memory хранилищах с настоящим Dispatcher и замоканными внешними системами
type env struct {
	repo       *memory.Repository
	gateway    *mocks.PaymentGateway
	sender     *notificationMocks.Sender
	dispatcher *notification.Dispatcher
	svc        *service.OrderService
}

func newEnv(t *testing.T) *env {
	t.Helper()

	repo := memory.NewRepository()
	renderer, err := templates.NewRenderer()
	require.NoError(t, err)

	e := &env{
		repo:    repo,
		gateway: mocks.NewPaymentGateway(t),
		sender:  notificationMocks.NewSender(t),
	}
	e.dispatcher = notification.NewDispatcher(zap.NewNop(), repo, e.sender, renderer, notification.NewLogAlerter(zap.NewNop()), nil,
		notification.Config{ChatID: "chat", MaxAttempts: 1})
	e.svc = service.NewOrderService(zap.NewNop(), repo, memory.NewProcessedEventsStore(), e.gateway, e.dispatcher, nil,
		service.Config{GatewayTimeout: time.Second, EventTTL: time.Hour})
	return e
}

// placeAwaiting оформляет заказ до awaiting_payment с сессией pay-1
func (e *env) placeAwaiting(t *testing.T) int64 {
	t.Helper()

	e.gateway.On("CreateSession", mock.Anything, mock.AnythingOfType("int64"), amountEquals("1500")).
		Return(service.PaymentSession{ID: "pay-1", ConfirmationURL: paymentURL}, nil).Once()

	out, err := e.svc.PlaceOrder(context.Background(), pizzaInput())
	require.NoError(t, err)
	return out.OrderID
}

func (e *env) pendingTasks(t *testing.T) []repository.NotificationTask {
	t.Helper()
	tasks, err := e.repo.PendingNotifications(context.Background(), 100)
	require.NoError(t, err)
	return tasks
}

func TestOrderService_PizzaScenario(t *testing.T) {
	// Arrange
	ctx := context.Background()
	e := newEnv(t)
	e.gateway.On("CreateSession", mock.Anything, int64(1), amountEquals("1500.00")).
		Return(service.PaymentSession{ID: "pay-1", ConfirmationURL: paymentURL}, nil).Once()
	e.sender.On("Send", mock.Anything, "chat", "Оплачен заказ №1, сумма 1500.00 руб.").Return(nil).Once()

	// Act: оформление
	placed, err := e.svc.PlaceOrder(ctx, pizzaInput())

	// Assert
	require.NoError(t, err)
	require.Equal(t, int64(1), placed.OrderID)
	require.Equal(t, paymentURL, placed.PaymentURL)
	require.Equal(t, repository.StatusAwaitingPayment, placed.Status)

	order, err := e.svc.GetOrder(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, repository.StatusAwaitingPayment, order.Status)
	require.Equal(t, "pay-1", order.PaymentSessionID)

	// Act: провайдер доставляет succeeded дважды
	first, err := e.svc.ApplyEvent(ctx, event("evt-1", webhook.EventSucceeded))
	require.NoError(t, err)
	second, err := e.svc.ApplyEvent(ctx, event("evt-1", webhook.EventSucceeded))
	require.NoError(t, err)

	// Assert
	require.True(t, first.Applied)
	require.Equal(t, repository.StatusPaid, first.Status)
	require.True(t, second.Duplicate)
	require.False(t, second.Applied)

	require.Len(t, e.pendingTasks(t), 1)
	require.NoError(t, e.dispatcher.ProcessPending(ctx))

	order, err = e.svc.GetOrder(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, repository.StatusPaid, order.Status)
	require.Equal(t, []repository.OrderStatus{repository.StatusPaid}, order.NotifiedStatuses)
}

func TestOrderService_PlaceOrder_UniqueIDsStartCreated(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.gateway.On("CreateSession", mock.Anything, mock.AnythingOfType("int64"), mock.Anything).
		Return(func(ctx context.Context, orderID int64, amount decimal.Decimal) (service.PaymentSession, error) {
			return service.PaymentSession{}, errors.New("shop is offline")
		}).Times(3)

	seen := make(map[int64]bool)
	for i := 0; i < 3; i++ {
		_, err := e.svc.PlaceOrder(ctx, pizzaInput())

		var gwErr *service.PaymentGatewayError
		require.True(t, errors.As(err, &gwErr))
		require.False(t, seen[gwErr.OrderID])
		seen[gwErr.OrderID] = true

		order, err := e.svc.GetOrder(ctx, gwErr.OrderID)
		require.NoError(t, err)
		require.Equal(t, repository.StatusCreated, order.Status)
		require.Empty(t, order.PaymentSessionID)
	}
}

func TestOrderService_PlaceOrder_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(in *service.PlaceOrderInput)
	}{
		{name: "empty items", mutate: func(in *service.PlaceOrderInput) { in.Items = nil }},
		{name: "zero amount", mutate: func(in *service.PlaceOrderInput) { in.TotalAmount = decimal.Zero }},
		{name: "sub-kopeck amount", mutate: func(in *service.PlaceOrderInput) { in.TotalAmount = decimal.RequireFromString("0.001") }},
		{name: "amount rounded by gateway", mutate: func(in *service.PlaceOrderInput) {
			in.TotalAmount = decimal.RequireFromString("1500.005")
		}},
		{name: "non positive quantity", mutate: func(in *service.PlaceOrderInput) {
			in.Items = []repository.OrderItem{{Name: "Pizza", Quantity: -1}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			e := newEnv(t)
			in := pizzaInput()
			tt.mutate(&in)

			// Act
			out, err := e.svc.PlaceOrder(context.Background(), in)

			// Assert
			require.Nil(t, out)
			require.True(t, errors.Is(err, repository.ErrValidation), "Expected ErrValidation, got: %v", err)
		})
	}
}

func TestOrderService_GatewayFailureThenManualRetry(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	cause := errors.New("yookassa: 500")
	e.gateway.On("CreateSession", mock.Anything, int64(1), amountEquals("1500")).
		Return(service.PaymentSession{}, cause).Once()

	_, err := e.svc.PlaceOrder(ctx, pizzaInput())

	var gwErr *service.PaymentGatewayError
	require.True(t, errors.As(err, &gwErr))
	require.Equal(t, int64(1), gwErr.OrderID)
	require.True(t, errors.Is(err, cause))

	e.gateway.On("CreateSession", mock.Anything, int64(1), amountEquals("1500")).
		Return(service.PaymentSession{ID: "pay-1", ConfirmationURL: paymentURL}, nil).Once()

	out, err := e.svc.RequestPayment(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, repository.StatusAwaitingPayment, out.Status)
	require.Equal(t, "pay-1", out.SessionID)
	require.Equal(t, paymentURL, out.PaymentURL)
}

func TestOrderService_RequestPayment_SecondCallConflicts(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	id := e.placeAwaiting(t)

	_, err := e.svc.RequestPayment(ctx, id)
	require.True(t, errors.Is(err, repository.ErrConflict), "Expected ErrConflict, got: %v", err)

	order, err := e.svc.GetOrder(ctx, id)
	require.NoError(t, err)
	require.Equal(t, repository.StatusAwaitingPayment, order.Status)
}

func TestOrderService_RequestPayment_GatewayTimeout(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()
	gateway := mocks.NewPaymentGateway(t)
	svc := service.NewOrderService(zap.NewNop(), repo, memory.NewProcessedEventsStore(), gateway, mocks.NewNotifier(t), nil,
		service.Config{GatewayTimeout: 20 * time.Millisecond})

	gateway.On("CreateSession", mock.Anything, int64(1), mock.Anything).
		Return(func(ctx context.Context, orderID int64, amount decimal.Decimal) (service.PaymentSession, error) {
			<-ctx.Done()
			return service.PaymentSession{}, ctx.Err()
		}).Once()

	_, err := svc.PlaceOrder(ctx, pizzaInput())

	var gwErr *service.PaymentGatewayError
	require.True(t, errors.As(err, &gwErr))
	require.True(t, errors.Is(err, context.DeadlineExceeded))

	order, err := repo.GetByID(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, repository.StatusCreated, order.Status)
}

func TestOrderService_RequestPayment_EmptySessionIsGatewayError(t *testing.T) {
	e := newEnv(t)
	e.gateway.On("CreateSession", mock.Anything, int64(1), mock.Anything).
		Return(service.PaymentSession{ID: "pay-1"}, nil).Once()

	_, err := e.svc.PlaceOrder(context.Background(), pizzaInput())

	var gwErr *service.PaymentGatewayError
	require.True(t, errors.As(err, &gwErr))
}

func TestOrderService_RequestPayment_FinishesInterruptedTransition(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	order, err := e.repo.Create(ctx, repository.NewOrder{
		Items:       []repository.OrderItem{{Name: "Pizza", Quantity: 1}},
		TotalAmount: decimal.NewFromInt(700),
	})
	require.NoError(t, err)
	// сессия записана, статус не успели сменить
	_, err = e.repo.SetPaymentSession(ctx, order.ID, "pay-1")
	require.NoError(t, err)

	_, err = e.svc.RequestPayment(ctx, order.ID)
	require.True(t, errors.Is(err, repository.ErrConflict))

	got, err := e.repo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, repository.StatusAwaitingPayment, got.Status)
}

func TestOrderService_ApplyEvent_TerminalIsNoop(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	id := e.placeAwaiting(t)

	out, err := e.svc.ApplyEvent(ctx, event("evt-fail", webhook.EventFailed))
	require.NoError(t, err)
	require.Equal(t, repository.StatusPaymentFailed, out.Status)
	require.Len(t, e.pendingTasks(t), 1)

	// другое событие, другой id: заказ уже терминальный
	out, err = e.svc.ApplyEvent(ctx, event("evt-ok", webhook.EventSucceeded))
	require.NoError(t, err)
	require.False(t, out.Applied)
	require.False(t, out.Duplicate)
	require.Equal(t, repository.StatusPaymentFailed, out.Status)

	order, err := e.svc.GetOrder(ctx, id)
	require.NoError(t, err)
	require.Equal(t, repository.StatusPaymentFailed, order.Status)

	tasks := e.pendingTasks(t)
	require.Len(t, tasks, 1)
	require.Equal(t, repository.StatusPaymentFailed, tasks[0].Status)
}

func TestOrderService_ApplyEvent_ConcurrentConflictingEvents(t *testing.T) {
	for round := 0; round < 20; round++ {
		t.Run(fmt.Sprintf("round %d", round), func(t *testing.T) {
			ctx := context.Background()
			e := newEnv(t)
			id := e.placeAwaiting(t)

			events := []webhook.PaymentEvent{
				event("evt-ok", webhook.EventSucceeded),
				event("evt-fail", webhook.EventFailed),
				event("evt-ok", webhook.EventSucceeded),
				event("evt-cancel", webhook.EventCanceled),
			}

			var (
				wg      sync.WaitGroup
				mu      sync.Mutex
				applied int
			)
			for _, ev := range events {
				wg.Add(1)
				go func(ev webhook.PaymentEvent) {
					defer wg.Done()
					out, err := e.svc.ApplyEvent(ctx, ev)
					if !assertNoError(t, err) {
						return
					}
					if out.Applied {
						mu.Lock()
						applied++
						mu.Unlock()
					}
				}(ev)
			}
			wg.Wait()

			require.Equal(t, 1, applied)

			order, err := e.svc.GetOrder(ctx, id)
			require.NoError(t, err)
			require.True(t, order.Status.IsTerminal())

			tasks := e.pendingTasks(t)
			require.Len(t, tasks, 1)
			require.Equal(t, order.Status, tasks[0].Status)
		})
	}
}

func assertNoError(t *testing.T, err error) bool {
	t.Helper()
	if err != nil {
		t.Errorf("unexpected error: %v", err)
		return false
	}
	return true
}

func TestOrderService_ApplyEvent_UnknownSession(t *testing.T) {
	e := newEnv(t)

	_, err := e.svc.ApplyEvent(context.Background(), webhook.PaymentEvent{
		SessionID: "missing", Type: webhook.EventSucceeded, ProviderEventID: "evt-1",
	})
	require.True(t, errors.Is(err, repository.ErrNotFound), "Expected ErrNotFound, got: %v", err)
}

func TestOrderService_ApplyEvent_BeforeAwaitingPaymentConflicts(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	order, err := e.repo.Create(ctx, repository.NewOrder{
		Items:       []repository.OrderItem{{Name: "Cola", Quantity: 1}},
		TotalAmount: decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	_, err = e.repo.SetPaymentSession(ctx, order.ID, "pay-1")
	require.NoError(t, err)

	_, err = e.svc.ApplyEvent(ctx, event("evt-1", webhook.EventSucceeded))
	require.True(t, errors.Is(err, repository.ErrConflict))

	// событие не помечено обработанным: повторная доставка после перехода применится
	_, err = e.repo.UpdateStatus(ctx, order.ID, repository.StatusAwaitingPayment, repository.StatusCreated)
	require.NoError(t, err)

	out, err := e.svc.ApplyEvent(ctx, event("evt-1", webhook.EventSucceeded))
	require.NoError(t, err)
	require.True(t, out.Applied)
}

func TestOrderService_ApplyEvent_Collaborators(t *testing.T) {
	order := repository.Order{
		ID:               1,
		PaymentSessionID: "pay-1",
		Status:           repository.StatusAwaitingPayment,
		TotalAmount:      decimal.NewFromInt(1500),
	}
	paid := order
	paid.Status = repository.StatusPaid

	tests := []struct {
		name      string
		setup     func(ctx context.Context, orders *repoMocks.OrderRepository, events *repoMocks.ProcessedEventsStore, notifier *mocks.Notifier)
		wantErr   bool
		wantApply bool
	}{
		{
			name: "dedup store unavailable",
			setup: func(ctx context.Context, orders *repoMocks.OrderRepository, events *repoMocks.ProcessedEventsStore, notifier *mocks.Notifier) {
				events.On("IsProcessed", ctx, "evt-1").Return(false, errors.New("redis down")).Once()
			},
			wantErr: true,
		},
		{
			name: "store error on update is surfaced",
			setup: func(ctx context.Context, orders *repoMocks.OrderRepository, events *repoMocks.ProcessedEventsStore, notifier *mocks.Notifier) {
				events.On("IsProcessed", ctx, "evt-1").Return(false, nil).Once()
				orders.On("GetByPaymentSession", ctx, "pay-1").Return(order, nil).Once()
				orders.On("UpdateStatus", ctx, int64(1), repository.StatusPaid, repository.StatusAwaitingPayment).
					Return(repository.Order{}, errors.New("connection refused")).Once()
			},
			wantErr: true,
		},
		{
			name: "enqueue failure keeps event unprocessed",
			setup: func(ctx context.Context, orders *repoMocks.OrderRepository, events *repoMocks.ProcessedEventsStore, notifier *mocks.Notifier) {
				events.On("IsProcessed", ctx, "evt-1").Return(false, nil).Once()
				orders.On("GetByPaymentSession", ctx, "pay-1").Return(order, nil).Once()
				orders.On("UpdateStatus", ctx, int64(1), repository.StatusPaid, repository.StatusAwaitingPayment).Return(paid, nil).Once()
				notifier.On("Enqueue", ctx, int64(1), repository.StatusPaid).Return(false, errors.New("disk full")).Once()
			},
			wantErr: true,
		},
		{
			name: "terminal order re-enqueues notification",
			setup: func(ctx context.Context, orders *repoMocks.OrderRepository, events *repoMocks.ProcessedEventsStore, notifier *mocks.Notifier) {
				events.On("IsProcessed", ctx, "evt-1").Return(false, nil).Once()
				orders.On("GetByPaymentSession", ctx, "pay-1").Return(paid, nil).Once()
				notifier.On("Enqueue", ctx, int64(1), repository.StatusPaid).Return(true, nil).Once()
				events.On("MarkProcessed", ctx, "evt-1", time.Hour).Return(nil).Once()
			},
		},
		{
			name: "terminal order with enqueue failure",
			setup: func(ctx context.Context, orders *repoMocks.OrderRepository, events *repoMocks.ProcessedEventsStore, notifier *mocks.Notifier) {
				events.On("IsProcessed", ctx, "evt-1").Return(false, nil).Once()
				orders.On("GetByPaymentSession", ctx, "pay-1").Return(paid, nil).Once()
				notifier.On("Enqueue", ctx, int64(1), repository.StatusPaid).Return(false, errors.New("disk full")).Once()
			},
			wantErr: true,
		},
		{
			name: "mark processed failure is logged only",
			setup: func(ctx context.Context, orders *repoMocks.OrderRepository, events *repoMocks.ProcessedEventsStore, notifier *mocks.Notifier) {
				events.On("IsProcessed", ctx, "evt-1").Return(false, nil).Once()
				orders.On("GetByPaymentSession", ctx, "pay-1").Return(order, nil).Once()
				orders.On("UpdateStatus", ctx, int64(1), repository.StatusPaid, repository.StatusAwaitingPayment).Return(paid, nil).Once()
				notifier.On("Enqueue", ctx, int64(1), repository.StatusPaid).Return(true, nil).Once()
				events.On("MarkProcessed", ctx, "evt-1", time.Hour).Return(errors.New("redis down")).Once()
			},
			wantApply: true,
		},
		{
			name: "lost race resolves to success",
			setup: func(ctx context.Context, orders *repoMocks.OrderRepository, events *repoMocks.ProcessedEventsStore, notifier *mocks.Notifier) {
				events.On("IsProcessed", ctx, "evt-1").Return(false, nil).Once()
				orders.On("GetByPaymentSession", ctx, "pay-1").Return(order, nil).Once()
				orders.On("UpdateStatus", ctx, int64(1), repository.StatusPaid, repository.StatusAwaitingPayment).
					Return(repository.Order{}, repository.ErrConflict).Once()
				orders.On("GetByID", ctx, int64(1)).Return(paid, nil).Once()
				// победитель мог ещё не поставить задачу; повторная постановка идемпотентна
				notifier.On("Enqueue", ctx, int64(1), repository.StatusPaid).Return(false, nil).Once()
				events.On("MarkProcessed", ctx, "evt-1", time.Hour).Return(nil).Once()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			ctx := context.Background()
			orders := repoMocks.NewOrderRepository(t)
			events := repoMocks.NewProcessedEventsStore(t)
			notifier := mocks.NewNotifier(t)
			tt.setup(ctx, orders, events, notifier)

			svc := service.NewOrderService(zap.NewNop(), orders, events, mocks.NewPaymentGateway(t), notifier, nil,
				service.Config{EventTTL: time.Hour})

			// Act
			out, err := svc.ApplyEvent(ctx, event("evt-1", webhook.EventSucceeded))

			// Assert
			if tt.wantErr {
				require.Error(t, err)
				require.Nil(t, out)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantApply, out.Applied)
			require.Equal(t, repository.StatusPaid, out.Status)
		})
	}
}

// failOnceNotifier отказывает на первом Enqueue, дальше передаёт вызовы Dispatcher'у
type failOnceNotifier struct {
	next   service.Notifier
	mu     sync.Mutex
	failed bool
	calls  int
}

func (n *failOnceNotifier) Enqueue(ctx context.Context, orderID int64, status repository.OrderStatus) (bool, error) {
	n.mu.Lock()
	n.calls++
	first := !n.failed
	n.failed = true
	n.mu.Unlock()

	if first {
		return false, errors.New("notification store unavailable")
	}
	return n.next.Enqueue(ctx, orderID, status)
}

func TestOrderService_ApplyEvent_RedeliveryRestoresLostNotification(t *testing.T) {
	// Arrange
	ctx := context.Background()
	e := newEnv(t)
	notifier := &failOnceNotifier{next: e.dispatcher}
	e.svc = service.NewOrderService(zap.NewNop(), e.repo, memory.NewProcessedEventsStore(), e.gateway, notifier, nil,
		service.Config{GatewayTimeout: time.Second, EventTTL: time.Hour})
	orderID := e.placeAwaiting(t)

	// Act: первая доставка переводит заказ, но постановка уведомления падает
	_, err := e.svc.ApplyEvent(ctx, event("evt-1", webhook.EventSucceeded))
	require.Error(t, err)

	order, err := e.svc.GetOrder(ctx, orderID)
	require.NoError(t, err)
	require.Equal(t, repository.StatusPaid, order.Status)
	require.Empty(t, e.pendingTasks(t))

	// Act: повтор того же события и новое событие с другим id
	retried, err := e.svc.ApplyEvent(ctx, event("evt-1", webhook.EventSucceeded))
	require.NoError(t, err)
	again, err := e.svc.ApplyEvent(ctx, event("evt-2", webhook.EventSucceeded))
	require.NoError(t, err)

	// Assert
	require.False(t, retried.Applied)
	require.Equal(t, repository.StatusPaid, retried.Status)
	require.False(t, again.Applied)
	require.Equal(t, 3, notifier.calls)

	tasks := e.pendingTasks(t)
	require.Len(t, tasks, 1)
	require.Equal(t, orderID, tasks[0].OrderID)
	require.Equal(t, repository.StatusPaid, tasks[0].Status)

	// evt-1 теперь помечен обработанным
	dup, err := e.svc.ApplyEvent(ctx, event("evt-1", webhook.EventSucceeded))
	require.NoError(t, err)
	require.True(t, dup.Duplicate)
}

func TestOrderService_SyncPayment(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	id := e.placeAwaiting(t)

	e.gateway.On("GetPaymentStatus", mock.Anything, "pay-1").Return(service.PaymentPending, nil).Once()
	_, err := e.svc.SyncPayment(ctx, "pay-1")
	require.True(t, errors.Is(err, service.ErrPaymentPending))

	e.gateway.On("GetPaymentStatus", mock.Anything, "pay-1").Return(service.PaymentSucceeded, nil).Once()
	out, err := e.svc.SyncPayment(ctx, "pay-1")
	require.NoError(t, err)
	require.True(t, out.Applied)
	require.Equal(t, id, out.OrderID)
	require.Equal(t, repository.StatusPaid, out.Status)

	// webhook после синхронизации: no-op, уведомление одно
	out, err = e.svc.ApplyEvent(ctx, event("evt-1", webhook.EventSucceeded))
	require.NoError(t, err)
	require.False(t, out.Applied)
	require.Len(t, e.pendingTasks(t), 1)
}

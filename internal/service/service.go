package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shestoi/yookassa-checkout/internal/metrics"
	"github.com/shestoi/yookassa-checkout/internal/repository"
	"github.com/shestoi/yookassa-checkout/internal/webhook"
	"github.com/shestoi/yookassa-checkout/platform/observability"
)

// Config параметры OrderService
type Config struct {
	// GatewayTimeout таймаут одного вызова платёжного шлюза
	GatewayTimeout time.Duration
	// EventTTL сколько помнить id обработанных событий провайдера
	EventTTL time.Duration
}

// OrderService ведёт заказ через платёжный lifecycle:
// created -> awaiting_payment -> paid | payment_failed | canceled.
// Все изменения статуса идут через compare-and-set репозитория.
type OrderService struct {
	logger   *zap.Logger
	orders   repository.OrderRepository
	events   repository.ProcessedEventsStore
	gateway  PaymentGateway
	notifier Notifier
	metrics  *metrics.Metrics
	cfg      Config
}

// NewOrderService создаёт OrderService
func NewOrderService(
	logger *zap.Logger,
	orders repository.OrderRepository,
	events repository.ProcessedEventsStore,
	gateway PaymentGateway,
	notifier Notifier,
	m *metrics.Metrics,
	cfg Config,
) *OrderService {
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 10 * time.Second
	}
	if cfg.EventTTL <= 0 {
		cfg.EventTTL = 72 * time.Hour
	}
	return &OrderService{
		logger:   logger,
		orders:   orders,
		events:   events,
		gateway:  gateway,
		notifier: notifier,
		metrics:  m,
		cfg:      cfg,
	}
}

// PlaceOrderInput данные нового заказа
type PlaceOrderInput struct {
	Email           string
	Phone           string
	DeliveryAddress string
	OrderTime       string
	DeliveryTime    string
	Items           []repository.OrderItem
	TotalAmount     decimal.Decimal
}

// PlaceOrderOutput результат оформления заказа
type PlaceOrderOutput struct {
	OrderID    int64
	PaymentURL string
	Status     repository.OrderStatus
}

// PaymentSessionOutput результат запроса платёжной сессии
type PaymentSessionOutput struct {
	OrderID    int64
	SessionID  string
	PaymentURL string
	Status     repository.OrderStatus
}

// ApplyEventOutput результат применения события провайдера
type ApplyEventOutput struct {
	OrderID int64
	Status  repository.OrderStatus
	// Applied true, если именно этот вызов перевёл заказ в Status
	Applied bool
	// Duplicate событие с этим id уже обрабатывалось
	Duplicate bool
}

// PlaceOrder сохраняет заказ и запрашивает платёж.
// При ошибке шлюза заказ остаётся в created, возвращается *PaymentGatewayError с OrderID.
func (s *OrderService) PlaceOrder(ctx context.Context, input PlaceOrderInput) (*PlaceOrderOutput, error) {
	logger := observability.L(ctx, s.logger)

	order, err := s.orders.Create(ctx, repository.NewOrder{
		Email:           input.Email,
		Phone:           input.Phone,
		DeliveryAddress: input.DeliveryAddress,
		OrderTime:       input.OrderTime,
		DeliveryTime:    input.DeliveryTime,
		Items:           input.Items,
		TotalAmount:     input.TotalAmount,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	s.metrics.OrderCreated()

	logger.Info("order created",
		zap.Int64("order_id", order.ID),
		zap.Int("items", len(order.Items)),
		zap.String("total_amount", order.TotalAmount.StringFixed(repository.AmountScale)),
	)

	session, err := s.RequestPayment(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	return &PlaceOrderOutput{
		OrderID:    order.ID,
		PaymentURL: session.PaymentURL,
		Status:     session.Status,
	}, nil
}

// RequestPayment создаёт платёжную сессию для заказа в created.
// Повторный запрос для заказа с сессией возвращает repository.ErrConflict.
func (s *OrderService) RequestPayment(ctx context.Context, orderID int64) (*PaymentSessionOutput, error) {
	logger := observability.L(ctx, s.logger).With(zap.Int64("order_id", orderID))

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order %d: %w", orderID, err)
	}

	if order.PaymentSessionID != "" {
		// сессия записана, но переход не завершён (сбой между двумя записями): доводим статус
		if order.Status == repository.StatusCreated {
			if _, err := s.orders.UpdateStatus(ctx, order.ID, repository.StatusAwaitingPayment, repository.StatusCreated); err != nil &&
				!errors.Is(err, repository.ErrConflict) {
				return nil, fmt.Errorf("failed to finish payment transition of order %d: %w", orderID, err)
			}
		}
		return nil, fmt.Errorf("order %d already has payment session: %w", orderID, repository.ErrConflict)
	}
	if order.Status != repository.StatusCreated {
		return nil, fmt.Errorf("order %d is %s, expected %s: %w", orderID, order.Status, repository.StatusCreated, repository.ErrConflict)
	}

	gatewayCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	session, err := s.gateway.CreateSession(gatewayCtx, order.ID, order.TotalAmount)
	cancel()
	if err == nil && (session.ID == "" || session.ConfirmationURL == "") {
		err = errors.New("gateway returned empty payment session")
	}
	if err != nil {
		s.metrics.PaymentSession(metrics.ResultError)
		logger.Error("payment gateway failed, order stays created", zap.Error(err))
		return nil, &PaymentGatewayError{OrderID: order.ID, Err: err}
	}
	s.metrics.PaymentSession(metrics.ResultOK)

	if _, err := s.orders.SetPaymentSession(ctx, order.ID, session.ID); err != nil {
		return nil, fmt.Errorf("failed to save payment session of order %d: %w", orderID, err)
	}
	updated, err := s.orders.UpdateStatus(ctx, order.ID, repository.StatusAwaitingPayment, repository.StatusCreated)
	if err != nil {
		return nil, fmt.Errorf("failed to move order %d to %s: %w", orderID, repository.StatusAwaitingPayment, err)
	}

	logger.Info("payment session created",
		zap.String("payment_id", session.ID),
		zap.String("status", string(updated.Status)),
	)

	return &PaymentSessionOutput{
		OrderID:    updated.ID,
		SessionID:  session.ID,
		PaymentURL: session.ConfirmationURL,
		Status:     updated.Status,
	}, nil
}

// GetOrder возвращает заказ по id
func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (repository.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return repository.Order{}, fmt.Errorf("failed to load order %d: %w", orderID, err)
	}
	return order, nil
}

// targetStatus терминальный статус заказа для события
func targetStatus(t webhook.EventType) (repository.OrderStatus, bool) {
	switch t {
	case webhook.EventSucceeded:
		return repository.StatusPaid, true
	case webhook.EventFailed:
		return repository.StatusPaymentFailed, true
	case webhook.EventCanceled:
		return repository.StatusCanceled, true
	default:
		return "", false
	}
}

// ApplyEvent применяет проверенное событие провайдера к заказу.
// Повторы и проигранные гонки CAS считаются успехом.
// Задача на уведомление ставится идемпотентно на каждом пути, где заказ уже в финальном статусе,
// поэтому сбой постановки лечится повторной доставкой события.
// Событие для заказа, который ещё в created, возвращает repository.ErrConflict, чтобы провайдер повторил доставку.
func (s *OrderService) ApplyEvent(ctx context.Context, event webhook.PaymentEvent) (*ApplyEventOutput, error) {
	logger := observability.L(ctx, s.logger).With(
		zap.String("event_id", event.ProviderEventID),
		zap.String("payment_id", event.SessionID),
		zap.String("event_type", string(event.Type)),
	)

	if event.ProviderEventID != "" {
		processed, err := s.events.IsProcessed(ctx, event.ProviderEventID)
		if err != nil {
			return nil, fmt.Errorf("failed to check event %s: %w", event.ProviderEventID, err)
		}
		if processed {
			logger.Info("payment event already processed (duplicate)")
			return &ApplyEventOutput{Duplicate: true}, nil
		}
	}

	target, ok := targetStatus(event.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %q", webhook.ErrUnsupportedEvent, event.Type)
	}

	order, err := s.orders.GetByPaymentSession(ctx, event.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find order for payment %s: %w", event.SessionID, err)
	}
	logger = logger.With(zap.Int64("order_id", order.ID))

	if order.Status.IsTerminal() {
		logger.Info("order already in terminal status, event ignored", zap.String("status", string(order.Status)))
		if err := s.ensureNotification(ctx, order); err != nil {
			return nil, err
		}
		s.markProcessed(ctx, logger, event)
		return &ApplyEventOutput{OrderID: order.ID, Status: order.Status}, nil
	}
	if order.Status != repository.StatusAwaitingPayment {
		logger.Warn("payment event arrived before order awaits payment", zap.String("status", string(order.Status)))
		return nil, fmt.Errorf("order %d is %s: %w", order.ID, order.Status, repository.ErrConflict)
	}

	updated, err := s.orders.UpdateStatus(ctx, order.ID, target, repository.StatusAwaitingPayment)
	if err != nil {
		if !errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("failed to update order %d: %w", order.ID, err)
		}

		// проиграли гонку: кто-то уже перевёл заказ
		current, getErr := s.orders.GetByID(ctx, order.ID)
		if getErr != nil {
			return nil, fmt.Errorf("failed to reload order %d: %w", order.ID, getErr)
		}
		if !current.Status.IsTerminal() {
			return nil, fmt.Errorf("order %d is %s: %w", order.ID, current.Status, err)
		}

		logger.Info("lost status race, treating as duplicate", zap.String("status", string(current.Status)))
		if err := s.ensureNotification(ctx, current); err != nil {
			return nil, err
		}
		s.markProcessed(ctx, logger, event)
		return &ApplyEventOutput{OrderID: current.ID, Status: current.Status}, nil
	}

	logger.Info("order status changed", zap.String("status", string(updated.Status)))

	// статус уже сохранён; при ошибке событие не помечается обработанным,
	// повторная доставка пройдёт через ветку финального статуса и поставит задачу
	if err := s.ensureNotification(ctx, updated); err != nil {
		logger.Error("failed to enqueue notification", zap.Error(err))
		return nil, err
	}

	s.markProcessed(ctx, logger, event)

	return &ApplyEventOutput{
		OrderID: updated.ID,
		Status:  updated.Status,
		Applied: true,
	}, nil
}

// SyncPayment запрашивает статус платежа у провайдера и применяет его, если он финальный.
// Нужен, когда покупатель вернулся на return_url раньше webhook'а.
func (s *OrderService) SyncPayment(ctx context.Context, sessionID string) (*ApplyEventOutput, error) {
	gatewayCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	status, err := s.gateway.GetPaymentStatus(gatewayCtx, sessionID)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to get payment %s status: %w", sessionID, err)
	}

	var eventType webhook.EventType
	switch status {
	case PaymentSucceeded:
		eventType = webhook.EventSucceeded
	case PaymentCanceled:
		eventType = webhook.EventCanceled
	default:
		return nil, fmt.Errorf("payment %s is %s: %w", sessionID, status, ErrPaymentPending)
	}

	return s.ApplyEvent(ctx, webhook.PaymentEvent{
		SessionID:  sessionID,
		Type:       eventType,
		ReceivedAt: time.Now().UTC(),
	})
}

// ensureNotification ставит задачу на уведомление о текущем финальном статусе заказа.
// Повторный вызов не создаёт вторую задачу.
func (s *OrderService) ensureNotification(ctx context.Context, order repository.Order) error {
	if _, err := s.notifier.Enqueue(ctx, order.ID, order.Status); err != nil {
		return fmt.Errorf("failed to enqueue notification for order %d: %w", order.ID, err)
	}
	return nil
}

// markProcessed ошибка хранилища dedup не отменяет уже применённое событие
func (s *OrderService) markProcessed(ctx context.Context, logger *zap.Logger, event webhook.PaymentEvent) {
	if event.ProviderEventID == "" {
		return
	}
	if err := s.events.MarkProcessed(ctx, event.ProviderEventID, s.cfg.EventTTL); err != nil {
		logger.Error("failed to mark payment event processed", zap.Error(err))
	}
}

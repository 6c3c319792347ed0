package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/shestoi/yookassa-checkout/internal/metrics"
	"github.com/shestoi/yookassa-checkout/internal/repository"
	"github.com/shestoi/yookassa-checkout/internal/templates"
)

// Config параметры доставки
type Config struct {
	ChatID       string
	MaxAttempts  int
	BackoffBase  time.Duration
	BackoffMax   time.Duration
	PollInterval time.Duration
	BatchSize    int
}

// Dispatcher доставляет уведомления о смене статуса заказа at-least-once.
// Задачи сначала сохраняются в Store, затем цикл Start отправляет их с ретраями.
type Dispatcher struct {
	logger   *zap.Logger
	store    Store
	sender   Sender
	renderer *templates.Renderer
	alerter  Alerter
	sleeper  Sleeper
	metrics  *metrics.Metrics
	cfg      Config
	wake     chan struct{}
}

// NewDispatcher создаёт Dispatcher с DefaultSleeper
func NewDispatcher(
	logger *zap.Logger,
	store Store,
	sender Sender,
	renderer *templates.Renderer,
	alerter Alerter,
	m *metrics.Metrics,
	cfg Config,
) *Dispatcher {
	return NewDispatcherWithSleeper(logger, store, sender, renderer, alerter, m, cfg, DefaultSleeper{})
}

// NewDispatcherWithSleeper позволяет подменить Sleeper (для тестов)
func NewDispatcherWithSleeper(
	logger *zap.Logger,
	store Store,
	sender Sender,
	renderer *templates.Renderer,
	alerter Alerter,
	m *metrics.Metrics,
	cfg Config,
	sleeper Sleeper,
) *Dispatcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 30 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}

	return &Dispatcher{
		logger:   logger,
		store:    store,
		sender:   sender,
		renderer: renderer,
		alerter:  alerter,
		sleeper:  sleeper,
		metrics:  m,
		cfg:      cfg,
		wake:     make(chan struct{}, 1),
	}
}

// Enqueue ставит задачу на уведомление о status, если оно ещё не доставлено и не стоит в очереди.
// Возвращает true, если задача создана.
func (d *Dispatcher) Enqueue(ctx context.Context, orderID int64, status repository.OrderStatus) (bool, error) {
	inserted, err := d.store.EnqueueNotification(ctx, orderID, status)
	if err != nil {
		return false, fmt.Errorf("enqueue notification for order %d: %w", orderID, err)
	}

	if !inserted {
		d.logger.Debug("notification already queued or delivered",
			zap.Int64("order_id", orderID),
			zap.String("status", string(status)),
		)
		return false, nil
	}

	// не блокируемся: одного сигнала достаточно, цикл заберёт весь batch
	select {
	case d.wake <- struct{}{}:
	default:
	}

	d.logger.Info("notification enqueued",
		zap.Int64("order_id", orderID),
		zap.String("status", string(status)),
	)
	return true, nil
}

// Start обрабатывает очередь по тикеру и по сигналу Enqueue, пока ctx не отменён.
// Pending задачи, оставшиеся с прошлого запуска, отправляются сразу.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.logger.Info("starting notification dispatcher",
		zap.Int("batch_size", d.cfg.BatchSize),
		zap.Duration("poll_interval", d.cfg.PollInterval),
		zap.Int("max_attempts", d.cfg.MaxAttempts),
	)

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	if err := d.ProcessPending(ctx); err != nil && ctx.Err() == nil {
		d.logger.Error("failed to process initial notifications", zap.Error(err))
	}

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("notification dispatcher stopped")
			return nil
		case <-ticker.C:
		case <-d.wake:
		}

		if err := d.ProcessPending(ctx); err != nil && ctx.Err() == nil {
			d.logger.Error("failed to process notifications", zap.Error(err))
		}
	}
}

// ProcessPending отправляет pending задачи batch за batch'ем, пока очередь не опустеет
func (d *Dispatcher) ProcessPending(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		tasks, err := d.store.PendingNotifications(ctx, d.cfg.BatchSize)
		if err != nil {
			return fmt.Errorf("failed to get pending notifications: %w", err)
		}
		if len(tasks) == 0 {
			return nil
		}

		progressed := false
		for _, task := range tasks {
			if err := d.deliver(ctx, task); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				// задача осталась pending, попробуем на следующем тике
				d.logger.Error("failed to process notification",
					zap.Error(err),
					zap.Int64("task_id", task.ID),
					zap.Int64("order_id", task.OrderID),
				)
				continue
			}
			progressed = true
		}

		if !progressed || len(tasks) < d.cfg.BatchSize {
			return nil
		}
	}
}

// deliver отправляет одну задачу с ретраями и фиксирует исход в Store.
// Ошибка означает, что исход не зафиксирован и задача остаётся pending.
func (d *Dispatcher) deliver(ctx context.Context, task repository.NotificationTask) error {
	logger := d.logger.With(
		zap.Int64("task_id", task.ID),
		zap.Int64("order_id", task.OrderID),
		zap.String("status", string(task.Status)),
	)

	order, err := d.store.GetByID(ctx, task.OrderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return d.fail(ctx, logger, task, 0, permanentError{err: err})
		}
		return fmt.Errorf("load order: %w", err)
	}

	if order.HasNotified(task.Status) {
		logger.Info("status already notified, closing task")
		return d.markSent(ctx, task.ID)
	}

	text, err := d.renderer.Render(task.Status, templates.DataFromOrder(order))
	if err != nil {
		return d.fail(ctx, logger, task, 0, permanentError{err: err})
	}

	var lastErr error
	attempt := 0
	for attempt < d.cfg.MaxAttempts {
		attempt++

		lastErr = d.sender.Send(ctx, d.cfg.ChatID, text)
		if lastErr == nil {
			if err := d.markSent(ctx, task.ID); err != nil {
				return err
			}
			d.metrics.NotificationFinished(metrics.ResultDelivered, attempt)
			logger.Info("notification delivered", zap.Int("attempt", attempt))
			return nil
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if isPermanent(lastErr) {
			logger.Warn("permanent notification error, not retrying", zap.Error(lastErr), zap.Int("attempt", attempt))
			break
		}

		logger.Warn("failed to send notification",
			zap.Error(lastErr),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", d.cfg.MaxAttempts),
		)

		if attempt < d.cfg.MaxAttempts {
			if err := d.sleeper.Sleep(ctx, d.backoff(attempt)); err != nil {
				return err
			}
		}
	}

	return d.fail(ctx, logger, task, attempt, lastErr)
}

// fail фиксирует задачу как failed и передаёт DeliveryFailedError в Alerter
func (d *Dispatcher) fail(ctx context.Context, logger *zap.Logger, task repository.NotificationTask, attempts int, cause error) error {
	if err := d.store.MarkNotificationFailed(ctx, task.ID, attempts, cause.Error()); err != nil {
		return fmt.Errorf("mark notification failed: %w", err)
	}
	d.metrics.NotificationFinished(metrics.ResultFailed, attempts)

	failure := &DeliveryFailedError{
		TaskID:   task.ID,
		OrderID:  task.OrderID,
		Status:   task.Status,
		Attempts: attempts,
		Err:      cause,
	}
	logger.Error("notification delivery failed", zap.Error(failure))

	if d.alerter != nil {
		if err := d.alerter.Alert(ctx, failure); err != nil {
			logger.Error("failed to raise delivery alert", zap.Error(err))
		}
	}
	return nil
}

func (d *Dispatcher) markSent(ctx context.Context, taskID int64) error {
	if err := d.store.MarkNotificationSent(ctx, taskID); err != nil {
		return fmt.Errorf("mark notification sent: %w", err)
	}
	return nil
}

// backoff base * 2^(attempt-1), не больше BackoffMax
func (d *Dispatcher) backoff(attempt int) time.Duration {
	delay := d.cfg.BackoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= d.cfg.BackoffMax {
			return d.cfg.BackoffMax
		}
	}
	if delay > d.cfg.BackoffMax {
		return d.cfg.BackoffMax
	}
	return delay
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/shestoi/yookassa-checkout/internal/repository"
)

// Repository реализует repository.Store используя PostgreSQL
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository создаёт PostgreSQL репозиторий поверх готового пула
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// querier общий интерфейс pool и tx
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Create сохраняет заказ и его items в одной транзакции
func (r *Repository) Create(ctx context.Context, in repository.NewOrder) (repository.Order, error) {
	if err := in.Validate(); err != nil {
		return repository.Order{}, err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return repository.Order{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx,
		`INSERT INTO orders (email, phone, delivery_address, order_time, delivery_time, total_amount, status)
		 VALUES ($1, $2, $3, $4, $5, $6::numeric, $7)
		 RETURNING id`,
		in.Email, in.Phone, in.DeliveryAddress, in.OrderTime, in.DeliveryTime,
		in.TotalAmount.String(), string(repository.StatusCreated)).Scan(&id)
	if err != nil {
		return repository.Order{}, fmt.Errorf("insert order: %w", err)
	}

	for i, item := range in.Items {
		_, err = tx.Exec(ctx,
			`INSERT INTO order_items (order_id, position, name, quantity) VALUES ($1, $2, $3, $4)`,
			id, i, item.Name, item.Quantity)
		if err != nil {
			return repository.Order{}, fmt.Errorf("insert order item: %w", err)
		}
	}

	order, err := loadOrder(ctx, tx, `WHERE id = $1`, id)
	if err != nil {
		return repository.Order{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return repository.Order{}, fmt.Errorf("commit: %w", err)
	}
	return order, nil
}

// GetByID собирает order, order_items и notified statuses в доменную модель
func (r *Repository) GetByID(ctx context.Context, id int64) (repository.Order, error) {
	return loadOrder(ctx, r.pool, `WHERE id = $1`, id)
}

// GetByPaymentSession ищет заказ по payment_session_id
func (r *Repository) GetByPaymentSession(ctx context.Context, sessionID string) (repository.Order, error) {
	return loadOrder(ctx, r.pool, `WHERE payment_session_id = $1`, sessionID)
}

// UpdateStatus compare-and-set: UPDATE ... WHERE status = expected
func (r *Repository) UpdateStatus(ctx context.Context, id int64, newStatus, expected repository.OrderStatus) (repository.Order, error) {
	if !expected.CanTransition(newStatus) {
		if err := r.ensureExists(ctx, id); err != nil {
			return repository.Order{}, err
		}
		return repository.Order{}, repository.ErrConflict
	}

	var updatedID int64
	err := r.pool.QueryRow(ctx,
		`UPDATE orders SET status = $1, updated_at = now()
		 WHERE id = $2 AND status = $3
		 RETURNING id`,
		string(newStatus), id, string(expected)).Scan(&updatedID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if err := r.ensureExists(ctx, id); err != nil {
				return repository.Order{}, err
			}
			return repository.Order{}, repository.ErrConflict
		}
		return repository.Order{}, fmt.Errorf("update status of order %d: %w", id, err)
	}

	return r.GetByID(ctx, id)
}

// SetPaymentSession проставляет сессию, только если она ещё не задана
func (r *Repository) SetPaymentSession(ctx context.Context, id int64, sessionID string) (repository.Order, error) {
	var updatedID int64
	err := r.pool.QueryRow(ctx,
		`UPDATE orders SET payment_session_id = $1, updated_at = now()
		 WHERE id = $2 AND payment_session_id IS NULL
		 RETURNING id`,
		sessionID, id).Scan(&updatedID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if err := r.ensureExists(ctx, id); err != nil {
				return repository.Order{}, err
			}
			return repository.Order{}, repository.ErrConflict
		}
		if isUniqueViolation(err) {
			return repository.Order{}, repository.ErrConflict
		}
		return repository.Order{}, fmt.Errorf("set payment session of order %d: %w", id, err)
	}

	return r.GetByID(ctx, id)
}

// EnqueueNotification вставляет pending задачу одним INSERT ... SELECT с проверкой notified statuses.
// UNIQUE (order_id, status) закрывает гонку параллельных вставок.
func (r *Repository) EnqueueNotification(ctx context.Context, orderID int64, status repository.OrderStatus) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO notification_tasks (order_id, status, state)
		 SELECT o.id, $2, $3
		 FROM orders o
		 WHERE o.id = $1
		   AND NOT EXISTS (
		       SELECT 1 FROM order_notified_statuses n WHERE n.order_id = o.id AND n.status = $2
		   )
		 ON CONFLICT (order_id, status) DO NOTHING`,
		orderID, string(status), string(repository.NotificationPending))
	if err != nil {
		return false, fmt.Errorf("enqueue notification for order %d: %w", orderID, err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	if err := r.ensureExists(ctx, orderID); err != nil {
		return false, err
	}
	return false, nil
}

// PendingNotifications pending задачи, старые первыми
func (r *Repository) PendingNotifications(ctx context.Context, limit int) ([]repository.NotificationTask, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, order_id, status, state, attempts, last_error, created_at, updated_at
		 FROM notification_tasks
		 WHERE state = $1
		 ORDER BY id
		 LIMIT $2`,
		string(repository.NotificationPending), limit)
	if err != nil {
		return nil, fmt.Errorf("query pending notifications: %w", err)
	}
	defer rows.Close()

	tasks := make([]repository.NotificationTask, 0)
	for rows.Next() {
		var (
			t             repository.NotificationTask
			status, state string
		)
		if err := rows.Scan(&t.ID, &t.OrderID, &status, &state, &t.Attempts, &t.LastError, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan notification task: %w", err)
		}
		t.Status = repository.OrderStatus(status)
		t.State = repository.NotificationState(state)
		tasks = append(tasks, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notification tasks: %w", err)
	}
	return tasks, nil
}

// MarkNotificationSent sent + запись в order_notified_statuses в одной транзакции
func (r *Repository) MarkNotificationSent(ctx context.Context, taskID int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		orderID int64
		status  string
	)
	err = tx.QueryRow(ctx,
		`UPDATE notification_tasks SET state = $1, updated_at = now()
		 WHERE id = $2 AND state = $3
		 RETURNING order_id, status`,
		string(repository.NotificationSent), taskID, string(repository.NotificationPending)).Scan(&orderID, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return r.taskMissingOrConflict(ctx, tx, taskID)
		}
		return fmt.Errorf("mark notification %d sent: %w", taskID, err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO order_notified_statuses (order_id, status) VALUES ($1, $2)
		 ON CONFLICT (order_id, status) DO NOTHING`,
		orderID, status)
	if err != nil {
		return fmt.Errorf("record notified status: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// MarkNotificationFailed failed с числом попыток и последней ошибкой
func (r *Repository) MarkNotificationFailed(ctx context.Context, taskID int64, attempts int, lastErr string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE notification_tasks SET state = $1, attempts = $2, last_error = $3, updated_at = now()
		 WHERE id = $4 AND state = $5`,
		string(repository.NotificationFailed), attempts, lastErr, taskID, string(repository.NotificationPending))
	if err != nil {
		return fmt.Errorf("mark notification %d failed: %w", taskID, err)
	}
	if tag.RowsAffected() == 0 {
		return r.taskMissingOrConflict(ctx, r.pool, taskID)
	}
	return nil
}

// Ping проверка подключения для /health
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close закрывает пул
func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

func (r *Repository) ensureExists(ctx context.Context, id int64) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check order %d: %w", id, err)
	}
	if !exists {
		return repository.ErrNotFound
	}
	return nil
}

func (r *Repository) taskMissingOrConflict(ctx context.Context, q querier, taskID int64) error {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM notification_tasks WHERE id = $1)`, taskID).Scan(&exists); err != nil {
		return fmt.Errorf("check notification task %d: %w", taskID, err)
	}
	if !exists {
		return repository.ErrNotFound
	}
	return repository.ErrConflict
}

func loadOrder(ctx context.Context, q querier, where string, arg any) (repository.Order, error) {
	var (
		order     repository.Order
		amount    string
		status    string
		createdAt time.Time
		updatedAt time.Time
	)
	err := q.QueryRow(ctx,
		`SELECT id, email, phone, delivery_address, order_time, delivery_time, total_amount::text,
		        COALESCE(payment_session_id, ''), status, created_at, updated_at
		 FROM orders `+where,
		arg).Scan(&order.ID, &order.Email, &order.Phone, &order.DeliveryAddress, &order.OrderTime,
		&order.DeliveryTime, &amount, &order.PaymentSessionID, &status, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.Order{}, repository.ErrNotFound
		}
		return repository.Order{}, fmt.Errorf("select order: %w", err)
	}

	order.TotalAmount, err = decimal.NewFromString(amount)
	if err != nil {
		return repository.Order{}, fmt.Errorf("parse amount of order %d: %w", order.ID, err)
	}
	order.Status = repository.OrderStatus(status)
	order.CreatedAt = createdAt.UTC()
	order.UpdatedAt = updatedAt.UTC()

	rows, err := q.Query(ctx,
		`SELECT name, quantity FROM order_items WHERE order_id = $1 ORDER BY position`, order.ID)
	if err != nil {
		return repository.Order{}, fmt.Errorf("select order items: %w", err)
	}
	order.Items = make([]repository.OrderItem, 0)
	for rows.Next() {
		var item repository.OrderItem
		if err := rows.Scan(&item.Name, &item.Quantity); err != nil {
			rows.Close()
			return repository.Order{}, fmt.Errorf("scan order item: %w", err)
		}
		order.Items = append(order.Items, item)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return repository.Order{}, fmt.Errorf("iterate order items: %w", err)
	}

	rows, err = q.Query(ctx,
		`SELECT status FROM order_notified_statuses WHERE order_id = $1 ORDER BY notified_at, status`, order.ID)
	if err != nil {
		return repository.Order{}, fmt.Errorf("select notified statuses: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return repository.Order{}, fmt.Errorf("scan notified status: %w", err)
		}
		order.NotifiedStatuses = append(order.NotifiedStatuses, repository.OrderStatus(s))
	}
	if err = rows.Err(); err != nil {
		return repository.Order{}, fmt.Errorf("iterate notified statuses: %w", err)
	}

	return order, nil
}

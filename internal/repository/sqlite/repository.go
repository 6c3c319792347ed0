// Package sqlite хранилище заказов в файле SQLite (local окружение, orders.db).
// Одно соединение: все записи сериализуются, CAS делается через UPDATE ... WHERE status = ?.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shestoi/yookassa-checkout/internal/repository"

	// pure-Go драйвер, без CGO
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS orders (
    id                 INTEGER PRIMARY KEY AUTOINCREMENT,
    email              TEXT NOT NULL,
    phone              TEXT NOT NULL,
    delivery_address   TEXT NOT NULL,
    order_time         TEXT NOT NULL,
    delivery_time      TEXT NOT NULL,
    -- JSON массив [{"name": "...", "quantity": N}]
    items              TEXT NOT NULL,
    -- decimal строкой, чтобы не терять копейки
    total_amount       TEXT NOT NULL,
    payment_session_id TEXT UNIQUE,
    status             TEXT NOT NULL,
    -- JSON массив статусов, уведомление о которых доставлено
    notified_statuses  TEXT NOT NULL DEFAULT '[]',
    created_at         TEXT NOT NULL,
    updated_at         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS notification_tasks (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    order_id   INTEGER NOT NULL REFERENCES orders(id),
    status     TEXT    NOT NULL,
    state      TEXT    NOT NULL,
    attempts   INTEGER NOT NULL DEFAULT 0,
    last_error TEXT    NOT NULL DEFAULT '',
    created_at TEXT    NOT NULL,
    updated_at TEXT    NOT NULL,
    UNIQUE (order_id, status)
);

CREATE INDEX IF NOT EXISTS idx_notification_tasks_state ON notification_tasks(state, id);
`

const timeLayout = "2006-01-02T15:04:05.999999999Z"

const orderColumns = `id, email, phone, delivery_address, order_time, delivery_time, items, total_amount,
	COALESCE(payment_session_id, ''), status, notified_statuses, created_at, updated_at`

// Repository реализует repository.Store поверх SQLite
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// Open открывает (или создаёт) базу по пути и применяет схему.
//
//	repo, err := sqlite.Open("orders.db")
func Open(path string) (*Repository, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}

	return &Repository{db: db, now: time.Now}, nil
}

// Close закрывает соединение
func (r *Repository) Close() error {
	return r.db.Close()
}

// Ping проверка готовности
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

type itemRecord struct {
	Name     string `json:"name"`
	Quantity int32  `json:"quantity"`
}

// Create вставляет заказ со статусом created
func (r *Repository) Create(ctx context.Context, in repository.NewOrder) (repository.Order, error) {
	if err := in.Validate(); err != nil {
		return repository.Order{}, err
	}

	records := make([]itemRecord, 0, len(in.Items))
	for _, it := range in.Items {
		records = append(records, itemRecord{Name: it.Name, Quantity: it.Quantity})
	}
	items, err := json.Marshal(records)
	if err != nil {
		return repository.Order{}, fmt.Errorf("sqlite: encode items: %w", err)
	}

	now := r.timestamp()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO orders
			(email, phone, delivery_address, order_time, delivery_time, items, total_amount, status, created_at, updated_at)
		VALUES
			(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.Email, in.Phone, in.DeliveryAddress, in.OrderTime, in.DeliveryTime,
		string(items), in.TotalAmount.String(), string(repository.StatusCreated), now, now,
	)
	if err != nil {
		return repository.Order{}, fmt.Errorf("sqlite: insert order: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return repository.Order{}, fmt.Errorf("sqlite: last insert id: %w", err)
	}
	return r.GetByID(ctx, id)
}

// GetByID читает заказ
func (r *Repository) GetByID(ctx context.Context, id int64) (repository.Order, error) {
	return getOrder(ctx, r.db, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
}

// GetByPaymentSession читает заказ по уникальному payment_session_id
func (r *Repository) GetByPaymentSession(ctx context.Context, sessionID string) (repository.Order, error) {
	return getOrder(ctx, r.db, `SELECT `+orderColumns+` FROM orders WHERE payment_session_id = ?`, sessionID)
}

// UpdateStatus compare-and-set через условие на текущий статус
func (r *Repository) UpdateStatus(ctx context.Context, id int64, newStatus, expected repository.OrderStatus) (repository.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return repository.Order{}, fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	current, err := getOrder(ctx, tx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
	if err != nil {
		return repository.Order{}, err
	}
	if current.Status != expected || !expected.CanTransition(newStatus) {
		return repository.Order{}, repository.ErrConflict
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(newStatus), r.timestamp(), id, string(expected))
	if err != nil {
		return repository.Order{}, fmt.Errorf("sqlite: update status of order %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.Order{}, repository.ErrConflict
	}

	updated, err := getOrder(ctx, tx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
	if err != nil {
		return repository.Order{}, err
	}
	if err := tx.Commit(); err != nil {
		return repository.Order{}, fmt.Errorf("sqlite: commit: %w", err)
	}
	return updated, nil
}

// SetPaymentSession проставляет payment_session_id, только если он ещё пуст
func (r *Repository) SetPaymentSession(ctx context.Context, id int64, sessionID string) (repository.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return repository.Order{}, fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	current, err := getOrder(ctx, tx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
	if err != nil {
		return repository.Order{}, err
	}
	if current.PaymentSessionID != "" {
		return repository.Order{}, repository.ErrConflict
	}

	var taken int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders WHERE payment_session_id = ?`, sessionID).Scan(&taken); err != nil {
		return repository.Order{}, fmt.Errorf("sqlite: check session %q: %w", sessionID, err)
	}
	if taken > 0 {
		return repository.Order{}, repository.ErrConflict
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE orders SET payment_session_id = ?, updated_at = ? WHERE id = ? AND payment_session_id IS NULL`,
		sessionID, r.timestamp(), id)
	if err != nil {
		return repository.Order{}, fmt.Errorf("sqlite: set payment session of order %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.Order{}, repository.ErrConflict
	}

	updated, err := getOrder(ctx, tx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
	if err != nil {
		return repository.Order{}, err
	}
	if err := tx.Commit(); err != nil {
		return repository.Order{}, fmt.Errorf("sqlite: commit: %w", err)
	}
	return updated, nil
}

// EnqueueNotification проверяет notified_statuses и вставляет задачу в одной транзакции
func (r *Repository) EnqueueNotification(ctx context.Context, orderID int64, status repository.OrderStatus) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	order, err := getOrder(ctx, tx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, orderID)
	if err != nil {
		return false, err
	}
	if order.HasNotified(status) {
		return false, nil
	}

	now := r.timestamp()
	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO notification_tasks (order_id, status, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		orderID, string(status), string(repository.NotificationPending), now, now)
	if err != nil {
		return false, fmt.Errorf("sqlite: insert notification task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("sqlite: commit: %w", err)
	}
	return n == 1, nil
}

// PendingNotifications pending задачи по возрастанию id
func (r *Repository) PendingNotifications(ctx context.Context, limit int) ([]repository.NotificationTask, error) {
	if limit <= 0 {
		limit = -1 // без ограничения для SQLite
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, status, state, attempts, last_error, created_at, updated_at
		FROM notification_tasks
		WHERE state = ?
		ORDER BY id
		LIMIT ?`, string(repository.NotificationPending), limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query pending notifications: %w", err)
	}
	defer rows.Close()

	tasks := make([]repository.NotificationTask, 0)
	for rows.Next() {
		var (
			t                    repository.NotificationTask
			status, state        string
			createdAt, updatedAt string
		)
		if err := rows.Scan(&t.ID, &t.OrderID, &status, &state, &t.Attempts, &t.LastError, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan notification task: %w", err)
		}
		t.Status = repository.OrderStatus(status)
		t.State = repository.NotificationState(state)
		if t.CreatedAt, t.UpdatedAt, err = parseTimes(createdAt, updatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: decode timestamps of notification task %d: %w", t.ID, err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate notification tasks: %w", err)
	}
	return tasks, nil
}

// MarkNotificationSent задача sent и статус в notified_statuses, одной транзакцией
func (r *Repository) MarkNotificationSent(ctx context.Context, taskID int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	var (
		orderID int64
		status  string
	)
	if err := markTask(ctx, tx, taskID, repository.NotificationSent, nil, "", r.timestamp(), &orderID, &status); err != nil {
		return err
	}

	order, err := getOrder(ctx, tx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, orderID)
	if err != nil {
		return err
	}
	if !order.HasNotified(repository.OrderStatus(status)) {
		notified, err := json.Marshal(append(order.NotifiedStatuses, repository.OrderStatus(status)))
		if err != nil {
			return fmt.Errorf("sqlite: encode notified statuses: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE orders SET notified_statuses = ?, updated_at = ? WHERE id = ?`,
			string(notified), r.timestamp(), orderID); err != nil {
			return fmt.Errorf("sqlite: update notified statuses of order %d: %w", orderID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

// MarkNotificationFailed задача failed
func (r *Repository) MarkNotificationFailed(ctx context.Context, taskID int64, attempts int, lastErr string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	var (
		orderID int64
		status  string
	)
	if err := markTask(ctx, tx, taskID, repository.NotificationFailed, &attempts, lastErr, r.timestamp(), &orderID, &status); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

// markTask переводит pending задачу в state; attempts == nil оставляет счётчик как есть
func markTask(ctx context.Context, tx *sql.Tx, taskID int64, state repository.NotificationState,
	attempts *int, lastErr, now string, orderID *int64, status *string) error {
	var current string
	err := tx.QueryRowContext(ctx,
		`SELECT order_id, status, state FROM notification_tasks WHERE id = ?`, taskID).
		Scan(orderID, status, &current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return repository.ErrNotFound
		}
		return fmt.Errorf("sqlite: read notification task %d: %w", taskID, err)
	}
	if current != string(repository.NotificationPending) {
		return repository.ErrConflict
	}

	if attempts != nil {
		_, err = tx.ExecContext(ctx,
			`UPDATE notification_tasks SET state = ?, attempts = ?, last_error = ?, updated_at = ? WHERE id = ?`,
			string(state), *attempts, lastErr, now, taskID)
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE notification_tasks SET state = ?, updated_at = ? WHERE id = ?`,
			string(state), now, taskID)
	}
	if err != nil {
		return fmt.Errorf("sqlite: update notification task %d: %w", taskID, err)
	}
	return nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getOrder(ctx context.Context, q queryRower, query string, arg any) (repository.Order, error) {
	var (
		o                    repository.Order
		items, notified      string
		amount, status       string
		createdAt, updatedAt string
	)
	err := q.QueryRowContext(ctx, query, arg).Scan(
		&o.ID, &o.Email, &o.Phone, &o.DeliveryAddress, &o.OrderTime, &o.DeliveryTime,
		&items, &amount, &o.PaymentSessionID, &status, &notified, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return repository.Order{}, repository.ErrNotFound
		}
		return repository.Order{}, fmt.Errorf("sqlite: read order: %w", err)
	}

	var records []itemRecord
	if err := json.Unmarshal([]byte(items), &records); err != nil {
		return repository.Order{}, fmt.Errorf("sqlite: decode items of order %d: %w", o.ID, err)
	}
	o.Items = make([]repository.OrderItem, 0, len(records))
	for _, rec := range records {
		o.Items = append(o.Items, repository.OrderItem{Name: rec.Name, Quantity: rec.Quantity})
	}

	if err := json.Unmarshal([]byte(notified), &o.NotifiedStatuses); err != nil {
		return repository.Order{}, fmt.Errorf("sqlite: decode notified statuses of order %d: %w", o.ID, err)
	}

	o.TotalAmount, err = decimal.NewFromString(amount)
	if err != nil {
		return repository.Order{}, fmt.Errorf("sqlite: decode amount of order %d: %w", o.ID, err)
	}
	o.Status = repository.OrderStatus(status)
	o.CreatedAt, o.UpdatedAt, err = parseTimes(createdAt, updatedAt)
	if err != nil {
		return repository.Order{}, fmt.Errorf("sqlite: decode timestamps of order %d: %w", o.ID, err)
	}

	return o, nil
}

func parseTimes(createdAt, updatedAt string) (time.Time, time.Time, error) {
	created, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	updated, err := time.Parse(timeLayout, updatedAt)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return created, updated, nil
}

func (r *Repository) timestamp() string {
	return r.now().UTC().Format(timeLayout)
}

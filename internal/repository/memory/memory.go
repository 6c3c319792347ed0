package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shestoi/yookassa-checkout/internal/repository"
)

type taskKey struct {
	orderID int64
	status  repository.OrderStatus
}

// Repository реализует repository.Store в памяти процесса.
// Один мьютекс на все map'ы, держится только на время CAS в памяти.
type Repository struct {
	mu         sync.Mutex
	now        func() time.Time
	nextID     int64
	nextTaskID int64
	orders     map[int64]repository.Order
	sessions   map[string]int64
	tasks      map[int64]repository.NotificationTask
	taskKeys   map[taskKey]int64
}

// NewRepository создаёт пустой in-memory репозиторий
func NewRepository() *Repository {
	return &Repository{
		now:      time.Now,
		orders:   make(map[int64]repository.Order),
		sessions: make(map[string]int64),
		tasks:    make(map[int64]repository.NotificationTask),
		taskKeys: make(map[taskKey]int64),
	}
}

// Create сохраняет новый заказ со статусом created
func (r *Repository) Create(ctx context.Context, in repository.NewOrder) (repository.Order, error) {
	if err := in.Validate(); err != nil {
		return repository.Order{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	now := r.now().UTC()
	order := repository.Order{
		ID:              r.nextID,
		Email:           in.Email,
		Phone:           in.Phone,
		DeliveryAddress: in.DeliveryAddress,
		OrderTime:       in.OrderTime,
		DeliveryTime:    in.DeliveryTime,
		Items:           append([]repository.OrderItem(nil), in.Items...),
		TotalAmount:     in.TotalAmount,
		Status:          repository.StatusCreated,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	r.orders[order.ID] = order

	return order.Clone(), nil
}

// GetByID возвращает копию заказа
func (r *Repository) GetByID(ctx context.Context, id int64) (repository.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[id]
	if !ok {
		return repository.Order{}, repository.ErrNotFound
	}
	return order.Clone(), nil
}

// GetByPaymentSession ищет заказ по индексу сессий
func (r *Repository) GetByPaymentSession(ctx context.Context, sessionID string) (repository.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.sessions[sessionID]
	if !ok {
		return repository.Order{}, repository.ErrNotFound
	}
	return r.orders[id].Clone(), nil
}

// UpdateStatus compare-and-set статуса
func (r *Repository) UpdateStatus(ctx context.Context, id int64, newStatus, expected repository.OrderStatus) (repository.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[id]
	if !ok {
		return repository.Order{}, repository.ErrNotFound
	}
	if order.Status != expected || !expected.CanTransition(newStatus) {
		return repository.Order{}, repository.ErrConflict
	}

	order.Status = newStatus
	order.UpdatedAt = r.now().UTC()
	r.orders[id] = order

	return order.Clone(), nil
}

// SetPaymentSession проставляет сессию один раз
func (r *Repository) SetPaymentSession(ctx context.Context, id int64, sessionID string) (repository.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[id]
	if !ok {
		return repository.Order{}, repository.ErrNotFound
	}
	if order.PaymentSessionID != "" {
		return repository.Order{}, repository.ErrConflict
	}
	// одна сессия не может принадлежать двум заказам
	if _, taken := r.sessions[sessionID]; taken {
		return repository.Order{}, repository.ErrConflict
	}

	order.PaymentSessionID = sessionID
	order.UpdatedAt = r.now().UTC()
	r.orders[id] = order
	r.sessions[sessionID] = id

	return order.Clone(), nil
}

// EnqueueNotification check-and-insert под тем же мьютексом, что и CAS статуса
func (r *Repository) EnqueueNotification(ctx context.Context, orderID int64, status repository.OrderStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[orderID]
	if !ok {
		return false, repository.ErrNotFound
	}
	if order.HasNotified(status) {
		return false, nil
	}
	key := taskKey{orderID: orderID, status: status}
	if _, exists := r.taskKeys[key]; exists {
		return false, nil
	}

	r.nextTaskID++
	now := r.now().UTC()
	r.tasks[r.nextTaskID] = repository.NotificationTask{
		ID:        r.nextTaskID,
		OrderID:   orderID,
		Status:    status,
		State:     repository.NotificationPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.taskKeys[key] = r.nextTaskID

	return true, nil
}

// PendingNotifications pending задачи по возрастанию id
func (r *Repository) PendingNotifications(ctx context.Context, limit int) ([]repository.NotificationTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pending := make([]repository.NotificationTask, 0)
	for _, task := range r.tasks {
		if task.State == repository.NotificationPending {
			pending = append(pending, task)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].ID < pending[j].ID })

	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

// MarkNotificationSent задача sent + статус в NotifiedStatuses
func (r *Repository) MarkNotificationSent(ctx context.Context, taskID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[taskID]
	if !ok {
		return repository.ErrNotFound
	}
	if task.State != repository.NotificationPending {
		return repository.ErrConflict
	}

	now := r.now().UTC()
	task.State = repository.NotificationSent
	task.UpdatedAt = now
	r.tasks[taskID] = task

	order := r.orders[task.OrderID]
	if !order.HasNotified(task.Status) {
		order.NotifiedStatuses = append(append([]repository.OrderStatus(nil), order.NotifiedStatuses...), task.Status)
		order.UpdatedAt = now
		r.orders[task.OrderID] = order
	}
	return nil
}

// MarkNotificationFailed задача failed с последней ошибкой
func (r *Repository) MarkNotificationFailed(ctx context.Context, taskID int64, attempts int, lastErr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[taskID]
	if !ok {
		return repository.ErrNotFound
	}
	if task.State != repository.NotificationPending {
		return repository.ErrConflict
	}

	task.State = repository.NotificationFailed
	task.Attempts = attempts
	task.LastError = lastErr
	task.UpdatedAt = r.now().UTC()
	r.tasks[taskID] = task
	return nil
}

// Ping in-memory хранилище всегда готово
func (r *Repository) Ping(ctx context.Context) error {
	return nil
}

// Close ничего не освобождает
func (r *Repository) Close() error {
	return nil
}

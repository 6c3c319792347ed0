package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus статус заказа в платёжном lifecycle
type OrderStatus string

const (
	StatusCreated         OrderStatus = "created"
	StatusAwaitingPayment OrderStatus = "awaiting_payment"
	StatusPaid            OrderStatus = "paid"
	StatusPaymentFailed   OrderStatus = "payment_failed"
	StatusCanceled        OrderStatus = "canceled"
)

// rank порядковый номер статуса: created(0) < awaiting_payment(1) < терминальные(2)
func (s OrderStatus) rank() int {
	switch s {
	case StatusCreated:
		return 0
	case StatusAwaitingPayment:
		return 1
	case StatusPaid, StatusPaymentFailed, StatusCanceled:
		return 2
	default:
		return -1
	}
}

// Valid сообщает, известен ли статус
func (s OrderStatus) Valid() bool {
	return s.rank() >= 0
}

// IsTerminal true для paid, payment_failed и canceled
func (s OrderStatus) IsTerminal() bool {
	return s.rank() == 2
}

// CanTransition разрешает только переход на следующий ранг: created -> awaiting_payment -> терминальный
func (s OrderStatus) CanTransition(to OrderStatus) bool {
	if !s.Valid() || !to.Valid() {
		return false
	}
	return to.rank() == s.rank()+1
}

// Order доменная модель заказа, не привязанная к HTTP или БД
type Order struct {
	ID              int64
	Email           string
	Phone           string
	DeliveryAddress string
	OrderTime       string
	DeliveryTime    string
	Items           []OrderItem
	// TotalAmount ровно та сумма, что уходит в платёжный шлюз; из items не пересчитывается
	TotalAmount      decimal.Decimal
	PaymentSessionID string
	Status           OrderStatus
	// NotifiedStatuses статусы, уведомление о которых уже доставлено
	NotifiedStatuses []OrderStatus
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// OrderItem позиция заказа, информационная
type OrderItem struct {
	Name     string
	Quantity int32
}

// HasNotified сообщает, было ли уже доставлено уведомление о статусе
func (o Order) HasNotified(status OrderStatus) bool {
	for _, s := range o.NotifiedStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Clone возвращает копию без общих slice'ов
func (o Order) Clone() Order {
	c := o
	c.Items = append([]OrderItem(nil), o.Items...)
	c.NotifiedStatuses = append([]OrderStatus(nil), o.NotifiedStatuses...)
	return c
}

// NewOrder данные для создания заказа
type NewOrder struct {
	Email           string
	Phone           string
	DeliveryAddress string
	OrderTime       string
	DeliveryTime    string
	Items           []OrderItem
	TotalAmount     decimal.Decimal
}

// AmountScale число знаков после запятой в сумме заказа (копейки)
const AmountScale = 2

// Validate проверяет инварианты нового заказа, ошибки оборачивают ErrValidation
func (n NewOrder) Validate() error {
	if len(n.Items) == 0 {
		return fmt.Errorf("%w: items must not be empty", ErrValidation)
	}
	for i, item := range n.Items {
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: item %d (%s) quantity must be positive", ErrValidation, i, item.Name)
		}
	}
	if !n.TotalAmount.IsPositive() {
		return fmt.Errorf("%w: total amount must be positive", ErrValidation)
	}
	// провайдер принимает сумму с точностью до копейки, хранить её нужно так же
	if !n.TotalAmount.Equal(n.TotalAmount.Truncate(AmountScale)) {
		return fmt.Errorf("%w: total amount %s has more than %d fractional digits", ErrValidation, n.TotalAmount, AmountScale)
	}
	return nil
}

// NotificationState состояние задачи на уведомление
type NotificationState string

const (
	NotificationPending NotificationState = "pending"
	NotificationSent    NotificationState = "sent"
	// NotificationFailed терминальное состояние, автоматически не ретраится
	NotificationFailed NotificationState = "failed"
)

// NotificationTask задача на доставку уведомления о статусе заказа.
// Уникальна по (OrderID, Status).
type NotificationTask struct {
	ID        int64
	OrderID   int64
	Status    OrderStatus
	State     NotificationState
	Attempts  int
	LastError string
	CreatedAt time.Time
	UpdatedAt time.Time
}

var (
	// ErrNotFound заказ (или задача) не найден
	ErrNotFound = errors.New("not found")
	// ErrConflict текущее состояние не совпало с ожидаемым (CAS проигран или значение уже установлено)
	ErrConflict = errors.New("conflict")
	// ErrValidation некорректные данные заказа
	ErrValidation = errors.New("validation failed")
)

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name=OrderRepository --dir=. --output=./mocks --outpkg=mocks

// OrderRepository хранилище заказов. Все изменения статуса идут через compare-and-set.
type OrderRepository interface {
	// Create присваивает id, ставит статус created и сохраняет заказ атомарно
	Create(ctx context.Context, in NewOrder) (Order, error)

	// GetByID возвращает ErrNotFound, если заказа нет
	GetByID(ctx context.Context, id int64) (Order, error)

	// GetByPaymentSession ищет заказ по id платёжной сессии, ErrNotFound если нет
	GetByPaymentSession(ctx context.Context, sessionID string) (Order, error)

	// UpdateStatus меняет статус, только если текущий равен expected и переход разрешён.
	// Иначе ErrConflict.
	UpdateStatus(ctx context.Context, id int64, newStatus, expected OrderStatus) (Order, error)

	// SetPaymentSession устанавливает id сессии один раз, повторно ErrConflict
	SetPaymentSession(ctx context.Context, id int64, sessionID string) (Order, error)
}

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name=NotificationRepository --dir=. --output=./mocks --outpkg=mocks

// NotificationRepository очередь задач на уведомление (outbox)
type NotificationRepository interface {
	// EnqueueNotification атомарно вставляет pending задачу, если статус ещё не в NotifiedStatuses
	// и задачи для (orderID, status) нет. Возвращает true, если задача вставлена.
	EnqueueNotification(ctx context.Context, orderID int64, status OrderStatus) (bool, error)

	// PendingNotifications возвращает pending задачи, старые первыми
	PendingNotifications(ctx context.Context, limit int) ([]NotificationTask, error)

	// MarkNotificationSent переводит задачу в sent и добавляет статус в NotifiedStatuses заказа одной транзакцией
	MarkNotificationSent(ctx context.Context, taskID int64) error

	// MarkNotificationFailed переводит задачу в failed
	MarkNotificationFailed(ctx context.Context, taskID int64, attempts int, lastErr string) error
}

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name=ProcessedEventsStore --dir=. --output=./mocks --outpkg=mocks

// ProcessedEventsStore хранит id обработанных событий провайдера
type ProcessedEventsStore interface {
	// MarkProcessed сохраняет eventID как обработанный на ttl, повторный вызов безопасен
	MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) error

	// IsProcessed true, если eventID обработан и ttl не истёк
	IsProcessed(ctx context.Context, eventID string) (bool, error)
}

// Store объединяет хранилища одного backend'а
type Store interface {
	OrderRepository
	NotificationRepository
	// Ping проверка готовности для /health
	Ping(ctx context.Context) error
	Close() error
}

package notification

import (
	"errors"
	"fmt"

	"github.com/shestoi/yookassa-checkout/internal/repository"
)

// DeliveryFailedError уведомление не доставлено: попытки исчерпаны или ошибка постоянная.
// Статус заказа он не откатывает и HTTP клиенту не возвращается.
type DeliveryFailedError struct {
	TaskID   int64
	OrderID  int64
	Status   repository.OrderStatus
	Attempts int
	Err      error
}

func (e *DeliveryFailedError) Error() string {
	return fmt.Sprintf("notification for order %d (%s) failed after %d attempts: %v",
		e.OrderID, e.Status, e.Attempts, e.Err)
}

func (e *DeliveryFailedError) Unwrap() error {
	return e.Err
}

// isPermanent ошибка транспорта, которую повтор не исправит (например, чат не найден)
func isPermanent(err error) bool {
	var p interface{ Permanent() bool }
	return errors.As(err, &p) && p.Permanent()
}

// permanentError помечает ошибку как постоянную
type permanentError struct {
	err error
}

func (e permanentError) Error() string   { return e.err.Error() }
func (e permanentError) Unwrap() error   { return e.err }
func (e permanentError) Permanent() bool { return true }

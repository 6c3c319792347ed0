package service

import (
	"errors"
	"fmt"
)

// ErrPaymentPending платёж у провайдера ещё не в финальном статусе
var ErrPaymentPending = errors.New("payment is not finished yet")

// PaymentGatewayError провайдер не создал платёж; заказ остаётся в created и может быть повторён
type PaymentGatewayError struct {
	OrderID int64
	Err     error
}

func (e *PaymentGatewayError) Error() string {
	return fmt.Sprintf("payment gateway failed for order %d: %v", e.OrderID, e.Err)
}

func (e *PaymentGatewayError) Unwrap() error {
	return e.Err
}

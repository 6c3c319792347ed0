package service

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/shestoi/yookassa-checkout/internal/repository"
)

// PaymentSession платёж, созданный у провайдера
type PaymentSession struct {
	ID              string
	ConfirmationURL string
}

// PaymentStatus статус платежа у провайдера
type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "pending"
	PaymentWaitingForCapture PaymentStatus = "waiting_for_capture"
	PaymentSucceeded         PaymentStatus = "succeeded"
	PaymentCanceled          PaymentStatus = "canceled"
)

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name=PaymentGateway --dir=. --output=./mocks --outpkg=mocks

// PaymentGateway платёжный провайдер. Service не знает о формате его API.
type PaymentGateway interface {
	// CreateSession создаёт платёж на amount для заказа и возвращает ссылку на оплату
	CreateSession(ctx context.Context, orderID int64, amount decimal.Decimal) (PaymentSession, error)

	// GetPaymentStatus возвращает текущий статус платежа
	GetPaymentStatus(ctx context.Context, sessionID string) (PaymentStatus, error)
}

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name=Notifier --dir=. --output=./mocks --outpkg=mocks

// Notifier ставит уведомление о смене статуса в очередь доставки
type Notifier interface {
	Enqueue(ctx context.Context, orderID int64, status repository.OrderStatus) (bool, error)
}

package yookassa

import (
	"context"
	"fmt"
	"net/url"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shestoi/yookassa-checkout/internal/service"
)

// StubGateway платёжный шлюз для локального запуска без магазина.
// Платёж сразу считается успешным, confirmation URL ведёт на returnURL.
type StubGateway struct {
	logger    *zap.Logger
	returnURL string
}

// NewStubGateway создаёт stub
func NewStubGateway(logger *zap.Logger, returnURL string) *StubGateway {
	return &StubGateway{logger: logger, returnURL: returnURL}
}

// CreateSession возвращает сессию stub-<orderID>
func (g *StubGateway) CreateSession(ctx context.Context, orderID int64, total decimal.Decimal) (service.PaymentSession, error) {
	id := fmt.Sprintf("stub-%d", orderID)

	confirmationURL := "stub://payments/" + id
	if u, err := url.Parse(g.returnURL); err == nil && g.returnURL != "" {
		q := u.Query()
		q.Set("payment_id", id)
		u.RawQuery = q.Encode()
		confirmationURL = u.String()
	}

	g.logger.Info("stub gateway: payment session created",
		zap.Int64("order_id", orderID),
		zap.String("payment_id", id),
		zap.String("amount", total.StringFixed(2)),
	)
	return service.PaymentSession{ID: id, ConfirmationURL: confirmationURL}, nil
}

// GetPaymentStatus всегда succeeded
func (g *StubGateway) GetPaymentStatus(ctx context.Context, sessionID string) (service.PaymentStatus, error) {
	return service.PaymentSucceeded, nil
}

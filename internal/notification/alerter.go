package notification

import (
	"context"

	"go.uber.org/zap"
)

// LogAlerter пишет недоставленные уведомления в лог, когда Kafka выключена
type LogAlerter struct {
	logger *zap.Logger
}

// NewLogAlerter создаёт alerter поверх logger
func NewLogAlerter(logger *zap.Logger) *LogAlerter {
	return &LogAlerter{logger: logger}
}

// Alert всегда успешен
func (a *LogAlerter) Alert(ctx context.Context, failure *DeliveryFailedError) error {
	a.logger.Error("ALERT: notification delivery failed",
		zap.Int64("order_id", failure.OrderID),
		zap.String("status", string(failure.Status)),
		zap.Int("attempts", failure.Attempts),
		zap.Error(failure.Err),
	)
	return nil
}

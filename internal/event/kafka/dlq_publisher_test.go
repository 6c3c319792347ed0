package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shestoi/yookassa-checkout/internal/notification"
	"github.com/shestoi/yookassa-checkout/internal/repository"
)

var _ notification.Alerter = (*DLQPublisher)(nil)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestDLQPublisher_Alert(t *testing.T) {
	// Arrange
	writer := &fakeWriter{}
	p := NewDLQPublisherWithWriter(zap.NewNop(), writer, "checkout.notification.dlq")
	failedAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return failedAt }

	// Act
	err := p.Alert(context.Background(), &notification.DeliveryFailedError{
		TaskID:   7,
		OrderID:  1,
		Status:   repository.StatusPaid,
		Attempts: 5,
		Err:      errors.New("telegram unavailable"),
	})

	// Assert
	require.NoError(t, err)
	require.Len(t, writer.messages, 1)
	require.Equal(t, "1", string(writer.messages[0].Key))

	var msg DLQMessage
	require.NoError(t, json.Unmarshal(writer.messages[0].Value, &msg))
	require.Equal(t, DLQMessage{
		EventType:    "notification.delivery_failed",
		TaskID:       7,
		OrderID:      1,
		OrderStatus:  "paid",
		Attempts:     5,
		ErrorMessage: "telegram unavailable",
		FailedAt:     failedAt,
	}, msg)

	require.NoError(t, p.Close())
	require.True(t, writer.closed)
}

func TestDLQPublisher_WriteError(t *testing.T) {
	writer := &fakeWriter{err: errors.New("broker not available")}
	p := NewDLQPublisherWithWriter(zap.NewNop(), writer, "dlq")

	err := p.Alert(context.Background(), &notification.DeliveryFailedError{OrderID: 1, Status: repository.StatusPaid})
	require.Error(t, err)
	require.Contains(t, err.Error(), "broker not available")
}

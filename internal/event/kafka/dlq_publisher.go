package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/shestoi/yookassa-checkout/internal/notification"
	"github.com/shestoi/yookassa-checkout/platform/observability"
)

// MessageWriter подмножество kafka.Writer, нужное publisher'у
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// DLQPublisher публикует недоставленные уведомления в Dead Letter Queue топик
type DLQPublisher struct {
	logger *zap.Logger
	writer MessageWriter
	topic  string
	now    func() time.Time
}

// NewDLQPublisher создаёт publisher с kafka.Writer на topic
func NewDLQPublisher(logger *zap.Logger, brokers []string, topic string) *DLQPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return NewDLQPublisherWithWriter(logger, writer, topic)
}

// NewDLQPublisherWithWriter позволяет подменить writer (для тестов)
func NewDLQPublisherWithWriter(logger *zap.Logger, writer MessageWriter, topic string) *DLQPublisher {
	return &DLQPublisher{
		logger: logger,
		writer: writer,
		topic:  topic,
		now:    time.Now,
	}
}

// DLQMessage тело сообщения в DLQ
type DLQMessage struct {
	EventType    string    `json:"event_type"`
	TaskID       int64     `json:"task_id"`
	OrderID      int64     `json:"order_id"`
	OrderStatus  string    `json:"order_status"`
	Attempts     int       `json:"attempts"`
	ErrorMessage string    `json:"error_message"`
	FailedAt     time.Time `json:"failed_at"`
}

const eventTypeDeliveryFailed = "notification.delivery_failed"

// Alert реализует notification.Alerter
func (p *DLQPublisher) Alert(ctx context.Context, failure *notification.DeliveryFailedError) error {
	errorMsg := ""
	if failure.Err != nil {
		errorMsg = failure.Err.Error()
	}

	payload, err := json.Marshal(DLQMessage{
		EventType:    eventTypeDeliveryFailed,
		TaskID:       failure.TaskID,
		OrderID:      failure.OrderID,
		OrderStatus:  string(failure.Status),
		Attempts:     failure.Attempts,
		ErrorMessage: errorMsg,
		FailedAt:     p.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal DLQ message: %w", err)
	}

	// order_id как key: все алерты одного заказа в одной партиции
	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(failure.OrderID, 10)),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventTypeDeliveryFailed)},
		},
	}
	// traceparent в заголовках: алерт связывается с трейсом запроса, который поставил уведомление
	otel.GetTextMapPropagator().Inject(ctx, observability.NewKafkaHeadersCarrier(&msg.Headers))

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("failed to publish message to DLQ",
			zap.Error(err),
			zap.String("topic", p.topic),
			zap.Int64("order_id", failure.OrderID),
		)
		return fmt.Errorf("publish to DLQ: %w", err)
	}

	p.logger.Info("message published to DLQ",
		zap.String("topic", p.topic),
		zap.Int64("order_id", failure.OrderID),
		zap.String("order_status", string(failure.Status)),
		zap.String("error_message", errorMsg),
	)
	return nil
}

// Close закрывает writer
func (p *DLQPublisher) Close() error {
	p.logger.Info("closing DLQ publisher")
	return p.writer.Close()
}

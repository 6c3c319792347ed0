package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SignatureHeader заголовок с подписью тела уведомления
const SignatureHeader = "X-Webhook-Signature"

const signaturePrefix = "sha256="

var (
	// ErrAuthentication подпись отсутствует или не совпала
	ErrAuthentication = errors.New("webhook signature mismatch")
	// ErrInvalidPayload подпись верна, но тело не разбирается
	ErrInvalidPayload = errors.New("invalid webhook payload")
	// ErrUnsupportedEvent событие, на которое заказ не реагирует
	ErrUnsupportedEvent = errors.New("unsupported webhook event")
)

// EventType исход платёжной сессии
type EventType string

const (
	EventSucceeded EventType = "succeeded"
	EventCanceled  EventType = "canceled"
	EventFailed    EventType = "failed"
)

// PaymentEvent проверенное событие провайдера, в хранилище не сохраняется
type PaymentEvent struct {
	SessionID       string
	Type            EventType
	ProviderEventID string
	Signature       string
	ReceivedAt      time.Time
}

// notification тело уведомления в формате YooKassa
type notification struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Event  string `json:"event"`
	Object struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"object"`
}

var eventTypes = map[string]EventType{
	"payment.succeeded": EventSucceeded,
	"payment.canceled":  EventCanceled,
	"payment.failed":    EventFailed,
}

// Verifier проверяет HMAC-SHA256 подпись входящих уведомлений
type Verifier struct {
	secret []byte
	now    func() time.Time
}

// NewVerifier создаёт Verifier с общим секретом
func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("webhook secret is required")
	}
	return &Verifier{secret: []byte(secret), now: time.Now}, nil
}

// Verify проверяет подпись по сырым байтам тела и разбирает событие.
// Тело не пересериализуется: подпись считается ровно от того, что пришло.
func (v *Verifier) Verify(raw []byte, signatureHeader string) (PaymentEvent, error) {
	got, err := decodeSignature(signatureHeader)
	if err != nil {
		return PaymentEvent{}, err
	}
	if !hmac.Equal(got, v.mac(raw)) {
		return PaymentEvent{}, ErrAuthentication
	}

	var n notification
	if err := json.Unmarshal(raw, &n); err != nil {
		return PaymentEvent{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if n.ID == "" {
		return PaymentEvent{}, fmt.Errorf("%w: missing event id", ErrInvalidPayload)
	}

	event := PaymentEvent{
		SessionID:       n.Object.ID,
		ProviderEventID: n.ID,
		Signature:       signatureHeader,
		ReceivedAt:      v.now().UTC(),
	}

	if n.Type != "" && n.Type != "notification" {
		return event, fmt.Errorf("%w: type %q", ErrUnsupportedEvent, n.Type)
	}
	eventType, ok := eventTypes[n.Event]
	if !ok {
		return event, fmt.Errorf("%w: %q", ErrUnsupportedEvent, n.Event)
	}
	if n.Object.ID == "" {
		return event, fmt.Errorf("%w: missing payment id", ErrInvalidPayload)
	}
	event.Type = eventType

	return event, nil
}

func (v *Verifier) mac(raw []byte) []byte {
	h := hmac.New(sha256.New, v.secret)
	h.Write(raw)
	return h.Sum(nil)
}

// decodeSignature принимает "sha256=<hex>" и просто "<hex>"
func decodeSignature(header string) ([]byte, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, fmt.Errorf("%w: missing %s header", ErrAuthentication, SignatureHeader)
	}
	header = strings.TrimPrefix(header, signaturePrefix)

	sig, err := hex.DecodeString(header)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed signature", ErrAuthentication)
	}
	return sig, nil
}

// Sign возвращает значение SignatureHeader для тела, подписанного secret
func Sign(secret string, raw []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(raw)
	return signaturePrefix + hex.EncodeToString(h.Sum(nil))
}

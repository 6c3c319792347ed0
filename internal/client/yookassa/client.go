package yookassa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/shestoi/yookassa-checkout/internal/service"
	"github.com/shestoi/yookassa-checkout/platform/observability"
)

// DefaultAPIURL адрес API v3
const DefaultAPIURL = "https://api.yookassa.ru/v3"

// idempotenceNamespace пространство имён uuid v5 для Idempotence-Key
var idempotenceNamespace = uuid.MustParse("6f1c5f2e-8e0a-4c55-9a59-2f1d9b1c0a71")

// Config параметры магазина
type Config struct {
	APIURL    string
	ShopID    string
	SecretKey string
	ReturnURL string
	Currency  string
	Timeout   time.Duration
}

// APIError ответ API с не-2xx статусом
type APIError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("yookassa API status %d: %s: %s", e.StatusCode, e.Code, e.Description)
}

// Client реализует service.PaymentGateway поверх YooKassa REST API
type Client struct {
	logger *zap.Logger
	cfg    Config
	client *http.Client
}

// NewClient создаёт клиент; пустые APIURL и Currency заменяются на DefaultAPIURL и RUB
func NewClient(logger *zap.Logger, cfg Config) *Client {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	if cfg.Currency == "" {
		cfg.Currency = "RUB"
	}
	return &Client{
		logger: logger,
		cfg:    cfg,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: observability.HTTPClientTransport("checkout", "yookassa", nil),
		},
	}
}

type amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type confirmation struct {
	Type            string `json:"type"`
	ReturnURL       string `json:"return_url,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
}

type createPaymentRequest struct {
	Amount       amount            `json:"amount"`
	Confirmation confirmation      `json:"confirmation"`
	Capture      bool              `json:"capture"`
	Description  string            `json:"description"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

type paymentResponse struct {
	ID           string       `json:"id"`
	Status       string       `json:"status"`
	Confirmation confirmation `json:"confirmation"`
}

// {"type": "error", "code": "invalid_credentials", "description": "..."}
type errorResponse struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// IdempotenceKey одинаков для одного заказа: повтор запроса не создаёт второй платёж
func IdempotenceKey(orderID int64) string {
	return uuid.NewSHA1(idempotenceNamespace, []byte("order:"+strconv.FormatInt(orderID, 10))).String()
}

// CreateSession создаёт платёж с redirect-подтверждением
func (c *Client) CreateSession(ctx context.Context, orderID int64, total decimal.Decimal) (service.PaymentSession, error) {
	reqBody := createPaymentRequest{
		Amount: amount{Value: total.StringFixed(2), Currency: c.cfg.Currency},
		Confirmation: confirmation{
			Type:      "redirect",
			ReturnURL: c.cfg.ReturnURL,
		},
		Capture:     true,
		Description: fmt.Sprintf("Заказ №%d", orderID),
		Metadata:    map[string]string{"order_id": strconv.FormatInt(orderID, 10)},
	}

	var resp paymentResponse
	if err := c.do(ctx, http.MethodPost, "/payments", IdempotenceKey(orderID), reqBody, &resp); err != nil {
		return service.PaymentSession{}, err
	}

	c.logger.Debug("yookassa payment created",
		zap.Int64("order_id", orderID),
		zap.String("payment_id", resp.ID),
		zap.String("status", resp.Status),
	)

	return service.PaymentSession{
		ID:              resp.ID,
		ConfirmationURL: resp.Confirmation.ConfirmationURL,
	}, nil
}

// GetPaymentStatus возвращает текущий статус платежа
func (c *Client) GetPaymentStatus(ctx context.Context, sessionID string) (service.PaymentStatus, error) {
	var resp paymentResponse
	if err := c.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(sessionID), "", nil, &resp); err != nil {
		return "", err
	}
	return service.PaymentStatus(resp.Status), nil
}

func (c *Client) do(ctx context.Context, method, path, idempotenceKey string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.APIURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.cfg.ShopID, c.cfg.SecretKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotenceKey != "" {
		req.Header.Set("Idempotence-Key", idempotenceKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr errorResponse
		if jsonErr := json.Unmarshal(raw, &apiErr); jsonErr != nil || apiErr.Code == "" {
			return &APIError{StatusCode: resp.StatusCode, Description: strings.TrimSpace(string(raw))}
		}
		return &APIError{StatusCode: resp.StatusCode, Code: apiErr.Code, Description: apiErr.Description}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

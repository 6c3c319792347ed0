package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shestoi/yookassa-checkout/platform/observability"
)

// DefaultAPIURL адрес Bot API без токена
const DefaultAPIURL = "https://api.telegram.org"

// APIError ответ Bot API с ok=false или не-200 статусом
type APIError struct {
	StatusCode  int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram API status %d: %s", e.StatusCode, e.Description)
}

// Permanent 400/401/403/404 (чат не найден, бот заблокирован, неверный токен) повтор не исправит
func (e *APIError) Permanent() bool {
	switch e.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return true
	default:
		return false
	}
}

// TelegramSender отправляет сообщения через Telegram Bot API
type TelegramSender struct {
	logger *zap.Logger
	apiURL string
	client *http.Client
}

// NewTelegramSender создаёт sender; apiURL пустой = DefaultAPIURL
func NewTelegramSender(logger *zap.Logger, apiURL, botToken string, timeout time.Duration) *TelegramSender {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	return &TelegramSender{
		logger: logger,
		apiURL: strings.TrimRight(apiURL, "/") + "/bot" + botToken,
		client: &http.Client{
			Timeout:   timeout,
			Transport: observability.HTTPClientTransport("checkout", "telegram", nil),
		},
	}
}

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

// {"ok": true, "result": {...}} или {"ok": false, "error_code": 400, "description": "Bad Request: chat not found"}
type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

// Send отправляет text в chatID
func (s *TelegramSender) Send(ctx context.Context, chatID, text string) error {
	body, err := json.Marshal(sendMessageRequest{ChatID: chatID, Text: text})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL+"/sendMessage", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var result apiResponse
	if jsonErr := json.Unmarshal(raw, &result); jsonErr != nil {
		if resp.StatusCode != http.StatusOK {
			return &APIError{StatusCode: resp.StatusCode, Description: strings.TrimSpace(string(raw))}
		}
		return fmt.Errorf("failed to decode response: %w", jsonErr)
	}

	if resp.StatusCode != http.StatusOK || !result.OK {
		code := resp.StatusCode
		if result.ErrorCode != 0 {
			code = result.ErrorCode
		}
		return &APIError{StatusCode: code, Description: result.Description}
	}

	s.logger.Debug("telegram message sent successfully",
		zap.String("chat_id", chatID),
	)
	return nil
}

// NoOpSender ничего не отправляет, когда Telegram отключён
type NoOpSender struct {
	logger *zap.Logger
}

// NewNoOpSender создаёт no-op sender
func NewNoOpSender(logger *zap.Logger) *NoOpSender {
	return &NoOpSender{logger: logger}
}

// Send только логирует
func (s *NoOpSender) Send(ctx context.Context, chatID, text string) error {
	s.logger.Info("no-op sender: message not sent",
		zap.String("chat_id", chatID),
		zap.String("text_preview", truncate(text, 50)),
	)
	return nil
}

// truncate режет по рунам, тексты на кириллице
func truncate(s string, maxRunes int) string {
	r := []rune(s)
	if len(r) <= maxRunes {
		return s
	}
	return string(r[:maxRunes]) + "..."
}

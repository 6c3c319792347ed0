package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/mail"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/shestoi/yookassa-checkout/internal/metrics"
	"github.com/shestoi/yookassa-checkout/internal/repository"
	"github.com/shestoi/yookassa-checkout/internal/service"
	"github.com/shestoi/yookassa-checkout/internal/webhook"
	"github.com/shestoi/yookassa-checkout/platform/observability"
)

const maxBodyBytes = 1 << 20

// Handler HTTP-обработчики checkout
type Handler struct {
	logger   *zap.Logger
	service  *service.OrderService
	verifier *webhook.Verifier
	metrics  *metrics.Metrics
}

// NewHandler создаёт handler
func NewHandler(logger *zap.Logger, orderService *service.OrderService, verifier *webhook.Verifier, m *metrics.Metrics) *Handler {
	return &Handler{
		logger:   logger,
		service:  orderService,
		verifier: verifier,
		metrics:  m,
	}
}

// PostOrder обрабатывает POST /order: сохраняет заказ и возвращает ссылку на оплату
func (h *Handler) PostOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.L(ctx, h.logger)

	var req OrderRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invalid JSON: %v", err)})
		return
	}
	if err := validateOrderRequest(req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	items := make([]repository.OrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, repository.OrderItem{Name: item.Name, Quantity: item.Quantity})
	}

	result, err := h.service.PlaceOrder(ctx, service.PlaceOrderInput{
		Email:           req.Email,
		Phone:           req.Phone,
		DeliveryAddress: req.Address,
		OrderTime:       req.OrderTime,
		DeliveryTime:    req.DeliveryTime,
		Items:           items,
		TotalAmount:     req.TotalAmount,
	})
	if err != nil {
		writeError(w, logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, CreateOrderResponse{OrderID: result.OrderID, PaymentURL: result.PaymentURL})
}

// validateOrderRequest проверки формата; бизнес-инварианты проверяет repository.NewOrder.Validate
func validateOrderRequest(req OrderRequest) error {
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return fmt.Errorf("invalid email: %q", req.Email)
	}
	if strings.TrimSpace(req.Phone) == "" {
		return errors.New("phone is required")
	}
	if strings.TrimSpace(req.Address) == "" {
		return errors.New("address is required")
	}
	for i, item := range req.Items {
		if strings.TrimSpace(item.Name) == "" {
			return fmt.Errorf("name is required in items[%d]", i)
		}
	}
	return nil
}

// GetOrder обрабатывает GET /orders/{id}
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid order id"})
		return
	}

	order, err := h.service.GetOrder(ctx, id)
	if err != nil {
		writeError(w, observability.L(ctx, h.logger), err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// PaymentWebhook обрабатывает POST /payment-webhook.
// 401 только при неверной подписи; 2xx для всего, что повторная доставка не изменит.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.L(ctx, h.logger)

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "failed to read body"})
		return
	}

	event, err := h.verifier.Verify(raw, r.Header.Get(webhook.SignatureHeader))
	switch {
	case errors.Is(err, webhook.ErrAuthentication):
		h.metrics.WebhookEvent(metrics.ResultUnauthorized)
		logger.Warn("webhook rejected", zap.Error(err))
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "invalid signature"})
		return
	case errors.Is(err, webhook.ErrUnsupportedEvent):
		h.metrics.WebhookEvent(metrics.ResultIgnored)
		logger.Info("webhook event ignored", zap.String("event_id", event.ProviderEventID), zap.Error(err))
		writeJSON(w, http.StatusOK, StatusResponse{Status: metrics.ResultIgnored})
		return
	case err != nil:
		h.metrics.WebhookEvent(metrics.ResultInvalid)
		logger.Warn("webhook payload invalid", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	out, err := h.service.ApplyEvent(ctx, event)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound), errors.Is(err, webhook.ErrUnsupportedEvent):
			h.metrics.WebhookEvent(metrics.ResultIgnored)
			logger.Warn("webhook event does not match any order", zap.String("payment_id", event.SessionID), zap.Error(err))
			writeJSON(w, http.StatusOK, StatusResponse{Status: metrics.ResultIgnored})
		default:
			// в том числе ErrConflict: заказ ещё не ждёт оплату, провайдер повторит доставку
			h.metrics.WebhookEvent(metrics.ResultError)
			logger.Error("failed to apply webhook event", zap.String("event_id", event.ProviderEventID), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		}
		return
	}

	result := metrics.ResultIgnored
	switch {
	case out.Duplicate:
		result = metrics.ResultDuplicate
	case out.Applied:
		result = metrics.ResultApplied
	}
	h.metrics.WebhookEvent(result)
	writeJSON(w, http.StatusOK, StatusResponse{Status: result})
}

// PaymentSuccess обрабатывает /payment_success?payment_id=: покупатель вернулся с оплаты раньше webhook'а
func (h *Handler) PaymentSuccess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.L(ctx, h.logger)

	paymentID := r.URL.Query().Get("payment_id")
	if paymentID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "payment_id is required"})
		return
	}

	out, err := h.service.SyncPayment(ctx, paymentID)
	switch {
	case err == nil && out.Status == repository.StatusPaid:
		writeJSON(w, http.StatusOK, StatusResponse{Status: "success"})
	case err == nil,
		errors.Is(err, service.ErrPaymentPending),
		errors.Is(err, repository.ErrNotFound),
		errors.Is(err, repository.ErrConflict):
		logger.Info("payment not successful", zap.String("payment_id", paymentID), zap.Error(err))
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Payment not successful"})
	default:
		writeError(w, logger, err)
	}
}

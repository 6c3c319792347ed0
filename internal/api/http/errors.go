package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/shestoi/yookassa-checkout/internal/repository"
	"github.com/shestoi/yookassa-checkout/internal/service"
)

// writeError переводит ошибку service слоя в HTTP статус
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var gwErr *service.PaymentGatewayError

	switch {
	case errors.Is(err, repository.ErrValidation):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, repository.ErrNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "order not found"})
	case errors.Is(err, repository.ErrConflict):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error()})
	case errors.As(err, &gwErr):
		writeJSON(w, http.StatusBadGateway, ErrorResponse{Error: "payment provider unavailable", OrderID: gwErr.OrderID})
	default:
		logger.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

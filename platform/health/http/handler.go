package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// ReadinessFunc проверяет зависимости сервиса (хранилище, redis); nil значит готов
type ReadinessFunc func(ctx context.Context) error

// Handler возвращает handler для /health.
// 200 {"status":"ok"} если readiness не задана или вернула nil,
// 503 {"status":"not ready","error":"..."} иначе.
func Handler(readiness ReadinessFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if readiness != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()

			if err := readiness(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]string{"status": "not ready", "error": err.Error()})
				return
			}
		}

		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandler(t *testing.T) {
	tests := []struct {
		name       string
		readiness  ReadinessFunc
		wantStatus int
		wantBody   string
	}{
		{
			name:       "no readiness func",
			readiness:  nil,
			wantStatus: http.StatusOK,
			wantBody:   `"status":"ok"`,
		},
		{
			name:       "ready",
			readiness:  func(ctx context.Context) error { return nil },
			wantStatus: http.StatusOK,
			wantBody:   `"status":"ok"`,
		},
		{
			name:       "not ready",
			readiness:  func(ctx context.Context) error { return errors.New("db down") },
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   `"error":"db down"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			Handler(tt.readiness)(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			require.Equal(t, tt.wantStatus, rec.Code)
			require.Contains(t, rec.Body.String(), tt.wantBody)
			require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}

package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	platformhealth "github.com/shestoi/yookassa-checkout/platform/health/http"
	platformobservability "github.com/shestoi/yookassa-checkout/platform/observability"
)

// NewRouter создаёт роутер checkout.
// readiness проверяет хранилища для /health; metricsHandler nil отключает /metrics.
func NewRouter(handler *Handler, readiness platformhealth.ReadinessFunc, metricsHandler http.Handler, logger *zap.Logger) chi.Router {
	router := chi.NewRouter()

	router.Use(chimiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if logger != nil {
		router.Use(platformobservability.HTTPMiddleware("checkout", logger))
	}

	router.Post("/order", handler.PostOrder)
	router.Get("/orders/{id}", handler.GetOrder)
	router.Post("/payment-webhook", handler.PaymentWebhook)
	router.Get("/payment_success", handler.PaymentSuccess)
	router.Post("/payment_success", handler.PaymentSuccess)

	router.Get("/health", platformhealth.Handler(readiness))
	if metricsHandler != nil {
		router.Handle("/metrics", metricsHandler)
	}

	return router
}

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "checkout"

// Result значения label'а result
const (
	ResultOK           = "ok"
	ResultError        = "error"
	ResultApplied      = "applied"
	ResultDuplicate    = "duplicate"
	ResultIgnored      = "ignored"
	ResultUnauthorized = "unauthorized"
	ResultInvalid      = "invalid"
	ResultDelivered    = "delivered"
	ResultFailed       = "failed"
)

// Metrics prometheus метрики checkout на собственном registry.
// Методы безопасны для nil receiver: компоненты работают и без метрик.
type Metrics struct {
	registry             *prometheus.Registry
	ordersCreated        prometheus.Counter
	paymentSessions      *prometheus.CounterVec
	webhookEvents        *prometheus.CounterVec
	notifications        *prometheus.CounterVec
	notificationAttempts prometheus.Histogram
}

// New регистрирует метрики и стандартные go/process коллекторы
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ordersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "orders_created_total",
			Help: "Orders persisted by POST /order.",
		}),
		paymentSessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "payment_sessions_total",
			Help: "Payment session requests to the gateway by result.",
		}, []string{"result"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "webhook_events_total",
			Help: "Payment webhook deliveries by result.",
		}, []string{"result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "notifications_total",
			Help: "Notification tasks finished by result.",
		}, []string{"result"}),
		notificationAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "notification_attempts",
			Help:    "Send attempts spent per finished notification task.",
			Buckets: []float64{1, 2, 3, 4, 5, 8},
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ordersCreated,
		m.paymentSessions,
		m.webhookEvents,
		m.notifications,
		m.notificationAttempts,
	)
	return m
}

// Handler отдаёт /metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry нужен тестам для сбора значений
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) OrderCreated() {
	if m == nil {
		return
	}
	m.ordersCreated.Inc()
}

func (m *Metrics) PaymentSession(result string) {
	if m == nil {
		return
	}
	m.paymentSessions.WithLabelValues(result).Inc()
}

func (m *Metrics) WebhookEvent(result string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(result).Inc()
}

// NotificationFinished result = ResultDelivered или ResultFailed
func (m *Metrics) NotificationFinished(result string, attempts int) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(result).Inc()
	m.notificationAttempts.Observe(float64(attempts))
}

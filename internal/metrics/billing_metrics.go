package metrics

import (
	"time"

	"github.com/Dhoini/billing-reconciliation/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Исходы обработки вебхука
const (
	OutcomeProcessed = "processed"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
	OutcomeNotFound  = "not_found"
	OutcomeInvalid   = "invalid"
	OutcomeFailed    = "failed"
)

// BillingMetrics интерфейс для метрик биллинга
type BillingMetrics interface {
	IncWebhookEvent(eventType, outcome string)
	IncPaymentRecorded(currency string)
	ObservePaymentAmount(amount int64, currency string)
	IncCheckoutSession(mode string)
	ObserveGatewayCall(operation string, err error, duration time.Duration)
}

type billingMetrics struct {
	log             *logger.Logger
	webhookEvents   *prometheus.CounterVec
	paymentsCounter *prometheus.CounterVec
	paymentsAmount  *prometheus.HistogramVec
	checkouts       *prometheus.CounterVec
	gatewayCalls    *prometheus.CounterVec
	gatewayDuration *prometheus.HistogramVec
}

// NewBillingMetrics регистрирует метрики в registry
func NewBillingMetrics(registry *prometheus.Registry, log *logger.Logger) BillingMetrics {
	factory := promauto.With(registry)

	return &billingMetrics{
		log: log,
		webhookEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_webhook_events_total",
				Help: "The total number of received Stripe webhook events by type and outcome",
			},
			[]string{"type", "outcome"},
		),
		paymentsCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_payments_recorded_total",
				Help: "The total number of recorded payments",
			},
			[]string{"currency"},
		),
		paymentsAmount: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "billing_payments_amount_minor_units",
				Help:    "Recorded payment amounts distribution in minor units",
				Buckets: prometheus.ExponentialBuckets(100, 10, 5), // 1.00 ... 10000.00
			},
			[]string{"currency"},
		),
		checkouts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_checkout_sessions_total",
				Help: "The total number of created checkout sessions",
			},
			[]string{"mode"},
		),
		gatewayCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_gateway_calls_total",
				Help: "The total number of Stripe API calls by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		gatewayDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "billing_gateway_call_duration_seconds",
				Help:    "Stripe API call duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// IncWebhookEvent увеличивает счетчик вебхуков
func (m *billingMetrics) IncWebhookEvent(eventType, outcome string) {
	m.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

// IncPaymentRecorded увеличивает счетчик записанных платежей
func (m *billingMetrics) IncPaymentRecorded(currency string) {
	m.paymentsCounter.WithLabelValues(currency).Inc()
}

// ObservePaymentAmount записывает сумму платежа
func (m *billingMetrics) ObservePaymentAmount(amount int64, currency string) {
	m.paymentsAmount.WithLabelValues(currency).Observe(float64(amount))
}

// IncCheckoutSession увеличивает счетчик checkout сессий
func (m *billingMetrics) IncCheckoutSession(mode string) {
	m.checkouts.WithLabelValues(mode).Inc()
}

// ObserveGatewayCall записывает исход и длительность вызова Stripe
func (m *billingMetrics) ObserveGatewayCall(operation string, err error, duration time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.gatewayCalls.WithLabelValues(operation, outcome).Inc()
	m.gatewayDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

type nopMetrics struct{}

// NewNopMetrics возвращает метрики, которые ничего не делают (тесты, утилиты)
func NewNopMetrics() BillingMetrics { return nopMetrics{} }

func (nopMetrics) IncWebhookEvent(string, string)                   {}
func (nopMetrics) IncPaymentRecorded(string)                        {}
func (nopMetrics) ObservePaymentAmount(int64, string)               {}
func (nopMetrics) IncCheckoutSession(string)                        {}
func (nopMetrics) ObserveGatewayCall(string, error, time.Duration) {}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics records checkout and settlement outcomes.
type CheckoutMetrics struct {
	checkoutDuration *prometheus.HistogramVec
	checkoutOutcome  *prometheus.CounterVec
	webhookOutcome   *prometheus.CounterVec
	gatewayCalls     *prometheus.CounterVec
	payoutsOpened    prometheus.Counter
}

// NewCheckoutMetrics registers the pipeline metrics on the provided registerer.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	checkoutDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkout_duration_seconds",
		Help:    "Duration of checkout transactions in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	checkoutOutcome := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_total",
		Help: "Checkout attempts by outcome.",
	}, []string{"outcome"})
	webhookOutcome := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Processed webhook deliveries by outcome.",
	}, []string{"event", "outcome"})
	gatewayCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_requests_total",
		Help: "Settlement gateway calls by operation and outcome.",
	}, []string{"operation", "outcome"})
	payoutsOpened := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vendor_payouts_opened_total",
		Help: "Vendor payout rows opened from settled payments.",
	})
	reg.MustRegister(checkoutDuration, checkoutOutcome, webhookOutcome, gatewayCalls, payoutsOpened)
	return &CheckoutMetrics{
		checkoutDuration: checkoutDuration,
		checkoutOutcome:  checkoutOutcome,
		webhookOutcome:   webhookOutcome,
		gatewayCalls:     gatewayCalls,
		payoutsOpened:    payoutsOpened,
	}
}

// ObserveCheckout records one checkout attempt.
func (m *CheckoutMetrics) ObserveCheckout(outcome string, duration time.Duration) {
	if m == nil || m.checkoutDuration == nil {
		return
	}
	outcome = normalizeLabel(outcome)
	m.checkoutDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	m.checkoutOutcome.WithLabelValues(outcome).Inc()
}

// IncWebhook records one processed webhook delivery.
func (m *CheckoutMetrics) IncWebhook(event, outcome string) {
	if m == nil || m.webhookOutcome == nil {
		return
	}
	m.webhookOutcome.WithLabelValues(normalizeLabel(event), normalizeLabel(outcome)).Inc()
}

// IncGatewayCall records one settlement provider API call.
func (m *CheckoutMetrics) IncGatewayCall(operation, outcome string) {
	if m == nil || m.gatewayCalls == nil {
		return
	}
	m.gatewayCalls.WithLabelValues(normalizeLabel(operation), normalizeLabel(outcome)).Inc()
}

// IncPayoutsOpened records payout rows created from a settlement.
func (m *CheckoutMetrics) IncPayoutsOpened(count int) {
	if m == nil || m.payoutsOpened == nil {
		return
	}
	m.payoutsOpened.Add(float64(count))
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}

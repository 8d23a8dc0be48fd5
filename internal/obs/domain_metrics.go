package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CheckoutStartedTotal counts checkout creations by provider and kind.
	CheckoutStartedTotal *prometheus.CounterVec
	// CheckoutCompletedTotal counts checkout completion outcomes.
	CheckoutCompletedTotal *prometheus.CounterVec
	// CheckoutAbandonedTotal counts checkouts whose waiting surface was dismissed.
	CheckoutAbandonedTotal *prometheus.CounterVec
	// ApprovalPollTicksTotal counts approval poll ticks by outcome.
	ApprovalPollTicksTotal *prometheus.CounterVec
	// ApprovalPollSkippedTotal counts ticks skipped because a check was still in flight.
	ApprovalPollSkippedTotal prometheus.Counter
	// ProviderRequestLatency records provider API call latency in milliseconds.
	ProviderRequestLatency *prometheus.HistogramVec
	// ProviderTokenRefreshTotal counts access token acquisitions.
	ProviderTokenRefreshTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CheckoutStartedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_started_total",
			Help:      "Count of checkouts started by provider and kind (order or subscription).",
		}, []string{"provider", "kind"})
		CheckoutCompletedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_completed_total",
			Help:      "Count of checkout completion outcomes by provider and kind.",
		}, []string{"provider", "kind", "result"})
		CheckoutAbandonedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_abandoned_total",
			Help:      "Count of checkouts abandoned before approval.",
		}, []string{"provider"})
		ApprovalPollTicksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approval_poll_ticks_total",
			Help:      "Count of approval poll ticks by outcome.",
		}, []string{"provider", "outcome"})
		ApprovalPollSkippedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approval_poll_skipped_total",
			Help:      "Number of poll ticks skipped while a previous check was still in flight.",
		})
		ProviderRequestLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_ms",
			Help:      "Latency of provider API requests in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"provider", "operation"})
		ProviderTokenRefreshTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_token_refresh_total",
			Help:      "Count of provider access token acquisitions by result.",
		}, []string{"provider", "result"})

		CheckoutStartedTotal = registerOrReuse(reg, CheckoutStartedTotal)
		CheckoutCompletedTotal = registerOrReuse(reg, CheckoutCompletedTotal)
		CheckoutAbandonedTotal = registerOrReuse(reg, CheckoutAbandonedTotal)
		ApprovalPollTicksTotal = registerOrReuse(reg, ApprovalPollTicksTotal)
		ApprovalPollSkippedTotal = registerOrReuse(reg, ApprovalPollSkippedTotal)
		ProviderRequestLatency = registerOrReuse(reg, ProviderRequestLatency)
		ProviderTokenRefreshTotal = registerOrReuse(reg, ProviderTokenRefreshTotal)
	})
}

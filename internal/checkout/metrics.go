package checkout

import (
	"time"

	"github.com/harborpay/checkout/internal/obs"
)

// Metric helpers tolerate unregistered collectors so library use and tests
// work without a metrics registry.

func observeProviderRequest(provider Provider, op string, start time.Time) {
	if obs.ProviderRequestLatency == nil {
		return
	}
	obs.ProviderRequestLatency.WithLabelValues(string(provider), op).Observe(obs.DurationMillis(time.Since(start)))
}

func countTokenRefresh(provider Provider, result string) {
	if obs.ProviderTokenRefreshTotal == nil {
		return
	}
	obs.ProviderTokenRefreshTotal.WithLabelValues(string(provider), result).Inc()
}

func countPollTick(provider Provider, outcome string) {
	if obs.ApprovalPollTicksTotal == nil {
		return
	}
	obs.ApprovalPollTicksTotal.WithLabelValues(string(provider), outcome).Inc()
}

func countPollSkip() {
	if obs.ApprovalPollSkippedTotal == nil {
		return
	}
	obs.ApprovalPollSkippedTotal.Inc()
}

func countCheckoutStarted(provider Provider, kind string) {
	if obs.CheckoutStartedTotal == nil {
		return
	}
	obs.CheckoutStartedTotal.WithLabelValues(string(provider), kind).Inc()
}

func countCheckoutCompleted(provider Provider, kind, result string) {
	if obs.CheckoutCompletedTotal == nil {
		return
	}
	obs.CheckoutCompletedTotal.WithLabelValues(string(provider), kind, result).Inc()
}

func countCheckoutAbandoned(provider Provider) {
	if obs.CheckoutAbandonedTotal == nil {
		return
	}
	obs.CheckoutAbandonedTotal.WithLabelValues(string(provider)).Inc()
}

// Copyright 2026 CAP Contributors
//
// Prometheus instrumentation for the adaptive enforcement orchestrator.

package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rolloutPercent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cap_adapt_rollout_percent",
		Help: "Configured enforcement rollout percentage, 0-100.",
	})

	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cap_adapt_requests_total",
		Help: "Total enforcement decisions, labeled by mode and policy.",
	}, []string{"mode", "policy_id"})

	driftEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cap_adapt_drift_events_total",
		Help: "Total shadow/enforced verdict disagreements, labeled by policy.",
	}, []string{"policy_id"})

	driftRatio5m = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cap_adapt_drift_ratio_5m",
		Help: "Rolling 5-minute shadow/enforced disagreement ratio.",
	})

	selectionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cap_adapt_selection_latency_seconds",
		Help:    "Latency of a single enforcement decision.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
	})
)

// SetRolloutPercent reports the currently configured rollout percentage.
func SetRolloutPercent(pct int) {
	rolloutPercent.Set(float64(pct))
}

// SetDriftRatio reports the current rolling drift ratio, typically fed by
// pkg/drift's windowed analysis.
func SetDriftRatio(ratio float64) {
	driftRatio5m.Set(ratio)
}

// RecordDriftEvent increments the disagreement counter for a policy.
func RecordDriftEvent(policyID string) {
	driftEventsTotal.WithLabelValues(policyID).Inc()
}

func recordEnforcedRequest(policyID string) {
	requestsTotal.WithLabelValues("enforced", policyID).Inc()
}

func recordShadowRequest(policyID string) {
	requestsTotal.WithLabelValues("shadow", policyID).Inc()
}

func observeSelectionLatency(seconds float64) {
	selectionLatency.Observe(seconds)
}

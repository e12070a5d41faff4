package observability

import (
	dto "github.com/prometheus/client_model/go"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RegistryRequestsTotal counts registry lookups by status (hit, miss, error)
	RegistryRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keiko_registry_requests_total",
			Help: "Total number of package registry lookups by outcome",
		},
		[]string{"outcome"}, // cache_hit, fetched, not_found, error
	)

	// RegistryRequestDuration tracks registry request duration in seconds
	RegistryRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "keiko_registry_request_duration_seconds",
			Help:    "Registry request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to 16s
		},
	)

	// UpdatesPlannedTotal counts planned declaration rewrites by kind
	UpdatesPlannedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keiko_updates_planned_total",
			Help: "Total number of declaration rewrites by kind",
		},
		[]string{"kind"}, // updated, current, unresolved
	)

	// VerifierRunsTotal counts compatibility verifier invocations by result
	VerifierRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keiko_verifier_runs_total",
			Help: "Total number of compatibility verifier runs by result",
		},
		[]string{"result"}, // ok, failed, skipped
	)

	// ConflictFixesTotal counts conflict fixes by rule name and outcome
	ConflictFixesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keiko_conflict_fixes_total",
			Help: "Total number of conflict fixes attempted by rule and outcome",
		},
		[]string{"rule", "outcome"}, // kept, reverted
	)
)

// CounterValue reads the current value of a counter in a vec.
// Intended for tests and run summaries.
func CounterValue(vec *prometheus.CounterVec, labels ...string) float64 {
	c, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		return 0
	}
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

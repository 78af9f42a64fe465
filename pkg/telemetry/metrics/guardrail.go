package metrics

import (
	"time"

	"signalhouse/overture/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// checkDurationBuckets covers individual guardrail checks. Six of the seven
// are pure in-process functions in the tens of microseconds; the frequency
// check reads its window store and can reach low milliseconds.
var checkDurationBuckets = []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05}

// GuardrailMetrics tracks individual guardrail checks.
//
// Metrics:
//   - overture_guardrail_results_total: check results, by check name and verdict
//   - overture_guardrail_duration_seconds: per-check evaluation latency
//   - overture_guardrail_unavailable_total: checks that could not complete
type GuardrailMetrics struct {
	// Check results by name and verdict
	resultsTotal *prometheus.CounterVec

	// Per-check evaluation latency
	duration *prometheus.HistogramVec

	// Checks that failed closed: missing inputs, timeout, or panic
	unavailableTotal *prometheus.CounterVec
}

// NewGuardrailMetrics creates and registers guardrail metrics with the provided registry.
func NewGuardrailMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *GuardrailMetrics {
	gm := &GuardrailMetrics{
		resultsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "guardrail_results_total",
				Help:      "Total check results, by check name and verdict (PASS, FAIL, ESCALATE)",
			},
			[]string{"check", "verdict"},
		),

		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "guardrail_duration_seconds",
				Help:      "Per-check evaluation latency in seconds",
				Buckets:   checkDurationBuckets,
			},
			[]string{"check"},
		),

		unavailableTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "guardrail_unavailable_total",
				Help:      "Checks that could not complete and failed closed",
			},
			[]string{"check"},
		),
	}

	registry.MustRegister(
		gm.resultsTotal,
		gm.duration,
		gm.unavailableTotal,
	)

	return gm
}

// RecordResult records one check's verdict and latency. The check label is
// the registered check name; cardinality is bounded by the pack's check set.
func (gm *GuardrailMetrics) RecordResult(check, verdict string, elapsed time.Duration) {
	gm.resultsTotal.WithLabelValues(check, verdict).Inc()
	gm.duration.WithLabelValues(check).Observe(elapsed.Seconds())
}

// RecordUnavailable records a check that failed closed. The result itself is
// still counted through RecordResult as a FAIL; this counter isolates
// infrastructure trouble from genuine policy violations.
func (gm *GuardrailMetrics) RecordUnavailable(check string) {
	gm.unavailableTotal.WithLabelValues(check).Inc()
}

package metrics

import (
	"time"

	"signalhouse/overture/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// decisionDurationBuckets covers the end-to-end decision pipeline: snapshot
// load, seven in-process checks, variant assignment, and a durable ledger
// append. Most decisions land under 10ms; the tail belongs to SQLite fsync
// and slow snapshot loaders.
var decisionDurationBuckets = []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0}

// DecisionMetrics tracks the decision pipeline as a whole.
//
// Metrics:
//   - overture_decisions_total: decisions served, by verdict, channel, and kind
//   - overture_decision_duration_seconds: end-to-end decision latency
//   - overture_decisions_replayed_total: decisions answered from the idempotency index
//   - overture_decisions_in_flight: decisions currently inside the pipeline
type DecisionMetrics struct {
	// Decisions served, fresh and replayed alike
	decisionsTotal *prometheus.CounterVec

	// End-to-end decision latency
	duration prometheus.Histogram

	// Replays served from the ledger's idempotency index
	replayedTotal prometheus.Counter

	// Decisions currently in flight
	inFlight prometheus.Gauge
}

// NewDecisionMetrics creates and registers decision metrics with the provided registry.
func NewDecisionMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *DecisionMetrics {
	dm := &DecisionMetrics{
		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "decisions_total",
				Help:      "Total decisions served, by aggregate verdict, action channel, and action kind",
			},
			[]string{"verdict", "channel", "kind"},
		),

		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "decision_duration_seconds",
				Help:      "End-to-end decision latency in seconds, ledger append included",
				Buckets:   decisionDurationBuckets,
			},
		),

		replayedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "decisions_replayed_total",
				Help:      "Decisions answered from the idempotency index without re-evaluation",
			},
		),

		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "decisions_in_flight",
				Help:      "Decisions currently inside the pipeline",
			},
		),
	}

	registry.MustRegister(
		dm.decisionsTotal,
		dm.duration,
		dm.replayedTotal,
		dm.inFlight,
	)

	return dm
}

// RecordDecision records one served decision.
//
// Parameters:
//   - verdict: aggregate verdict ("APPROVED", "REJECTED", "PENDING_REVIEW")
//   - channel: action channel ("email", "sms", "whatsapp", "web", "push")
//   - kind: action kind ("send_message", "apply_incentive", "change_lifecycle_stage")
//   - duration: end-to-end pipeline latency
//
// Replayed decisions are recorded here too; rate(decisions_total) is the
// serve rate, and decisions_replayed_total/decisions_total is the replay
// ratio.
func (dm *DecisionMetrics) RecordDecision(verdict, channel, kind string, duration time.Duration) {
	dm.decisionsTotal.WithLabelValues(verdict, channel, kind).Inc()
	dm.duration.Observe(duration.Seconds())
}

// RecordReplay records a decision served from the idempotency index.
func (dm *DecisionMetrics) RecordReplay() {
	dm.replayedTotal.Inc()
}

// IncInFlight marks a decision entering the pipeline.
func (dm *DecisionMetrics) IncInFlight() {
	dm.inFlight.Inc()
}

// DecInFlight marks a decision leaving the pipeline.
func (dm *DecisionMetrics) DecInFlight() {
	dm.inFlight.Dec()
}

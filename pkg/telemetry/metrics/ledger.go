package metrics

import (
	"strconv"
	"time"

	"signalhouse/overture/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// appendDurationBuckets covers a single ledger append. The memory backend
// sits in microseconds; the SQLite backend pays an fsync per append.
var appendDurationBuckets = []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25}

// LedgerMetrics tracks the append-only audit ledger.
//
// Metrics:
//   - overture_ledger_appends_total: records appended, by kind
//   - overture_ledger_append_duration_seconds: append latency
//   - overture_ledger_seq: highest assigned sequence number
//   - overture_overrides_total: human overrides recorded, by direction
type LedgerMetrics struct {
	// Records appended by kind (decision, correction)
	appendsTotal *prometheus.CounterVec

	// Append latency
	appendDuration prometheus.Histogram

	// Highest assigned sequence number
	seq prometheus.Gauge

	// Human overrides by direction (approved="true"/"false")
	overridesTotal *prometheus.CounterVec
}

// NewLedgerMetrics creates and registers ledger metrics with the provided registry.
func NewLedgerMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *LedgerMetrics {
	lm := &LedgerMetrics{
		appendsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "ledger_appends_total",
				Help:      "Total records appended to the audit ledger, by record kind",
			},
			[]string{"kind"},
		),

		appendDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "ledger_append_duration_seconds",
				Help:      "Ledger append latency in seconds",
				Buckets:   appendDurationBuckets,
			},
		),

		seq: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "ledger_seq",
				Help:      "Highest sequence number assigned by the ledger",
			},
		),

		overridesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "overrides_total",
				Help:      "Total human override corrections, by direction (approved true/false)",
			},
			[]string{"approved"},
		),
	}

	registry.MustRegister(
		lm.appendsTotal,
		lm.appendDuration,
		lm.seq,
		lm.overridesTotal,
	)

	return lm
}

// RecordAppend records one durable ledger append. The seq gauge only moves
// forward; sequence numbers are monotonic within a process.
func (lm *LedgerMetrics) RecordAppend(kind string, elapsed time.Duration, seq uint64) {
	lm.appendsTotal.WithLabelValues(kind).Inc()
	lm.appendDuration.Observe(elapsed.Seconds())
	lm.seq.Set(float64(seq))
}

// RecordOverride records a human override correction.
func (lm *LedgerMetrics) RecordOverride(approved bool) {
	lm.overridesTotal.WithLabelValues(strconv.FormatBool(approved)).Inc()
}

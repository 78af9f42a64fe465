package metrics

import (
	"sync"
	"time"

	"signalhouse/overture/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// defaultMaxCardinality bounds unique experiment/variant label combinations.
// Experiment identifiers come from policy packs, so a runaway pack (or a
// generator producing one experiment per campaign) must not be able to grow
// the scrape unboundedly. Overflowing combinations aggregate into "other".
const defaultMaxCardinality = 100

// Collector is the single registration point for all Overture metrics. It
// owns the registry, registers every metric family exactly once, and exposes
// Record methods for the pipeline and HTTP layer to call.
//
// All methods are safe on a nil *Collector and cheap no-ops when metrics are
// disabled, so components hold an optional collector without guarding every
// call site.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	// Decision pipeline metrics
	decisionMetrics *DecisionMetrics

	// Guardrail check metrics
	guardrailMetrics *GuardrailMetrics

	// Experiment allocation and lifecycle metrics
	experimentMetrics *ExperimentMetrics

	// Audit ledger metrics
	ledgerMetrics *LedgerMetrics

	// Cardinality tracking for pack-controlled label values
	cardinalityLimiter *CardinalityLimiter
}

// NewCollector creates a metrics collector backed by the given registry. A
// nil registry gets a fresh private one, which keeps tests and repeated
// construction free of double-registration panics.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "overture"
	}

	c := &Collector{
		config:             cfg,
		registry:           registry,
		cardinalityLimiter: NewCardinalityLimiter(defaultMaxCardinality),
	}

	c.decisionMetrics = NewDecisionMetrics(cfg, registry)
	c.guardrailMetrics = NewGuardrailMetrics(cfg, registry)
	c.experimentMetrics = NewExperimentMetrics(cfg, registry)
	c.ledgerMetrics = NewLedgerMetrics(cfg, registry)

	return c
}

func (c *Collector) disabled() bool {
	return c == nil || !c.config.Enabled
}

// Enabled reports whether recording does anything. Callers use it to skip
// work that exists only to feed gauges, like listing experiments after a
// sweep.
func (c *Collector) Enabled() bool {
	return !c.disabled()
}

// RecordDecision records one served decision.
//
// Parameters:
//   - verdict: aggregate verdict ("APPROVED", "REJECTED", "PENDING_REVIEW")
//   - channel: action channel
//   - kind: action kind
//   - duration: end-to-end pipeline latency
//   - replayed: whether the idempotency index short-circuited the pipeline
func (c *Collector) RecordDecision(verdict, channel, kind string, duration time.Duration, replayed bool) {
	if c.disabled() {
		return
	}

	c.decisionMetrics.RecordDecision(verdict, channel, kind, duration)
	if replayed {
		c.decisionMetrics.RecordReplay()
	}
}

// IncDecisionsInFlight marks a decision entering the pipeline.
func (c *Collector) IncDecisionsInFlight() {
	if c.disabled() {
		return
	}

	c.decisionMetrics.IncInFlight()
}

// DecDecisionsInFlight marks a decision leaving the pipeline.
func (c *Collector) DecDecisionsInFlight() {
	if c.disabled() {
		return
	}

	c.decisionMetrics.DecInFlight()
}

// RecordGuardrailResult records one check's verdict and latency. Set
// unavailable for checks that failed closed rather than genuinely failing.
func (c *Collector) RecordGuardrailResult(check, verdict string, elapsed time.Duration, unavailable bool) {
	if c.disabled() {
		return
	}

	c.guardrailMetrics.RecordResult(check, verdict, elapsed)
	if unavailable {
		c.guardrailMetrics.RecordUnavailable(check)
	}
}

// RecordAssignment records a variant assignment. Experiment and variant
// identifiers are pack-controlled, so combinations beyond the cardinality
// limit aggregate into "other".
func (c *Collector) RecordAssignment(experiment, variant string) {
	if c.disabled() {
		return
	}

	if !c.cardinalityLimiter.Allow("variant:" + experiment + ":" + variant) {
		experiment, variant = "other", "other"
	}
	c.experimentMetrics.RecordAssignment(experiment, variant)
}

// RecordExperimentEvaluation records a lifecycle evaluation by the operation
// it applied ("no_op", "promote", "retire", "close").
func (c *Collector) RecordExperimentEvaluation(op string) {
	if c.disabled() {
		return
	}

	c.experimentMetrics.RecordEvaluation(op)
}

// SetExperimentState updates the lifecycle state gauge for an experiment.
func (c *Collector) SetExperimentState(experiment, state string) {
	if c.disabled() {
		return
	}

	if !c.cardinalityLimiter.Allow("experiment:" + experiment) {
		experiment = "other"
	}
	c.experimentMetrics.SetState(experiment, state)
}

// SetVariantWeight updates the weight gauge for one variant.
func (c *Collector) SetVariantWeight(experiment, variant string, weight float64) {
	if c.disabled() {
		return
	}

	if !c.cardinalityLimiter.Allow("variant:" + experiment + ":" + variant) {
		experiment, variant = "other", "other"
	}
	c.experimentMetrics.SetVariantWeight(experiment, variant, weight)
}

// RecordLedgerAppend records one durable ledger append.
//
// Parameters:
//   - kind: record kind ("decision", "correction")
//   - elapsed: append latency
//   - seq: the assigned sequence number
func (c *Collector) RecordLedgerAppend(kind string, elapsed time.Duration, seq uint64) {
	if c.disabled() {
		return
	}

	c.ledgerMetrics.RecordAppend(kind, elapsed, seq)
}

// RecordOverride records a human override correction.
func (c *Collector) RecordOverride(approved bool) {
	if c.disabled() {
		return
	}

	c.ledgerMetrics.RecordOverride(approved)
}

// Registry returns the Prometheus registry behind this collector, for
// mounting the scrape endpoint:
//
//	http.Handle("/metrics", promhttp.HandlerFor(
//		collector.Registry(),
//		promhttp.HandlerOpts{},
//	))
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// CardinalityLimiter caps the number of unique label combinations admitted
// to metrics whose label values are operator-controlled.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a limiter admitting at most maxCardinality
// unique label sets.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether a label set may be used as-is. Known sets are always
// allowed; new sets are admitted until the limit is reached.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	// Double-check after acquiring write lock
	if _, exists := cl.current[labelSet]; exists {
		return true
	}

	if len(cl.current) >= cl.maxCardinality {
		return false
	}

	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}

package metrics

import (
	"signalhouse/overture/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// Experiment state gauge values. The gauge encodes the lifecycle as a number
// so dashboards can alert on transitions.
const (
	stateValueCollecting  = 0
	stateValueSignificant = 1
	stateValueClosed      = 2
	stateValueUnknown     = -1
)

// ExperimentMetrics tracks variant allocation and lifecycle evaluation.
//
// Metrics:
//   - overture_experiment_assignments_total: variant assignments, by experiment and variant
//   - overture_experiment_evaluations_total: lifecycle evaluations, by applied operation
//   - overture_experiment_state: lifecycle state gauge (0=collecting, 1=significant, 2=closed)
//   - overture_variant_weight: current variant weight gauge
//
// Experiment and variant identifiers come from policy packs, so label values
// are operator-controlled; the Collector bounds them with its cardinality
// limiter before they reach this type.
type ExperimentMetrics struct {
	// Variant assignments by experiment and variant
	assignmentsTotal *prometheus.CounterVec

	// Lifecycle evaluations by applied operation
	evaluationsTotal *prometheus.CounterVec

	// Lifecycle state per experiment
	state *prometheus.GaugeVec

	// Current weight per variant
	variantWeight *prometheus.GaugeVec
}

// NewExperimentMetrics creates and registers experiment metrics with the provided registry.
func NewExperimentMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *ExperimentMetrics {
	em := &ExperimentMetrics{
		assignmentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "experiment_assignments_total",
				Help:      "Total variant assignments, by experiment and variant",
			},
			[]string{"experiment", "variant"},
		),

		evaluationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "experiment_evaluations_total",
				Help:      "Total lifecycle evaluations, by applied operation (no_op, promote, retire, close)",
			},
			[]string{"op"},
		),

		state: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "experiment_state",
				Help:      "Experiment lifecycle state (0=collecting, 1=significant, 2=closed)",
			},
			[]string{"experiment"},
		),

		variantWeight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "variant_weight",
				Help:      "Current variant weight, normalized across the experiment's variants",
			},
			[]string{"experiment", "variant"},
		),
	}

	registry.MustRegister(
		em.assignmentsTotal,
		em.evaluationsTotal,
		em.state,
		em.variantWeight,
	)

	return em
}

// RecordAssignment records a variant assignment.
func (em *ExperimentMetrics) RecordAssignment(experiment, variant string) {
	em.assignmentsTotal.WithLabelValues(experiment, variant).Inc()
}

// RecordEvaluation records a lifecycle evaluation by the operation it applied.
func (em *ExperimentMetrics) RecordEvaluation(op string) {
	em.evaluationsTotal.WithLabelValues(op).Inc()
}

// SetState updates the lifecycle state gauge for an experiment. Unknown
// state strings map to -1 rather than being dropped, so a vocabulary drift
// shows up on the dashboard instead of vanishing.
func (em *ExperimentMetrics) SetState(experiment, state string) {
	em.state.WithLabelValues(experiment).Set(stateValue(state))
}

// SetVariantWeight updates the weight gauge for one variant.
func (em *ExperimentMetrics) SetVariantWeight(experiment, variant string, weight float64) {
	em.variantWeight.WithLabelValues(experiment, variant).Set(weight)
}

func stateValue(state string) float64 {
	switch state {
	case "collecting":
		return stateValueCollecting
	case "significant":
		return stateValueSignificant
	case "closed":
		return stateValueClosed
	default:
		return stateValueUnknown
	}
}

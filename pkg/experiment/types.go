package experiment

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// WeightTolerance is the largest drift from 1.0 a variant weight sum may
// show before it is an invariant violation.
const WeightTolerance = 1e-9

// State is the experiment lifecycle state.
type State string

const (
	// StateCollecting means the experiment is gathering outcomes and no
	// variant has reached significance.
	StateCollecting State = "collecting"

	// StateSignificant means a winner was identified and its traffic share
	// is being shifted upward sweep by sweep.
	StateSignificant State = "significant"

	// StateClosed is terminal: traffic is fully shifted and the experiment
	// no longer accepts assignments.
	StateClosed State = "closed"
)

// Valid reports whether the state is a known lifecycle state.
func (s State) Valid() bool {
	switch s {
	case StateCollecting, StateSignificant, StateClosed:
		return true
	}
	return false
}

// Variant is one arm of an experiment.
type Variant struct {
	// ID identifies the variant within its experiment.
	ID string `json:"id" yaml:"id"`

	// Weight is the variant's share of new assignments, 0-1. Weights
	// across one experiment's variants sum to 1.
	Weight float64 `json:"weight" yaml:"weight"`

	// Control marks the baseline arm. Exactly one per experiment; the
	// control is never retired.
	Control bool `json:"control,omitempty" yaml:"control,omitempty"`

	// Impressions and Conversions are the accumulated outcome counters.
	// They only ever increase.
	Impressions uint64 `json:"impressions" yaml:"impressions,omitempty"`
	Conversions uint64 `json:"conversions" yaml:"conversions,omitempty"`
}

// Rate returns the variant's conversion rate, zero when it has no
// impressions.
func (v *Variant) Rate() float64 {
	if v.Impressions == 0 {
		return 0
	}
	return float64(v.Conversions) / float64(v.Impressions)
}

// Experiment owns two or more variants and the lifecycle around them.
// Variants do not outlive their experiment.
type Experiment struct {
	// ID is the experiment identifier actions reference.
	ID string `json:"id" yaml:"id"`

	// Name is a human-readable label.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// State is the lifecycle state.
	State State `json:"state" yaml:"state,omitempty"`

	// Variants are the experiment's arms, exactly one of them control.
	Variants []Variant `json:"variants" yaml:"variants"`

	// StartedAt anchors the duration gates.
	StartedAt time.Time `json:"started_at" yaml:"started_at,omitempty"`

	// ClosedAt is zero until the experiment closes.
	ClosedAt time.Time `json:"closed_at,omitempty" yaml:"-"`

	// WinnerID names the promoted variant once traffic fully shifted.
	// Empty for experiments closed by exhaustion with control retained.
	WinnerID string `json:"winner_id,omitempty" yaml:"-"`

	// UpdatedAt is when the experiment last changed.
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// Control returns the control variant, or nil if none is marked.
func (e *Experiment) Control() *Variant {
	for i := range e.Variants {
		if e.Variants[i].Control {
			return &e.Variants[i]
		}
	}
	return nil
}

// Variant returns the variant with the given ID, or nil.
func (e *Experiment) Variant(id string) *Variant {
	for i := range e.Variants {
		if e.Variants[i].ID == id {
			return &e.Variants[i]
		}
	}
	return nil
}

// WeightSum returns the sum of all variant weights.
func (e *Experiment) WeightSum() float64 {
	var sum float64
	for i := range e.Variants {
		sum += e.Variants[i].Weight
	}
	return sum
}

// Clone returns a deep copy. Stores hand out clones so callers cannot
// mutate stored state.
func (e *Experiment) Clone() *Experiment {
	clone := *e
	clone.Variants = make([]Variant, len(e.Variants))
	copy(clone.Variants, e.Variants)
	return &clone
}

// Validate checks the experiment for usable values: two or more variants,
// exactly one control, unique IDs, and weights summing to 1.
func (e *Experiment) Validate() error {
	if e.ID == "" {
		return errors.New("experiment ID is required")
	}
	if !e.State.Valid() {
		return fmt.Errorf("invalid experiment state %q", e.State)
	}
	if len(e.Variants) < 2 {
		return fmt.Errorf("experiment %s needs at least 2 variants, has %d", e.ID, len(e.Variants))
	}
	if e.StartedAt.IsZero() {
		return fmt.Errorf("experiment %s has no start time", e.ID)
	}

	seen := make(map[string]bool, len(e.Variants))
	controls := 0
	for i := range e.Variants {
		v := &e.Variants[i]
		if v.ID == "" {
			return fmt.Errorf("experiment %s has a variant without an ID", e.ID)
		}
		if seen[v.ID] {
			return fmt.Errorf("experiment %s has duplicate variant %q", e.ID, v.ID)
		}
		seen[v.ID] = true
		if v.Control {
			controls++
		}
		if v.Weight < 0 || v.Weight > 1 {
			return fmt.Errorf("experiment %s variant %s weight %.4f outside [0,1]", e.ID, v.ID, v.Weight)
		}
	}
	if controls != 1 {
		return fmt.Errorf("experiment %s needs exactly one control variant, has %d", e.ID, controls)
	}

	if sum := e.WeightSum(); math.Abs(sum-1) > WeightTolerance {
		return NewInvariantError(e.ID, fmt.Sprintf("variant weights sum to %.12f, want 1", sum))
	}
	return nil
}

// Assignment binds a subject to a variant for the experiment's lifetime.
type Assignment struct {
	ExperimentID string    `json:"experiment_id"`
	SubjectID    string    `json:"subject_id"`
	VariantID    string    `json:"variant_id"`
	AssignedAt   time.Time `json:"assigned_at"`
}

// Op is the kind of decision an evaluation produces.
type Op string

const (
	// OpNoop means the evaluation changed nothing: the experiment is
	// closed, still collecting, or no variant reached significance.
	OpNoop Op = "no_op"

	// OpPromote means a significant winner's weight was shifted upward.
	OpPromote Op = "promote"

	// OpRetire means a significant loser's weight was shifted to zero.
	OpRetire Op = "retire"

	// OpClose means the experiment closed: a winner reached full traffic
	// or the time/sample budget ran out with control retained.
	OpClose Op = "close"
)

// Decision is the outcome of one significance evaluation. It is
// deterministic given the experiment's counters; re-evaluating without new
// outcomes yields the same decision.
type Decision struct {
	// ExperimentID names the evaluated experiment.
	ExperimentID string `json:"experiment_id"`

	// Op is what the evaluation did.
	Op Op `json:"op"`

	// VariantID is the acted-on variant: the promoted or retired
	// challenger, the winner on a promotion close, or the retained control
	// on an exhaustion close. Empty for no-ops.
	VariantID string `json:"variant_id,omitempty"`

	// PValue is the directional p-value of the acted-on comparison, or 0
	// when no test ran.
	PValue float64 `json:"p_value,omitempty"`

	// Lift is the acted-on variant's conversion rate minus control's.
	Lift float64 `json:"lift,omitempty"`

	// Reason explains the decision in one short sentence.
	Reason string `json:"reason"`

	// EvaluatedAt is when the evaluation ran.
	EvaluatedAt time.Time `json:"evaluated_at"`
}

package experiment

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"signalhouse/overture/pkg/policy"
)

// PackProvider supplies the active policy pack. *policy.Manager satisfies
// it; tests use a fixed pack.
type PackProvider interface {
	Current() (*policy.Pack, error)
}

// Allocator assigns subjects to variants and evaluates experiments for
// promotion, retirement, and closure.
type Allocator struct {
	store  Store
	packs  PackProvider
	logger *slog.Logger
}

// NewAllocator creates an allocator over the given store.
func NewAllocator(store Store, packs PackProvider, logger *slog.Logger) (*Allocator, error) {
	if store == nil {
		return nil, errors.New("store cannot be nil")
	}
	if packs == nil {
		return nil, errors.New("pack provider cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Allocator{
		store:  store,
		packs:  packs,
		logger: logger.With("component", "experiment"),
	}, nil
}

// Create validates and persists a new experiment. Missing state and start
// time default to collecting/now.
func (a *Allocator) Create(ctx context.Context, exp *Experiment) error {
	if exp == nil {
		return errors.New("experiment cannot be nil")
	}

	created := exp.Clone()
	if created.State == "" {
		created.State = StateCollecting
	}
	if created.StartedAt.IsZero() {
		created.StartedAt = time.Now()
	}
	created.UpdatedAt = time.Now()

	if err := created.Validate(); err != nil {
		return err
	}
	if _, err := a.store.GetExperiment(ctx, created.ID); err == nil {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, created.ID)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	if err := a.store.PutExperiment(ctx, created); err != nil {
		return err
	}

	a.logger.Info("experiment created",
		"experiment_id", created.ID,
		"variants", len(created.Variants),
	)
	return nil
}

// Get returns one experiment.
func (a *Allocator) Get(ctx context.Context, id string) (*Experiment, error) {
	return a.store.GetExperiment(ctx, id)
}

// List returns all experiments, ordered by ID.
func (a *Allocator) List(ctx context.Context) ([]*Experiment, error) {
	return a.store.ListExperiments(ctx)
}

// Assign maps a subject to a variant.
//
// The mapping is deterministic: with unchanged weights the same
// (experiment, subject) pair always lands on the same variant, stored
// assignment or not. Stored assignments additionally make subjects sticky
// across reweighting; an assignment whose variant has since been retired
// (weight zero) is superseded against the current weights.
//
// Closed experiments return ErrExperimentClosed, unknown ones ErrNotFound;
// the pipeline records such decisions without a variant.
func (a *Allocator) Assign(ctx context.Context, experimentID, subjectID string) (string, error) {
	if experimentID == "" || subjectID == "" {
		return "", errors.New("experiment ID and subject ID are required")
	}

	exp, err := a.store.GetExperiment(ctx, experimentID)
	if err != nil {
		return "", err
	}
	if exp.State == StateClosed {
		return "", ErrExperimentClosed
	}

	asg, err := a.store.GetAssignment(ctx, experimentID, subjectID)
	if err == nil {
		if v := exp.Variant(asg.VariantID); v != nil && v.Weight > 0 {
			return asg.VariantID, nil
		}
		// Assigned variant was retired; fall through and reassign.
	} else if !errors.Is(err, ErrNoAssignment) {
		return "", err
	}

	variantID, err := pickVariant(exp, subjectID)
	if err != nil {
		return "", err
	}

	if err := a.store.PutAssignment(ctx, &Assignment{
		ExperimentID: experimentID,
		SubjectID:    subjectID,
		VariantID:    variantID,
		AssignedAt:   time.Now(),
	}); err != nil {
		return "", err
	}

	a.logger.Debug("subject assigned",
		"experiment_id", experimentID,
		"subject_id", subjectID,
		"variant_id", variantID,
	)
	return variantID, nil
}

// RecordOutcome feeds observed impressions and conversions from delivery
// and analytics collaborators into a variant's counters.
func (a *Allocator) RecordOutcome(ctx context.Context, experimentID, variantID string, impressions, conversions uint64) error {
	if experimentID == "" || variantID == "" {
		return errors.New("experiment ID and variant ID are required")
	}
	return a.store.AddOutcome(ctx, experimentID, variantID, impressions, conversions)
}

// Evaluate runs one significance evaluation over the experiment's counters
// and applies at most one operation: retire a significant loser, promote
// the best significant winner, or close an exhausted experiment. It is
// deterministic given the stored counters and mutates nothing on no-op.
func (a *Allocator) Evaluate(ctx context.Context, experimentID string) (*Decision, error) {
	pack, err := a.packs.Current()
	if err != nil {
		return nil, fmt.Errorf("capturing policy pack: %w", err)
	}

	exp, err := a.store.GetExperiment(ctx, experimentID)
	if err != nil {
		return nil, err
	}

	decision, err := a.evaluate(exp, &pack.Experiments, time.Now())
	if err != nil {
		return nil, err
	}

	if decision.Op != OpNoop {
		exp.UpdatedAt = decision.EvaluatedAt
		if err := a.store.PutExperiment(ctx, exp); err != nil {
			return nil, err
		}
		a.logger.Info("experiment evaluated",
			"experiment_id", exp.ID,
			"op", decision.Op,
			"variant_id", decision.VariantID,
			"p_value", decision.PValue,
			"lift", decision.Lift,
			"state", exp.State,
			"reason", decision.Reason,
		)
	}
	return decision, nil
}

// EvaluateAll evaluates every non-closed experiment. Failures are logged
// and skipped so one broken experiment cannot stall the sweep; the sweep
// returns every decision it made.
func (a *Allocator) EvaluateAll(ctx context.Context) ([]*Decision, error) {
	experiments, err := a.store.ListExperiments(ctx)
	if err != nil {
		return nil, err
	}

	var decisions []*Decision
	for _, exp := range experiments {
		if exp.State == StateClosed {
			continue
		}
		decision, err := a.Evaluate(ctx, exp.ID)
		if err != nil {
			a.logger.Error("experiment evaluation failed",
				"experiment_id", exp.ID,
				"error", err,
			)
			continue
		}
		decisions = append(decisions, decision)
	}
	return decisions, nil
}

// evaluate computes and applies the decision on exp in place. Persisting
// is the caller's job; on error exp must be discarded unsaved.
func (a *Allocator) evaluate(exp *Experiment, pol *policy.ExperimentPolicy, now time.Time) (*Decision, error) {
	noop := func(reason string) *Decision {
		return &Decision{ExperimentID: exp.ID, Op: OpNoop, Reason: reason, EvaluatedAt: now}
	}

	if exp.State == StateClosed {
		return noop("experiment closed"), nil
	}

	control := exp.Control()
	if control == nil {
		return nil, NewInvariantError(exp.ID, "no control variant")
	}

	age := now.Sub(exp.StartedAt)
	minSampleMet := true
	atMaxSample := true
	for i := range exp.Variants {
		if exp.Variants[i].Impressions < pol.MinSamplePerVariant {
			minSampleMet = false
		}
		if exp.Variants[i].Impressions < pol.MaxSamplePerVariant {
			atMaxSample = false
		}
	}

	// An exhausted sample budget forces a final significance pass even
	// before the duration gate opens: closing must not discard a
	// challenger the data already separates from control.
	gated := minSampleMet && (age >= pol.MinDuration || atMaxSample)

	if gated {
		// Test every live challenger against control. Retirement takes
		// precedence over promotion: stopping a harmful arm beats shifting
		// traffic toward a winning one by a sweep.
		if loser, result := worstSignificantLoser(exp, control, pol.Alpha); loser != nil {
			return a.retire(exp, control, loser, result, now)
		}
		if winner, result := bestSignificantWinner(exp, control, pol.Alpha); winner != nil {
			return a.promote(exp, winner, result, pol.PromoteStep, now)
		}
	}

	if age > pol.MaxDuration || atMaxSample {
		return a.closeExhausted(exp, control, now)
	}

	return noop("collecting"), nil
}

// retire zeroes the loser's weight and redistributes it across the
// surviving variants proportionally to their prior weights. When no
// challenger remains live the experiment closes with control retained.
func (a *Allocator) retire(exp *Experiment, control, loser *Variant, result TestResult, now time.Time) (*Decision, error) {
	freed := loser.Weight
	survivorTotal := 1 - freed

	if survivorTotal <= 0 {
		return nil, NewInvariantError(exp.ID, "retirement would leave no surviving weight")
	}

	loser.Weight = 0
	for i := range exp.Variants {
		v := &exp.Variants[i]
		if v.ID == loser.ID {
			continue
		}
		v.Weight += freed * (v.Weight / survivorTotal)
	}
	if err := renormalize(exp); err != nil {
		return nil, err
	}

	decision := &Decision{
		ExperimentID: exp.ID,
		Op:           OpRetire,
		VariantID:    loser.ID,
		PValue:       result.PValue,
		Lift:         result.Lift,
		Reason:       fmt.Sprintf("variant %s significantly below control (p=%.4f)", loser.ID, result.PValue),
		EvaluatedAt:  now,
	}

	if !exp.hasLiveChallenger() {
		exp.State = StateClosed
		exp.ClosedAt = now
		control.Weight = 1
		for i := range exp.Variants {
			if !exp.Variants[i].Control {
				exp.Variants[i].Weight = 0
			}
		}
		decision.Reason += "; no live challengers remain, control retained"
	}
	return decision, nil
}

// promote doubles the winner's weight, capped at +step per evaluation and
// at 1.0 overall, taking the increase from the other variants
// proportionally. A winner reaching full weight closes the experiment.
func (a *Allocator) promote(exp *Experiment, winner *Variant, result TestResult, step float64, now time.Time) (*Decision, error) {
	current := winner.Weight
	target := math.Min(current*2, current+step)
	if target > 1 {
		target = 1
	}
	otherTotal := 1 - current
	if target-current >= otherTotal {
		// Nothing left to take from: the winner absorbs everything.
		target = 1
	}
	delta := target - current

	if otherTotal > 0 && delta > 0 {
		for i := range exp.Variants {
			v := &exp.Variants[i]
			if v.ID == winner.ID {
				continue
			}
			v.Weight -= delta * (v.Weight / otherTotal)
		}
	}
	winner.Weight = target
	if err := renormalize(exp); err != nil {
		return nil, err
	}

	decision := &Decision{
		ExperimentID: exp.ID,
		Op:           OpPromote,
		VariantID:    winner.ID,
		PValue:       result.PValue,
		Lift:         result.Lift,
		EvaluatedAt:  now,
	}

	if winner.Weight >= 0.999 {
		winner.Weight = 1
		for i := range exp.Variants {
			if exp.Variants[i].ID != winner.ID {
				exp.Variants[i].Weight = 0
			}
		}
		exp.State = StateClosed
		exp.ClosedAt = now
		exp.WinnerID = winner.ID
		decision.Op = OpClose
		decision.Reason = fmt.Sprintf("variant %s at full traffic (p=%.4f), experiment closed", winner.ID, result.PValue)
	} else {
		exp.State = StateSignificant
		decision.Reason = fmt.Sprintf("variant %s significant winner (p=%.4f), weight %.3f -> %.3f",
			winner.ID, result.PValue, current, winner.Weight)
	}
	return decision, nil
}

// closeExhausted closes an experiment that ran out of time or sample
// budget without a significant winner. Control takes all traffic;
// WinnerID stays empty because nothing won.
func (a *Allocator) closeExhausted(exp *Experiment, control *Variant, now time.Time) (*Decision, error) {
	for i := range exp.Variants {
		exp.Variants[i].Weight = 0
	}
	control.Weight = 1
	exp.State = StateClosed
	exp.ClosedAt = now
	if err := renormalize(exp); err != nil {
		return nil, err
	}

	return &Decision{
		ExperimentID: exp.ID,
		Op:           OpClose,
		VariantID:    control.ID,
		Reason:       "no significant winner within budget, control retained",
		EvaluatedAt:  now,
	}, nil
}

// hasLiveChallenger reports whether any non-control variant still carries
// weight.
func (e *Experiment) hasLiveChallenger() bool {
	for i := range e.Variants {
		if !e.Variants[i].Control && e.Variants[i].Weight > 0 {
			return true
		}
	}
	return false
}

// bestSignificantWinner returns the significant challenger with the highest
// lift over control, or nil. Ties prefer the larger sample, then the
// lexicographically smaller ID, so the choice is deterministic and
// testable.
func bestSignificantWinner(exp *Experiment, control *Variant, alpha float64) (*Variant, TestResult) {
	var best *Variant
	var bestResult TestResult

	for i := range exp.Variants {
		v := &exp.Variants[i]
		if v.Control || v.Impressions == 0 || v.Weight <= 0 {
			continue
		}
		result := TwoProportionTest(control.Impressions, control.Conversions, v.Impressions, v.Conversions)
		if !result.Significant(alpha) || result.Lift <= 0 {
			continue
		}
		if best == nil || beats(v, result, best, bestResult) {
			best, bestResult = v, result
		}
	}
	return best, bestResult
}

// worstSignificantLoser returns the significant challenger furthest below
// control, or nil. Same deterministic tie-break as the winner pick.
func worstSignificantLoser(exp *Experiment, control *Variant, alpha float64) (*Variant, TestResult) {
	var worst *Variant
	var worstResult TestResult

	for i := range exp.Variants {
		v := &exp.Variants[i]
		if v.Control || v.Impressions == 0 || v.Weight <= 0 {
			continue
		}
		result := TwoProportionTest(control.Impressions, control.Conversions, v.Impressions, v.Conversions)
		if !result.Significant(alpha) || result.Lift >= 0 {
			continue
		}
		if worst == nil || loserOutranks(v, result, worst, worstResult) {
			worst, worstResult = v, result
		}
	}
	return worst, worstResult
}

// beats reports whether candidate with its result outranks the incumbent:
// higher lift, then larger sample, then lexicographic ID order.
func beats(candidate *Variant, candidateResult TestResult, incumbent *Variant, incumbentResult TestResult) bool {
	if candidateResult.Lift != incumbentResult.Lift {
		return candidateResult.Lift > incumbentResult.Lift
	}
	if candidate.Impressions != incumbent.Impressions {
		return candidate.Impressions > incumbent.Impressions
	}
	return candidate.ID < incumbent.ID
}

// loserOutranks reports whether candidate is a worse loser than incumbent:
// lower lift, then larger sample, then lexicographic ID order.
func loserOutranks(candidate *Variant, candidateResult TestResult, incumbent *Variant, incumbentResult TestResult) bool {
	if candidateResult.Lift != incumbentResult.Lift {
		return candidateResult.Lift < incumbentResult.Lift
	}
	if candidate.Impressions != incumbent.Impressions {
		return candidate.Impressions > incumbent.Impressions
	}
	return candidate.ID < incumbent.ID
}

// renormalize scrubs float drift out of the weight set and rejects any set
// that is genuinely broken. Proportional redistribution keeps the sum
// within machine epsilon of 1; anything past WeightTolerance is a bug, not
// drift, and must never be persisted.
func renormalize(exp *Experiment) error {
	var sum float64
	for i := range exp.Variants {
		if exp.Variants[i].Weight < 0 {
			// Tiny negative drift from subtraction is drift; anything
			// visible is breakage.
			if exp.Variants[i].Weight < -WeightTolerance {
				return NewInvariantError(exp.ID, fmt.Sprintf("variant %s weight %.12f negative",
					exp.Variants[i].ID, exp.Variants[i].Weight))
			}
			exp.Variants[i].Weight = 0
		}
		sum += exp.Variants[i].Weight
	}
	if math.IsNaN(sum) || math.Abs(sum-1) > WeightTolerance {
		return NewInvariantError(exp.ID, fmt.Sprintf("variant weights sum to %.12f, want 1", sum))
	}
	for i := range exp.Variants {
		exp.Variants[i].Weight /= sum
	}
	return nil
}

// pickVariant maps a subject onto the experiment's cumulative weight bands
// via a stable hash. Variants are walked in ID order so the mapping does
// not depend on storage order.
func pickVariant(exp *Experiment, subjectID string) (string, error) {
	variants := make([]*Variant, 0, len(exp.Variants))
	for i := range exp.Variants {
		if exp.Variants[i].Weight > 0 {
			variants = append(variants, &exp.Variants[i])
		}
	}
	if len(variants) == 0 {
		return "", NewInvariantError(exp.ID, "no variant carries weight")
	}
	sort.Slice(variants, func(i, j int) bool { return variants[i].ID < variants[j].ID })

	point := hashPoint(exp.ID, subjectID)
	var cumulative float64
	for _, v := range variants {
		cumulative += v.Weight
		if point < cumulative {
			return v.ID, nil
		}
	}
	// Float rounding can leave the last band a hair short of 1.0.
	return variants[len(variants)-1].ID, nil
}

// hashPoint maps (experiment, subject) onto [0,1). The top 53 bits of the
// sha256 keep the division exact in a float64 mantissa.
func hashPoint(experimentID, subjectID string) float64 {
	sum := sha256.Sum256([]byte(experimentID + ":" + subjectID))
	u := binary.BigEndian.Uint64(sum[:8])
	return float64(u>>11) / float64(1<<53)
}

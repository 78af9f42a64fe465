package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"signalhouse/overture/pkg/action"
	"signalhouse/overture/pkg/config"
	"signalhouse/overture/pkg/experiment"
	"signalhouse/overture/pkg/frequency"
	"signalhouse/overture/pkg/guardrail"
	"signalhouse/overture/pkg/ledger"
	"signalhouse/overture/pkg/ledger/storage"
	"signalhouse/overture/pkg/policy"
	"signalhouse/overture/pkg/subject"
	"signalhouse/overture/pkg/telemetry/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// fixedPackProvider serves one pack forever, standing in for the manager.
type fixedPackProvider struct {
	pack *policy.Pack
}

func (p fixedPackProvider) Current() (*policy.Pack, error) {
	return p.pack, nil
}

// staticCheck returns a canned verdict. The engine stamps name and elapsed.
type staticCheck struct {
	name    string
	verdict guardrail.CheckVerdict
	reason  string
}

func (c staticCheck) Name() string { return c.name }

func (c staticCheck) Evaluate(ctx context.Context, in *guardrail.Input) guardrail.Result {
	return guardrail.Result{Verdict: c.verdict, Reason: c.reason}
}

// snapshotCheck fails closed without a snapshot, the way the consent and
// engagement checks do.
type snapshotCheck struct{}

func (snapshotCheck) Name() string { return "consent" }

func (snapshotCheck) Evaluate(ctx context.Context, in *guardrail.Input) guardrail.Result {
	if in.Snapshot == nil {
		return guardrail.Result{Verdict: guardrail.CheckFail, Reason: guardrail.ReasonUnavailable}
	}
	return guardrail.Result{Verdict: guardrail.CheckPass}
}

// failingProvider simulates a subject source that is down.
type failingProvider struct {
	err error
}

func (p failingProvider) Snapshot(ctx context.Context, subjectID string) (*subject.Snapshot, error) {
	return nil, p.err
}

// slowProvider delays its answer, honoring cancellation.
type slowProvider struct {
	delay time.Duration
	snap  *subject.Snapshot
}

func (p slowProvider) Snapshot(ctx context.Context, subjectID string) (*subject.Snapshot, error) {
	select {
	case <-time.After(p.delay):
		return p.snap, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// fixture wires an orchestrator over in-memory collaborators.
type fixture struct {
	orch     *Orchestrator
	engine   *guardrail.Engine
	alloc    *experiment.Allocator
	expStore *experiment.MemoryStore
	audit    *storage.MemoryStorage
	pack     *policy.Pack
}

func newFixture(t *testing.T, pack *policy.Pack, provider subject.Provider, checks ...guardrail.Check) *fixture {
	t.Helper()

	if pack == nil {
		pack = policy.DefaultPack()
	}
	packs := fixedPackProvider{pack: pack}

	registry := guardrail.NewRegistry()
	for _, c := range checks {
		if err := registry.Register(c); err != nil {
			t.Fatalf("Register(%s) error: %v", c.Name(), err)
		}
	}
	engine, err := guardrail.NewEngine(nil, registry, packs, nil)
	if err != nil {
		t.Fatalf("NewEngine() error: %v", err)
	}

	expStore := experiment.NewMemoryStore()
	alloc, err := experiment.NewAllocator(expStore, packs, nil)
	if err != nil {
		t.Fatalf("NewAllocator() error: %v", err)
	}

	audit := storage.NewMemoryStorage()

	orch, err := NewOrchestrator(nil, provider, engine, alloc, audit, nil, nil)
	if err != nil {
		t.Fatalf("NewOrchestrator() error: %v", err)
	}

	return &fixture{
		orch:     orch,
		engine:   engine,
		alloc:    alloc,
		expStore: expStore,
		audit:    audit,
		pack:     pack,
	}
}

// activeSubject returns a consenting, engaged subject snapshot.
func activeSubject(id string) *subject.Snapshot {
	return &subject.Snapshot{
		SubjectID:       id,
		Lifecycle:       subject.StageActive,
		EngagementScore: 0.8,
		Consents: []subject.Consent{
			{Granted: true, GrantedAt: time.Now().Add(-30 * 24 * time.Hour), Source: "signup"},
		},
		TakenAt: time.Now(),
	}
}

// proposed returns a well-formed send_message action.
func proposed(id, subjectID string) *action.ProposedAction {
	return &action.ProposedAction{
		ID:        id,
		SubjectID: subjectID,
		Kind:      action.KindSendMessage,
		Channel:   action.ChannelEmail,
		Payload: action.Payload{
			Subject: "Your spring update",
			Text:    "New features this month. unsubscribe",
		},
		CampaignID:  "camp-spring",
		RequestedAt: time.Now(),
	}
}

// seedPipelineExperiment stores an open two-variant experiment.
func seedPipelineExperiment(t *testing.T, store experiment.Store, id string) {
	t.Helper()

	exp := &experiment.Experiment{
		ID:        id,
		State:     experiment.StateCollecting,
		StartedAt: time.Now().Add(-time.Hour),
		Variants: []experiment.Variant{
			{ID: "control", Weight: 0.5, Control: true},
			{ID: "challenger", Weight: 0.5},
		},
	}
	if err := store.PutExperiment(context.Background(), exp); err != nil {
		t.Fatalf("PutExperiment() error: %v", err)
	}
}

func TestDecideApprovedFlow(t *testing.T) {
	provider := subject.NewStaticProvider()
	provider.Put(activeSubject("cust-1"))
	fx := newFixture(t, nil, provider,
		staticCheck{name: "tone", verdict: guardrail.CheckPass},
		snapshotCheck{},
	)
	ctx := context.Background()

	out, err := fx.orch.Decide(ctx, proposed("act-1", "cust-1"))
	if err != nil {
		t.Fatalf("Decide() error: %v", err)
	}
	if !out.Approved() || out.Verdict != guardrail.VerdictApproved {
		t.Errorf("verdict = %s, want APPROVED", out.Verdict)
	}
	if out.AuditSeq != 1 {
		t.Errorf("AuditSeq = %d, want 1", out.AuditSeq)
	}
	if out.Replayed {
		t.Error("fresh decision marked replayed")
	}
	if out.DecidedAt.IsZero() {
		t.Error("DecidedAt not stamped")
	}
	if len(out.Results) != 2 {
		t.Fatalf("outcome carries %d results, want 2", len(out.Results))
	}

	// The decision is backed by a durable record.
	rec, err := fx.audit.GetBySeq(ctx, out.AuditSeq)
	if err != nil {
		t.Fatalf("GetBySeq() error: %v", err)
	}
	if rec.Kind != ledger.KindDecision {
		t.Errorf("record kind = %s, want decision", rec.Kind)
	}
	if rec.ActionID != "act-1" || rec.SubjectID != "cust-1" {
		t.Errorf("record identity lost: %+v", rec)
	}
	if rec.Verdict != string(guardrail.VerdictApproved) || rec.Outcome != ledger.OutcomeApproved {
		t.Errorf("verdict/outcome = %s/%s", rec.Verdict, rec.Outcome)
	}
	if rec.Channel != "email" || rec.ActionKind != "send_message" || rec.CampaignID != "camp-spring" {
		t.Errorf("action context lost: %+v", rec)
	}
	if rec.PolicyVersion != "default" {
		t.Errorf("policy version = %q, want default", rec.PolicyVersion)
	}
	if len(rec.Results) != 2 || rec.Results[0].Check != "tone" {
		t.Errorf("results lost: %+v", rec.Results)
	}
}

func TestDecideRejectionIsDataNotError(t *testing.T) {
	provider := subject.NewStaticProvider()
	provider.Put(activeSubject("cust-1"))
	fx := newFixture(t, nil, provider,
		staticCheck{name: "spam", verdict: guardrail.CheckFail, reason: "spam score 0.91 above 0.70"},
		staticCheck{name: "tone", verdict: guardrail.CheckPass},
	)
	ctx := context.Background()
	seedPipelineExperiment(t, fx.expStore, "exp-holiday")

	act := proposed("act-1", "cust-1")
	act.ExperimentID = "exp-holiday"

	out, err := fx.orch.Decide(ctx, act)
	if err != nil {
		t.Fatalf("Decide() returned error for a policy rejection: %v", err)
	}
	if out.Verdict != guardrail.VerdictRejected {
		t.Errorf("verdict = %s, want REJECTED", out.Verdict)
	}
	// Rejected actions never consume an experiment slot.
	if out.VariantID != "" {
		t.Errorf("rejected action was allocated variant %q", out.VariantID)
	}
	if fx.expStore.Assignments() != 0 {
		t.Errorf("stored %d assignments for a rejected action", fx.expStore.Assignments())
	}

	// Still audited.
	rec, err := fx.audit.GetByActionID(ctx, "act-1")
	if err != nil {
		t.Fatalf("rejected decision not audited: %v", err)
	}
	if rec.Outcome != ledger.OutcomeRejected || rec.VariantID != "" {
		t.Errorf("record = outcome %s, variant %q", rec.Outcome, rec.VariantID)
	}

	// The error view names the failing check.
	var rejection *PolicyRejectionError
	if outErr := out.Err(); !errors.As(outErr, &rejection) {
		t.Fatalf("Err() = %v, want PolicyRejectionError", outErr)
	}
	if len(rejection.Failing) != 1 || rejection.Failing[0].Check != "spam" {
		t.Errorf("failing checks = %+v, want spam only", rejection.Failing)
	}
	if !strings.Contains(rejection.Error(), "spam") {
		t.Errorf("error text %q does not name the check", rejection.Error())
	}
}

func TestDecidePendingReviewAllocates(t *testing.T) {
	provider := subject.NewStaticProvider()
	provider.Put(activeSubject("cust-1"))
	fx := newFixture(t, nil, provider,
		staticCheck{name: "financial", verdict: guardrail.CheckEscalate, reason: "discount 25% above auto-approve ceiling"},
	)
	ctx := context.Background()
	seedPipelineExperiment(t, fx.expStore, "exp-holiday")

	act := proposed("act-1", "cust-1")
	act.ExperimentID = "exp-holiday"

	out, err := fx.orch.Decide(ctx, act)
	if err != nil {
		t.Fatalf("Decide() error: %v", err)
	}
	if out.Verdict != guardrail.VerdictPendingReview {
		t.Errorf("verdict = %s, want PENDING_REVIEW", out.Verdict)
	}
	// Escalated actions keep their allocation; approval may come later.
	if out.VariantID == "" {
		t.Error("pending review action was not allocated a variant")
	}

	rec, err := fx.audit.GetByActionID(ctx, "act-1")
	if err != nil {
		t.Fatalf("GetByActionID() error: %v", err)
	}
	if rec.Outcome != ledger.OutcomePendingReview || rec.VariantID != out.VariantID {
		t.Errorf("record = outcome %s, variant %q", rec.Outcome, rec.VariantID)
	}

	var review *ReviewRequiredError
	if outErr := out.Err(); !errors.As(outErr, &review) {
		t.Fatalf("Err() = %v, want ReviewRequiredError", outErr)
	}
	if len(review.Escalating) != 1 || review.Escalating[0].Check != "financial" {
		t.Errorf("escalating checks = %+v, want financial only", review.Escalating)
	}
}

func TestDecideInvalidAction(t *testing.T) {
	provider := subject.NewStaticProvider()
	fx := newFixture(t, nil, provider, staticCheck{name: "tone", verdict: guardrail.CheckPass})
	ctx := context.Background()

	if _, err := fx.orch.Decide(ctx, nil); err == nil {
		t.Error("Decide(nil) accepted")
	}

	act := proposed("", "cust-1")
	if _, err := fx.orch.Decide(ctx, act); !errors.Is(err, action.ErrMissingID) {
		t.Errorf("Decide(no ID) = %v, want ErrMissingID", err)
	}

	// Malformed input never reaches the ledger.
	if fx.audit.Size() != 0 {
		t.Errorf("ledger holds %d records after invalid input", fx.audit.Size())
	}
}

func TestDecideReplaysDuplicate(t *testing.T) {
	pack := policy.DefaultPack()
	tracker := frequency.NewTracker(nil, nil, nil)
	provider := subject.NewStaticProvider()
	provider.Put(activeSubject("cust-1"))
	fx := newFixture(t, pack, provider, guardrail.NewFrequencyCheck(tracker))
	ctx := context.Background()

	first, err := fx.orch.Decide(ctx, proposed("act-1", "cust-1"))
	if err != nil {
		t.Fatalf("first Decide() error: %v", err)
	}
	second, err := fx.orch.Decide(ctx, proposed("act-1", "cust-1"))
	if err != nil {
		t.Fatalf("second Decide() error: %v", err)
	}

	if !second.Replayed {
		t.Error("duplicate decision not marked replayed")
	}
	if second.AuditSeq != first.AuditSeq || second.Verdict != first.Verdict {
		t.Errorf("replay diverged: %+v vs %+v", second, first)
	}
	if !second.DecidedAt.Equal(first.DecidedAt) {
		t.Errorf("replay DecidedAt = %v, want %v", second.DecidedAt, first.DecidedAt)
	}

	if fx.audit.Size() != 1 {
		t.Errorf("ledger holds %d records, want 1", fx.audit.Size())
	}
	// The replay consumed no second frequency slot.
	if got := tracker.Count("cust-1", action.ChannelEmail, pack.Frequency.Window); got != 1 {
		t.Errorf("frequency count = %d after replay, want 1", got)
	}
}

func TestDecideConcurrentSameAction(t *testing.T) {
	pack := policy.DefaultPack()
	tracker := frequency.NewTracker(nil, nil, nil)
	provider := subject.NewStaticProvider()
	provider.Put(activeSubject("cust-1"))
	fx := newFixture(t, pack, provider, guardrail.NewFrequencyCheck(tracker))

	const workers = 16
	outcomes := make([]*Outcome, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = fx.orch.Decide(context.Background(), proposed("act-1", "cust-1"))
		}(i)
	}
	wg.Wait()

	fresh := 0
	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d: Decide() error: %v", i, errs[i])
		}
		if outcomes[i].AuditSeq != outcomes[0].AuditSeq || outcomes[i].Verdict != outcomes[0].Verdict {
			t.Errorf("worker %d observed a different outcome: %+v", i, outcomes[i])
		}
		if !outcomes[i].Replayed {
			fresh++
		}
	}
	if fresh != 1 {
		t.Errorf("%d fresh decisions, want exactly 1", fresh)
	}
	if fx.audit.Size() != 1 {
		t.Errorf("ledger holds %d records, want 1", fx.audit.Size())
	}
	if got := tracker.Count("cust-1", action.ChannelEmail, pack.Frequency.Window); got != 1 {
		t.Errorf("frequency count = %d, want 1", got)
	}
}

func TestDecideFrequencyCapFailsClosed(t *testing.T) {
	pack := policy.DefaultPack()
	pack.Frequency.Cap = 2
	tracker := frequency.NewTracker(nil, nil, nil)
	provider := subject.NewStaticProvider()
	provider.Put(activeSubject("cust-1"))
	fx := newFixture(t, pack, provider, guardrail.NewFrequencyCheck(tracker))
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		out, err := fx.orch.Decide(ctx, proposed(fmt.Sprintf("act-%d", i), "cust-1"))
		if err != nil {
			t.Fatalf("Decide(act-%d) error: %v", i, err)
		}
		if !out.Approved() {
			t.Fatalf("act-%d verdict = %s, want APPROVED under cap", i, out.Verdict)
		}
	}

	out, err := fx.orch.Decide(ctx, proposed("act-3", "cust-1"))
	if err != nil {
		t.Fatalf("Decide(act-3) error: %v", err)
	}
	if out.Verdict != guardrail.VerdictRejected {
		t.Errorf("over-cap verdict = %s, want REJECTED", out.Verdict)
	}
	if len(out.Results) != 1 || !strings.Contains(out.Results[0].Reason, "frequency cap reached") {
		t.Errorf("results = %+v, want frequency cap failure", out.Results)
	}

	// All three decisions audited, including the rejection.
	if fx.audit.Size() != 3 {
		t.Errorf("ledger holds %d records, want 3", fx.audit.Size())
	}

	// A different subject is unaffected.
	provider.Put(activeSubject("cust-2"))
	out, err = fx.orch.Decide(ctx, proposed("act-4", "cust-2"))
	if err != nil {
		t.Fatalf("Decide(act-4) error: %v", err)
	}
	if !out.Approved() {
		t.Errorf("other subject verdict = %s, want APPROVED", out.Verdict)
	}
}

func TestDecideSnapshotUnavailableFailsClosed(t *testing.T) {
	fx := newFixture(t, nil,
		failingProvider{err: errors.New("subject service down")},
		snapshotCheck{},
		staticCheck{name: "tone", verdict: guardrail.CheckPass},
	)
	ctx := context.Background()

	out, err := fx.orch.Decide(ctx, proposed("act-1", "cust-1"))
	if err != nil {
		t.Fatalf("Decide() error: %v", err)
	}
	if out.Verdict != guardrail.VerdictRejected {
		t.Errorf("verdict = %s, want REJECTED when snapshot is unavailable", out.Verdict)
	}
	if out.Results[0].Reason != guardrail.ReasonUnavailable {
		t.Errorf("reason = %q, want %q", out.Results[0].Reason, guardrail.ReasonUnavailable)
	}

	// Fail-closed decisions are audited like any other.
	if fx.audit.Size() != 1 {
		t.Errorf("ledger holds %d records, want 1", fx.audit.Size())
	}
}

func TestDecideSnapshotTimeoutFailsClosed(t *testing.T) {
	fx := newFixture(t, nil, subject.NewStaticProvider(), snapshotCheck{})
	provider := slowProvider{delay: 2 * time.Second, snap: activeSubject("cust-1")}

	orch, err := NewOrchestrator(
		&OrchestratorConfig{SnapshotTimeout: 30 * time.Millisecond},
		provider, fx.engine, fx.alloc, fx.audit, nil, nil,
	)
	if err != nil {
		t.Fatalf("NewOrchestrator() error: %v", err)
	}

	start := time.Now()
	out, err := orch.Decide(context.Background(), proposed("act-1", "cust-1"))
	if err != nil {
		t.Fatalf("Decide() error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Decide() took %v, want the snapshot timeout to cut it short", elapsed)
	}
	if out.Verdict != guardrail.VerdictRejected {
		t.Errorf("verdict = %s, want REJECTED on snapshot timeout", out.Verdict)
	}
}

func TestDecideCanceledBeforeStart(t *testing.T) {
	tracker := frequency.NewTracker(nil, nil, nil)
	provider := subject.NewStaticProvider()
	provider.Put(activeSubject("cust-1"))
	fx := newFixture(t, nil, provider, guardrail.NewFrequencyCheck(tracker))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fx.orch.Decide(ctx, proposed("act-1", "cust-1"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Decide() = %v, want context.Canceled", err)
	}

	// Canceled before the pipeline started: no record, no consumed slot.
	if fx.audit.Size() != 0 {
		t.Errorf("ledger holds %d records after cancellation", fx.audit.Size())
	}
	if got := tracker.Count("cust-1", action.ChannelEmail, fx.pack.Frequency.Window); got != 0 {
		t.Errorf("frequency count = %d after cancellation, want 0", got)
	}
}

func TestDecideAssignmentSticky(t *testing.T) {
	provider := subject.NewStaticProvider()
	provider.Put(activeSubject("cust-1"))
	fx := newFixture(t, nil, provider, staticCheck{name: "tone", verdict: guardrail.CheckPass})
	ctx := context.Background()
	seedPipelineExperiment(t, fx.expStore, "exp-holiday")

	first := proposed("act-1", "cust-1")
	first.ExperimentID = "exp-holiday"
	second := proposed("act-2", "cust-1")
	second.ExperimentID = "exp-holiday"

	out1, err := fx.orch.Decide(ctx, first)
	if err != nil {
		t.Fatalf("Decide(act-1) error: %v", err)
	}
	out2, err := fx.orch.Decide(ctx, second)
	if err != nil {
		t.Fatalf("Decide(act-2) error: %v", err)
	}

	if out1.VariantID == "" {
		t.Fatal("no variant assigned")
	}
	if out2.VariantID != out1.VariantID {
		t.Errorf("subject flapped variants: %s then %s", out1.VariantID, out2.VariantID)
	}

	rec, err := fx.audit.GetByActionID(ctx, "act-1")
	if err != nil {
		t.Fatalf("GetByActionID() error: %v", err)
	}
	if rec.VariantID != out1.VariantID || rec.ExperimentID != "exp-holiday" {
		t.Errorf("record variant = %q/%q", rec.ExperimentID, rec.VariantID)
	}
}

func TestDecideExperimentDegradesToNoVariant(t *testing.T) {
	provider := subject.NewStaticProvider()
	provider.Put(activeSubject("cust-1"))
	fx := newFixture(t, nil, provider, staticCheck{name: "tone", verdict: guardrail.CheckPass})
	ctx := context.Background()

	// Closed experiment.
	closed := &experiment.Experiment{
		ID:        "exp-closed",
		State:     experiment.StateClosed,
		StartedAt: time.Now().Add(-time.Hour),
		Variants: []experiment.Variant{
			{ID: "control", Weight: 1, Control: true},
			{ID: "challenger", Weight: 0},
		},
	}
	if err := fx.expStore.PutExperiment(ctx, closed); err != nil {
		t.Fatalf("PutExperiment() error: %v", err)
	}

	cases := []struct {
		name         string
		experimentID string
	}{
		{"unknown experiment", "exp-ghost"},
		{"closed experiment", "exp-closed"},
	}
	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			act := proposed(fmt.Sprintf("act-%d", i), "cust-1")
			act.ExperimentID = tc.experimentID

			out, err := fx.orch.Decide(ctx, act)
			if err != nil {
				t.Fatalf("Decide() error: %v", err)
			}
			if !out.Approved() {
				t.Errorf("verdict = %s, want APPROVED despite missing allocation", out.Verdict)
			}
			if out.VariantID != "" {
				t.Errorf("variant = %q, want empty", out.VariantID)
			}
		})
	}
}

func TestOverrideApprovesRejectedDecision(t *testing.T) {
	provider := subject.NewStaticProvider()
	provider.Put(activeSubject("cust-1"))
	fx := newFixture(t, nil, provider,
		staticCheck{name: "spam", verdict: guardrail.CheckFail, reason: "spam score 0.91 above 0.70"},
	)
	ctx := context.Background()

	rejected, err := fx.orch.Decide(ctx, proposed("act-1", "cust-1"))
	if err != nil {
		t.Fatalf("Decide() error: %v", err)
	}

	out, err := fx.orch.Override(ctx, rejected.AuditSeq, true, "false positive, campaign copy reviewed")
	if err != nil {
		t.Fatalf("Override() error: %v", err)
	}
	if out.Verdict != guardrail.VerdictApproved {
		t.Errorf("override verdict = %s, want APPROVED", out.Verdict)
	}
	if out.AuditSeq == rejected.AuditSeq {
		t.Error("override reused the original record's seq")
	}
	if out.ActionID != "act-1" {
		t.Errorf("override action ID = %s, want act-1", out.ActionID)
	}

	// The correction is a proper record referencing the original.
	correction, err := fx.audit.GetCorrectionFor(ctx, rejected.AuditSeq)
	if err != nil {
		t.Fatalf("GetCorrectionFor() error: %v", err)
	}
	if correction.Kind != ledger.KindCorrection || !correction.HumanOverride {
		t.Errorf("correction fields: %+v", correction)
	}
	if correction.OverrideReason != "false positive, campaign copy reviewed" {
		t.Errorf("override reason = %q", correction.OverrideReason)
	}
	if correction.CorrectsSeq != rejected.AuditSeq {
		t.Errorf("CorrectsSeq = %d, want %d", correction.CorrectsSeq, rejected.AuditSeq)
	}
	if correction.Outcome != ledger.OutcomeApprovedOverride {
		t.Errorf("correction outcome = %s, want approved_override", correction.Outcome)
	}
	if len(correction.Results) != 1 || correction.Results[0].Check != "spam" {
		t.Errorf("correction lost the original results: %+v", correction.Results)
	}

	// The original record is untouched.
	original, err := fx.audit.GetBySeq(ctx, rejected.AuditSeq)
	if err != nil {
		t.Fatalf("GetBySeq() error: %v", err)
	}
	if original.Verdict != string(guardrail.VerdictRejected) || original.Outcome != ledger.OutcomeRejected {
		t.Errorf("original mutated: verdict %s outcome %s", original.Verdict, original.Outcome)
	}
	if original.HumanOverride {
		t.Error("original marked as override")
	}
}

func TestOverrideRejectsPendingReview(t *testing.T) {
	provider := subject.NewStaticProvider()
	provider.Put(activeSubject("cust-1"))
	fx := newFixture(t, nil, provider,
		staticCheck{name: "financial", verdict: guardrail.CheckEscalate, reason: "discount above ceiling"},
	)
	ctx := context.Background()

	pending, err := fx.orch.Decide(ctx, proposed("act-1", "cust-1"))
	if err != nil {
		t.Fatalf("Decide() error: %v", err)
	}

	out, err := fx.orch.Override(ctx, pending.AuditSeq, false, "discount too aggressive for this segment")
	if err != nil {
		t.Fatalf("Override() error: %v", err)
	}
	if out.Verdict != guardrail.VerdictRejected {
		t.Errorf("verdict = %s, want REJECTED", out.Verdict)
	}

	correction, err := fx.audit.GetCorrectionFor(ctx, pending.AuditSeq)
	if err != nil {
		t.Fatalf("GetCorrectionFor() error: %v", err)
	}
	if correction.Outcome != ledger.OutcomeRejectedOverride {
		t.Errorf("correction outcome = %s, want rejected_override", correction.Outcome)
	}
}

func TestOverridePreconditions(t *testing.T) {
	provider := subject.NewStaticProvider()
	provider.Put(activeSubject("cust-1"))
	fx := newFixture(t, nil, provider,
		staticCheck{name: "tone", verdict: guardrail.CheckPass},
	)
	ctx := context.Background()

	approved, err := fx.orch.Decide(ctx, proposed("act-1", "cust-1"))
	if err != nil {
		t.Fatalf("Decide() error: %v", err)
	}

	if _, err := fx.orch.Override(ctx, approved.AuditSeq, true, ""); !errors.Is(err, ErrEmptyOverrideReason) {
		t.Errorf("empty reason: %v, want ErrEmptyOverrideReason", err)
	}
	if _, err := fx.orch.Override(ctx, approved.AuditSeq, true, "why not"); !errors.Is(err, ErrNotOverridable) {
		t.Errorf("approved target: %v, want ErrNotOverridable", err)
	}
	if _, err := fx.orch.Override(ctx, 999, true, "missing"); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("missing target: %v, want ErrNotFound", err)
	}
}

func TestOverrideTwiceBlocked(t *testing.T) {
	provider := subject.NewStaticProvider()
	provider.Put(activeSubject("cust-1"))
	fx := newFixture(t, nil, provider,
		staticCheck{name: "spam", verdict: guardrail.CheckFail, reason: "spam"},
	)
	ctx := context.Background()

	rejected, err := fx.orch.Decide(ctx, proposed("act-1", "cust-1"))
	if err != nil {
		t.Fatalf("Decide() error: %v", err)
	}

	first, err := fx.orch.Override(ctx, rejected.AuditSeq, true, "reviewed")
	if err != nil {
		t.Fatalf("first Override() error: %v", err)
	}
	if _, err := fx.orch.Override(ctx, rejected.AuditSeq, false, "changed my mind"); !errors.Is(err, ErrAlreadyOverridden) {
		t.Errorf("second Override() = %v, want ErrAlreadyOverridden", err)
	}

	// Overriding the correction itself is out too: corrections are final.
	if _, err := fx.orch.Override(ctx, first.AuditSeq, false, "meta"); !errors.Is(err, ErrNotOverridable) {
		t.Errorf("Override(correction) = %v, want ErrNotOverridable", err)
	}
}

func TestOverrideConcurrentSingleWinner(t *testing.T) {
	provider := subject.NewStaticProvider()
	provider.Put(activeSubject("cust-1"))
	fx := newFixture(t, nil, provider,
		staticCheck{name: "spam", verdict: guardrail.CheckFail, reason: "spam"},
	)
	ctx := context.Background()

	rejected, err := fx.orch.Decide(ctx, proposed("act-1", "cust-1"))
	if err != nil {
		t.Fatalf("Decide() error: %v", err)
	}

	const reviewers = 8
	errs := make([]error, reviewers)

	var wg sync.WaitGroup
	for i := 0; i < reviewers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = fx.orch.Override(context.Background(), rejected.AuditSeq, true, "reviewed concurrently")
		}(i)
	}
	wg.Wait()

	winners := 0
	for i, err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, ErrAlreadyOverridden):
		default:
			t.Errorf("reviewer %d: unexpected error %v", i, err)
		}
	}
	if winners != 1 {
		t.Errorf("%d overrides landed, want exactly 1", winners)
	}

	count, err := fx.audit.Count(ctx, &ledger.Query{Kind: ledger.KindCorrection})
	if err != nil {
		t.Fatalf("Count() error: %v", err)
	}
	if count != 1 {
		t.Errorf("%d correction records, want 1", count)
	}
}

func TestDecideRecordsMetrics(t *testing.T) {
	provider := subject.NewStaticProvider()
	provider.Put(activeSubject("cust-1"))

	packs := fixedPackProvider{pack: policy.DefaultPack()}
	registry := guardrail.NewRegistry()
	if err := registry.Register(staticCheck{name: "tone", verdict: guardrail.CheckPass}); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	engine, err := guardrail.NewEngine(nil, registry, packs, nil)
	if err != nil {
		t.Fatalf("NewEngine() error: %v", err)
	}
	alloc, err := experiment.NewAllocator(experiment.NewMemoryStore(), packs, nil)
	if err != nil {
		t.Fatalf("NewAllocator() error: %v", err)
	}

	collector := metrics.NewCollector(&config.MetricsConfig{Enabled: true, Namespace: "test"}, nil)
	orch, err := NewOrchestrator(nil, provider, engine, alloc, storage.NewMemoryStorage(), collector, nil)
	if err != nil {
		t.Fatalf("NewOrchestrator() error: %v", err)
	}
	ctx := context.Background()

	if _, err := orch.Decide(ctx, proposed("act-1", "cust-1")); err != nil {
		t.Fatalf("Decide() error: %v", err)
	}
	out, err := orch.Decide(ctx, proposed("act-1", "cust-1"))
	if err != nil {
		t.Fatalf("replay Decide() error: %v", err)
	}
	if !out.Replayed {
		t.Fatal("second decision not replayed")
	}

	expected := `
# HELP test_decisions_total Total decisions served, by aggregate verdict, action channel, and action kind
# TYPE test_decisions_total counter
test_decisions_total{channel="email",kind="send_message",verdict="APPROVED"} 2
# HELP test_decisions_replayed_total Decisions answered from the idempotency index without re-evaluation
# TYPE test_decisions_replayed_total counter
test_decisions_replayed_total 1
# HELP test_decisions_in_flight Decisions currently inside the pipeline
# TYPE test_decisions_in_flight gauge
test_decisions_in_flight 0
# HELP test_guardrail_results_total Total check results, by check name and verdict (PASS, FAIL, ESCALATE)
# TYPE test_guardrail_results_total counter
test_guardrail_results_total{check="tone",verdict="PASS"} 1
# HELP test_ledger_appends_total Total records appended to the audit ledger, by record kind
# TYPE test_ledger_appends_total counter
test_ledger_appends_total{kind="decision"} 1
# HELP test_ledger_seq Highest sequence number assigned by the ledger
# TYPE test_ledger_seq gauge
test_ledger_seq 1
`
	if err := testutil.GatherAndCompare(collector.Registry(), strings.NewReader(expected),
		"test_decisions_total",
		"test_decisions_replayed_total",
		"test_decisions_in_flight",
		"test_guardrail_results_total",
		"test_ledger_appends_total",
		"test_ledger_seq",
	); err != nil {
		t.Errorf("unexpected metrics: %v", err)
	}
}

package guardrail

import (
	"context"
	"fmt"
	"time"

	"signalhouse/overture/pkg/action"
	"signalhouse/overture/pkg/subject"
)

// ConsentCheck verifies the subject holds a live opt-in covering the
// action's channel. It never escalates: missing, revoked, or stale consent
// is always a hard fail.
type ConsentCheck struct{}

// NewConsentCheck creates the consent check.
func NewConsentCheck() *ConsentCheck { return &ConsentCheck{} }

// Name implements Check.
func (c *ConsentCheck) Name() string { return "consent" }

// Evaluate implements Check.
func (c *ConsentCheck) Evaluate(ctx context.Context, in *Input) Result {
	if !in.Pack.Consent.Required {
		return Result{Verdict: CheckPass, Reason: "consent not required"}
	}
	if in.Snapshot == nil {
		return Result{Verdict: CheckFail, Reason: ReasonUnavailable}
	}

	consent, ok := in.Snapshot.ConsentFor(in.Action.Channel)
	if !ok {
		return Result{
			Verdict: CheckFail,
			Reason:  fmt.Sprintf("no consent record for channel %s", in.Action.Channel),
		}
	}
	if !consent.Granted {
		return Result{Verdict: CheckFail, Reason: "consent revoked"}
	}
	if maxAge := in.Pack.Consent.MaxAge; maxAge > 0 {
		if age := time.Since(consent.GrantedAt); age > maxAge {
			return Result{
				Verdict: CheckFail,
				Reason:  fmt.Sprintf("consent stale: granted %s ago, max age %s", age.Round(time.Hour), maxAge),
			}
		}
	}
	return Result{Verdict: CheckPass}
}

// FinancialCheck bounds declared discounts. Discounts above the hard
// ceiling fail; discounts above the auto-approve ceiling escalate so a
// human signs off before margin leaves the building.
type FinancialCheck struct{}

// NewFinancialCheck creates the financial check.
func NewFinancialCheck() *FinancialCheck { return &FinancialCheck{} }

// Name implements Check.
func (c *FinancialCheck) Name() string { return "financial" }

// Evaluate implements Check.
func (c *FinancialCheck) Evaluate(ctx context.Context, in *Input) Result {
	discount := in.Action.Payload.DiscountPercent
	if in.Action.Kind != action.KindApplyIncentive && discount == 0 {
		return Result{Verdict: CheckPass, Reason: "no declared incentive"}
	}

	fin := in.Pack.Financial
	score := 0.0
	if fin.AbsoluteMaxPercent > 0 {
		score = discount / fin.AbsoluteMaxPercent
		if score > 1 {
			score = 1
		}
	}

	switch {
	case discount > fin.AbsoluteMaxPercent:
		return Result{
			Verdict: CheckFail,
			Reason:  fmt.Sprintf("discount %.1f%% above absolute maximum %.1f%%", discount, fin.AbsoluteMaxPercent),
			Score:   score,
		}
	case discount > fin.AutoApproveMaxPercent:
		return Result{
			Verdict: CheckEscalate,
			Reason:  fmt.Sprintf("discount %.1f%% requires human approval (auto-approve ceiling %.1f%%)", discount, fin.AutoApproveMaxPercent),
			Score:   score,
		}
	default:
		return Result{Verdict: CheckPass, Score: score}
	}
}

// EngagementCheck escalates actions aimed at disengaged subjects. Stages in
// the exempt list (new subjects have no engagement history yet) pass
// unconditionally; churned subjects with zero engagement hard-fail
// incentive actions rather than burn margin on the unreachable.
type EngagementCheck struct{}

// NewEngagementCheck creates the engagement check.
func NewEngagementCheck() *EngagementCheck { return &EngagementCheck{} }

// Name implements Check.
func (c *EngagementCheck) Name() string { return "engagement" }

// Evaluate implements Check.
func (c *EngagementCheck) Evaluate(ctx context.Context, in *Input) Result {
	if in.Snapshot == nil {
		return Result{Verdict: CheckFail, Reason: ReasonUnavailable}
	}

	eng := in.Pack.Engagement
	for _, stage := range eng.ExemptStages {
		if subject.LifecycleStage(stage) == in.Snapshot.Lifecycle {
			return Result{
				Verdict: CheckPass,
				Reason:  fmt.Sprintf("lifecycle stage %s exempt", in.Snapshot.Lifecycle),
				Score:   in.Snapshot.EngagementScore,
			}
		}
	}

	score := in.Snapshot.EngagementScore
	if in.Snapshot.Lifecycle == subject.StageChurned &&
		in.Action.Kind == action.KindApplyIncentive && score == 0 {
		return Result{
			Verdict: CheckFail,
			Reason:  "churned subject with zero engagement",
			Score:   score,
		}
	}
	if score < eng.MinScore {
		return Result{
			Verdict: CheckEscalate,
			Reason:  fmt.Sprintf("low engagement: %.2f below %.2f", score, eng.MinScore),
			Score:   score,
		}
	}
	return Result{Verdict: CheckPass, Score: score}
}

package guardrail

import (
	"context"
	"fmt"

	"signalhouse/overture/pkg/frequency"
)

// FrequencyCheck enforces the rolling send cap per subject and channel.
// It is the one stateful check: passing consumes a window slot, and the
// read-compare-increment is atomic per subject+channel inside the tracker,
// so two concurrent actions for one subject can never both observe
// "under cap".
//
// The slot is consumed even when a later check rejects the action; the cap
// invariant is one-sided and overcounting is the fail-closed direction.
type FrequencyCheck struct {
	tracker *frequency.Tracker
}

// NewFrequencyCheck creates the frequency check backed by the given tracker.
func NewFrequencyCheck(tracker *frequency.Tracker) *FrequencyCheck {
	return &FrequencyCheck{tracker: tracker}
}

// Name implements Check.
func (c *FrequencyCheck) Name() string { return "frequency" }

// Evaluate implements Check.
func (c *FrequencyCheck) Evaluate(ctx context.Context, in *Input) Result {
	if c.tracker == nil {
		return Result{Verdict: CheckFail, Reason: ReasonUnavailable}
	}

	limit := in.Pack.Frequency.ForChannel(in.Action.Channel)
	count, recorded, err := c.tracker.CountThenRecord(ctx, in.Action.SubjectID, in.Action.Channel, limit.Cap, limit.Window)
	if err != nil {
		// Journal write failed; nothing was recorded. Fail closed.
		return Result{Verdict: CheckFail, Reason: ReasonUnavailable}
	}

	score := float64(count) / float64(limit.Cap)
	if score > 1 {
		score = 1
	}

	if !recorded {
		return Result{
			Verdict: CheckFail,
			Reason:  fmt.Sprintf("frequency cap reached: %d sends in %s, cap %d", count, limit.Window, limit.Cap),
			Score:   score,
		}
	}
	return Result{Verdict: CheckPass, Score: score}
}

// RateCheck bounds the short-term submission rate per subject with a token
// bucket. It guards the pipeline against runaway callers; the rolling
// frequency cap guards the subject's inbox. The two are deliberately
// separate limits.
type RateCheck struct {
	limiter *frequency.RateLimiter
}

// NewRateCheck creates the rate check backed by the given limiter.
func NewRateCheck(limiter *frequency.RateLimiter) *RateCheck {
	return &RateCheck{limiter: limiter}
}

// Name implements Check.
func (c *RateCheck) Name() string { return "rate" }

// Evaluate implements Check.
func (c *RateCheck) Evaluate(ctx context.Context, in *Input) Result {
	if c.limiter == nil {
		return Result{Verdict: CheckFail, Reason: ReasonUnavailable}
	}

	if !c.limiter.Allow(in.Action.SubjectID, in.Pack.Rate.Burst, in.Pack.Rate.PerSecond) {
		return Result{
			Verdict: CheckFail,
			Reason: fmt.Sprintf("submission rate exceeded: burst %d, %.1f/s",
				in.Pack.Rate.Burst, in.Pack.Rate.PerSecond),
		}
	}
	return Result{Verdict: CheckPass}
}

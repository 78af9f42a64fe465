package guardrail

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"signalhouse/overture/pkg/action"
)

// ToneCheck scores rendered copy against the brand tone policy. The score
// starts at 1.0 and loses 0.1 per forbidden-term match and 0.2 per missing
// required element. Scores inside the borderline band below the threshold
// escalate for human review instead of failing outright.
type ToneCheck struct{}

// NewToneCheck creates the tone check.
func NewToneCheck() *ToneCheck { return &ToneCheck{} }

// Name implements Check.
func (c *ToneCheck) Name() string { return "tone" }

// Evaluate implements Check.
func (c *ToneCheck) Evaluate(ctx context.Context, in *Input) Result {
	text := in.Action.Payload.Text

	if text == "" {
		// Message sends cannot be tone-checked without copy; everything
		// else has no copy to object to.
		if in.Action.Kind == action.KindSendMessage {
			return Result{Verdict: CheckFail, Reason: ReasonUnavailable}
		}
		return Result{Verdict: CheckPass, Score: 1.0}
	}

	tone := in.Pack.Tone
	lower := strings.ToLower(text)

	score := 1.0
	var found []string
	for _, term := range tone.ForbiddenTerms {
		if term == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(term)) {
			score -= 0.1
			found = append(found, term)
		}
	}

	var missing []string
	if in.Action.Kind == action.KindSendMessage {
		for _, element := range tone.RequiredElements {
			if element == "" {
				continue
			}
			if !strings.Contains(lower, strings.ToLower(element)) {
				score -= 0.2
				missing = append(missing, element)
			}
		}
	}

	if score < 0 {
		score = 0
	}

	switch {
	case score < tone.MinScore-tone.BorderlineBand:
		return Result{
			Verdict: CheckFail,
			Reason:  toneReason(score, tone.MinScore, found, missing),
			Score:   score,
		}
	case score < tone.MinScore:
		return Result{
			Verdict: CheckEscalate,
			Reason:  "borderline " + toneReason(score, tone.MinScore, found, missing),
			Score:   score,
		}
	default:
		return Result{Verdict: CheckPass, Score: score}
	}
}

func toneReason(score, threshold float64, found, missing []string) string {
	reason := fmt.Sprintf("tone score %.2f below %.2f", score, threshold)
	if len(found) > 0 {
		reason += fmt.Sprintf("; forbidden terms: %s", strings.Join(found, ", "))
	}
	if len(missing) > 0 {
		reason += fmt.Sprintf("; missing elements: %s", strings.Join(missing, ", "))
	}
	return reason
}

// Shouting heuristics for the spam score: runs of capitals in the subject
// line and repeated exclamation marks anywhere.
var (
	capsRunPattern = regexp.MustCompile(`[A-Z]{3,}`)
	bangRunPattern = regexp.MustCompile(`!{2,}`)
)

// SpamCheck scores copy against the spam keyword list plus shouting
// heuristics. Each keyword hit counts one trigger, more than two all-caps
// runs in the subject line count one, and repeated exclamation marks count
// one; the score is triggers/5 capped at 1.0.
type SpamCheck struct{}

// NewSpamCheck creates the spam check.
func NewSpamCheck() *SpamCheck { return &SpamCheck{} }

// Name implements Check.
func (c *SpamCheck) Name() string { return "spam" }

// Evaluate implements Check.
func (c *SpamCheck) Evaluate(ctx context.Context, in *Input) Result {
	subject := in.Action.Payload.Subject
	text := in.Action.Payload.Text

	if text == "" {
		if in.Action.Kind == action.KindSendMessage {
			return Result{Verdict: CheckFail, Reason: ReasonUnavailable}
		}
		return Result{Verdict: CheckPass}
	}

	spam := in.Pack.Spam
	content := strings.ToLower(subject + " " + text)

	triggers := 0
	var hits []string
	for _, kw := range spam.Keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(content, strings.ToLower(kw)) {
			triggers++
			hits = append(hits, kw)
		}
	}
	if len(capsRunPattern.FindAllString(subject, -1)) > 2 {
		triggers++
		hits = append(hits, "excessive capitalization")
	}
	if len(bangRunPattern.FindAllString(subject+" "+text, -1)) > 1 {
		triggers++
		hits = append(hits, "excessive punctuation")
	}

	score := float64(triggers) / 5.0
	if score > 1 {
		score = 1
	}

	switch {
	case score > spam.MaxScore:
		return Result{
			Verdict: CheckFail,
			Reason:  fmt.Sprintf("spam score %.2f above %.2f: %s", score, spam.MaxScore, strings.Join(hits, ", ")),
			Score:   score,
		}
	case score > spam.MaxScore-0.2:
		return Result{
			Verdict: CheckEscalate,
			Reason:  fmt.Sprintf("spam score %.2f near %.2f: %s", score, spam.MaxScore, strings.Join(hits, ", ")),
			Score:   score,
		}
	default:
		return Result{Verdict: CheckPass, Score: score}
	}
}

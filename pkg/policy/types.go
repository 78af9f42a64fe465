package policy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"signalhouse/overture/pkg/action"
)

// FrequencyLimit is one rolling send cap: at most Cap sends per Window.
type FrequencyLimit struct {
	// Cap is the maximum number of sends inside the window. Default: 3
	Cap int `yaml:"cap"`

	// Window is the rolling window length. Default: 168h (one week)
	Window time.Duration `yaml:"window"`
}

// FrequencyPolicy holds the base send cap plus per-channel overrides.
type FrequencyPolicy struct {
	// Cap is the default maximum sends per window. Default: 3
	Cap int `yaml:"cap"`

	// Window is the default rolling window. Default: 168h
	Window time.Duration `yaml:"window"`

	// Channels overrides the base limit per channel. Zero fields in an
	// override fall back to the base values.
	Channels map[action.Channel]FrequencyLimit `yaml:"channels,omitempty"`
}

// ForChannel resolves the effective limit for a channel.
func (p *FrequencyPolicy) ForChannel(ch action.Channel) FrequencyLimit {
	limit := FrequencyLimit{Cap: p.Cap, Window: p.Window}
	if override, ok := p.Channels[ch]; ok {
		if override.Cap > 0 {
			limit.Cap = override.Cap
		}
		if override.Window > 0 {
			limit.Window = override.Window
		}
	}
	return limit
}

// RatePolicy bounds the short-term submission rate per subject with a
// token bucket, independent of the rolling frequency cap.
type RatePolicy struct {
	// Burst is the bucket capacity. Default: 10
	Burst int64 `yaml:"burst"`

	// PerSecond is the bucket refill rate. Default: 5.0
	PerSecond float64 `yaml:"per_second"`
}

// ConsentPolicy governs the consent check.
type ConsentPolicy struct {
	// Required hard-fails actions without a covering opt-in. Default: true
	Required bool `yaml:"required"`

	// MaxAge fails consents older than this. Zero means grants never
	// go stale. Default: 0
	MaxAge time.Duration `yaml:"max_age"`
}

// TonePolicy governs the tone/content check.
type TonePolicy struct {
	// ForbiddenTerms each cost 0.1 of the tone score when matched.
	ForbiddenTerms []string `yaml:"forbidden_terms"`

	// RequiredElements each cost 0.2 when missing from the text
	// (e.g. an unsubscribe notice).
	RequiredElements []string `yaml:"required_elements"`

	// MinScore is the passing threshold. Default: 0.85
	MinScore float64 `yaml:"min_score"`

	// BorderlineBand widens MinScore downward into an escalation band:
	// scores in [MinScore-BorderlineBand, MinScore) escalate instead of
	// failing. Default: 0.10
	BorderlineBand float64 `yaml:"borderline_band"`
}

// SpamPolicy governs the spam heuristics check.
type SpamPolicy struct {
	// Keywords are the spam trigger terms.
	Keywords []string `yaml:"keywords"`

	// MaxScore is the failing threshold for the 0-1 spam score.
	// Default: 0.7
	MaxScore float64 `yaml:"max_score"`
}

// FinancialPolicy bounds declared discounts and incentives.
type FinancialPolicy struct {
	// AutoApproveMaxPercent is the largest discount approved without a
	// human. Larger discounts escalate. Default: 20
	AutoApproveMaxPercent float64 `yaml:"auto_approve_max_percent"`

	// AbsoluteMaxPercent is the hard ceiling; discounts above it fail.
	// Default: 30
	AbsoluteMaxPercent float64 `yaml:"absolute_max_percent"`
}

// EngagementPolicy governs the low-engagement escalation.
type EngagementPolicy struct {
	// MinScore is the engagement floor below which actions escalate.
	// Default: 0.3
	MinScore float64 `yaml:"min_score"`

	// ExemptStages lists lifecycle stages the floor does not apply to
	// (new subjects have no engagement history yet). Default: [new]
	ExemptStages []string `yaml:"exempt_stages"`
}

// ExperimentPolicy governs allocation and significance evaluation.
type ExperimentPolicy struct {
	// Alpha is the significance level for the two-proportion test.
	// Default: 0.05
	Alpha float64 `yaml:"alpha"`

	// MinSamplePerVariant gates evaluation: every variant needs at least
	// this many impressions before any promote/retire verdict. Default: 1000
	MinSamplePerVariant uint64 `yaml:"min_sample_per_variant"`

	// MaxSamplePerVariant closes the experiment with control retained when
	// every variant reaches it without a significant winner. Default: 100000
	MaxSamplePerVariant uint64 `yaml:"max_sample_per_variant"`

	// MinDuration gates evaluation by experiment age. Default: 168h
	MinDuration time.Duration `yaml:"min_duration"`

	// MaxDuration closes the experiment with control retained when reached
	// without a significant winner. Default: 720h
	MaxDuration time.Duration `yaml:"max_duration"`

	// PromoteStep caps the absolute weight increase a winner gains per
	// evaluation. Promotion doubles the weight, bounded by this step.
	// Default: 0.25
	PromoteStep float64 `yaml:"promote_step"`

	// SweepSchedule is the cron spec for periodic evaluation sweeps.
	// Default: "*/15 * * * *"
	SweepSchedule string `yaml:"sweep_schedule"`
}

// Version identifies where a pack came from.
type Version struct {
	// Source is "file", "git", or "default".
	Source string `yaml:"-" json:"source"`

	// Digest is the sha256 of the pack bytes (file sources).
	Digest string `yaml:"-" json:"digest,omitempty"`

	// CommitSHA, Branch, Author, CommitTime describe the HEAD commit the
	// pack was read at (git sources).
	CommitSHA  string    `yaml:"-" json:"commit_sha,omitempty"`
	Branch     string    `yaml:"-" json:"branch,omitempty"`
	Author     string    `yaml:"-" json:"author,omitempty"`
	CommitTime time.Time `yaml:"-" json:"commit_time,omitempty"`

	// LoadedAt is when the pack was loaded into this process.
	LoadedAt time.Time `yaml:"-" json:"loaded_at"`
}

// Ref returns the short reference stamped into audit records.
func (v Version) Ref() string {
	switch v.Source {
	case "git":
		sha := v.CommitSHA
		if len(sha) > 12 {
			sha = sha[:12]
		}
		return "git:" + sha
	case "file":
		d := v.Digest
		if len(d) > 12 {
			d = d[:12]
		}
		return "file:" + d
	default:
		return "default"
	}
}

// Pack is one complete set of guardrail and experiment limits.
type Pack struct {
	Frequency   FrequencyPolicy  `yaml:"frequency"`
	Rate        RatePolicy       `yaml:"rate"`
	Consent     ConsentPolicy    `yaml:"consent"`
	Tone        TonePolicy       `yaml:"tone"`
	Spam        SpamPolicy       `yaml:"spam"`
	Financial   FinancialPolicy  `yaml:"financial"`
	Engagement  EngagementPolicy `yaml:"engagement"`
	Experiments ExperimentPolicy `yaml:"experiments"`

	Version Version `yaml:"-"`
}

// DefaultPack returns the compiled-in limits. Sources unmarshal on top of
// these so absent fields keep their defaults.
func DefaultPack() *Pack {
	return &Pack{
		Frequency: FrequencyPolicy{
			Cap:    3,
			Window: 168 * time.Hour,
		},
		Rate: RatePolicy{
			Burst:     10,
			PerSecond: 5.0,
		},
		Consent: ConsentPolicy{
			Required: true,
		},
		Tone: TonePolicy{
			ForbiddenTerms:   []string{"hate", "stupid", "idiot", "worst", "garbage"},
			RequiredElements: []string{"unsubscribe"},
			MinScore:         0.85,
			BorderlineBand:   0.10,
		},
		Spam: SpamPolicy{
			Keywords: []string{
				"free", "winner", "cash prize", "urgent", "act now",
				"limited time", "click here", "buy now", "guarantee",
			},
			MaxScore: 0.7,
		},
		Financial: FinancialPolicy{
			AutoApproveMaxPercent: 20,
			AbsoluteMaxPercent:    30,
		},
		Engagement: EngagementPolicy{
			MinScore:     0.3,
			ExemptStages: []string{"new"},
		},
		Experiments: ExperimentPolicy{
			Alpha:               0.05,
			MinSamplePerVariant: 1000,
			MaxSamplePerVariant: 100000,
			MinDuration:         168 * time.Hour,
			MaxDuration:         720 * time.Hour,
			PromoteStep:         0.25,
			SweepSchedule:       "*/15 * * * *",
		},
		Version: Version{Source: "default"},
	}
}

// Validate checks every limit for usable values. All findings are joined
// so `overture validate` can report them at once.
func (p *Pack) Validate() error {
	var errs []error

	if p.Frequency.Cap <= 0 {
		errs = append(errs, NewValidationError("frequency.cap", "must be positive"))
	}
	if p.Frequency.Window <= 0 {
		errs = append(errs, NewValidationError("frequency.window", "must be positive"))
	}
	for ch, limit := range p.Frequency.Channels {
		if !ch.Valid() {
			errs = append(errs, NewValidationError("frequency.channels", fmt.Sprintf("unknown channel %q", ch)))
		}
		if limit.Cap < 0 || limit.Window < 0 {
			errs = append(errs, NewValidationError("frequency.channels."+string(ch), "cap and window must not be negative"))
		}
	}

	if p.Rate.Burst <= 0 {
		errs = append(errs, NewValidationError("rate.burst", "must be positive"))
	}
	if p.Rate.PerSecond <= 0 {
		errs = append(errs, NewValidationError("rate.per_second", "must be positive"))
	}

	if p.Consent.MaxAge < 0 {
		errs = append(errs, NewValidationError("consent.max_age", "must not be negative"))
	}

	if p.Tone.MinScore < 0 || p.Tone.MinScore > 1 {
		errs = append(errs, NewValidationError("tone.min_score", "must be within [0,1]"))
	}
	if p.Tone.BorderlineBand < 0 || p.Tone.BorderlineBand > p.Tone.MinScore {
		errs = append(errs, NewValidationError("tone.borderline_band", "must be within [0, min_score]"))
	}

	if p.Spam.MaxScore < 0 || p.Spam.MaxScore > 1 {
		errs = append(errs, NewValidationError("spam.max_score", "must be within [0,1]"))
	}

	if p.Financial.AbsoluteMaxPercent < 0 || p.Financial.AbsoluteMaxPercent > 100 {
		errs = append(errs, NewValidationError("financial.absolute_max_percent", "must be within [0,100]"))
	}
	if p.Financial.AutoApproveMaxPercent < 0 || p.Financial.AutoApproveMaxPercent > p.Financial.AbsoluteMaxPercent {
		errs = append(errs, NewValidationError("financial.auto_approve_max_percent", "must be within [0, absolute_max_percent]"))
	}

	if p.Engagement.MinScore < 0 || p.Engagement.MinScore > 1 {
		errs = append(errs, NewValidationError("engagement.min_score", "must be within [0,1]"))
	}

	if p.Experiments.Alpha <= 0 || p.Experiments.Alpha >= 1 {
		errs = append(errs, NewValidationError("experiments.alpha", "must be within (0,1)"))
	}
	if p.Experiments.MinSamplePerVariant == 0 {
		errs = append(errs, NewValidationError("experiments.min_sample_per_variant", "must be positive"))
	}
	if p.Experiments.MaxSamplePerVariant < p.Experiments.MinSamplePerVariant {
		errs = append(errs, NewValidationError("experiments.max_sample_per_variant", "must be at least min_sample_per_variant"))
	}
	if p.Experiments.MinDuration <= 0 || p.Experiments.MaxDuration < p.Experiments.MinDuration {
		errs = append(errs, NewValidationError("experiments.min_duration", "need 0 < min_duration <= max_duration"))
	}
	if p.Experiments.PromoteStep <= 0 || p.Experiments.PromoteStep > 1 {
		errs = append(errs, NewValidationError("experiments.promote_step", "must be within (0,1]"))
	}

	return errors.Join(errs...)
}

// Source loads policy packs.
type Source interface {
	// Load reads and returns a validated pack. Implementations start from
	// DefaultPack so partial packs are usable.
	Load(ctx context.Context) (*Pack, error)

	// Describe names the source for logs and errors.
	Describe() string
}

// Watchable is implemented by sources that can detect pack changes.
// Watch blocks until the context is done, invoking onChange after each
// detected change; the manager reloads in response.
type Watchable interface {
	Watch(ctx context.Context, onChange func()) error
}

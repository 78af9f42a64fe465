package subject

import (
	"context"
	"errors"
	"time"

	"signalhouse/overture/pkg/action"
)

// LifecycleStage describes where a subject sits in the customer lifecycle.
type LifecycleStage string

const (
	StageNew     LifecycleStage = "new"
	StageActive  LifecycleStage = "active"
	StageAtRisk  LifecycleStage = "at_risk"
	StageChurned LifecycleStage = "churned"
)

// Valid reports whether the stage is a known lifecycle stage.
func (s LifecycleStage) Valid() bool {
	switch s {
	case StageNew, StageActive, StageAtRisk, StageChurned:
		return true
	}
	return false
}

// Consent is one opt-in record for a subject.
type Consent struct {
	// Channel scopes the consent. Empty means all channels.
	Channel action.Channel `json:"channel,omitempty" yaml:"channel,omitempty"`

	// Granted is false when the subject revoked a previous opt-in.
	Granted bool `json:"granted" yaml:"granted"`

	// GrantedAt is when the opt-in (or revocation) was recorded.
	GrantedAt time.Time `json:"granted_at" yaml:"granted_at"`

	// Source records where the consent came from (signup form, import).
	Source string `json:"source,omitempty" yaml:"source,omitempty"`
}

// Snapshot is a point-in-time, read-only view of one subject. Guardrail
// checks read it; nothing in the pipeline writes it.
type Snapshot struct {
	SubjectID string `json:"subject_id" yaml:"subject_id"`

	Lifecycle LifecycleStage `json:"lifecycle" yaml:"lifecycle"`

	Consents []Consent `json:"consents,omitempty" yaml:"consents,omitempty"`

	// EngagementScore is the subject's trailing engagement, 0.0-1.0.
	EngagementScore float64 `json:"engagement_score" yaml:"engagement_score"`

	// Attributes carries collaborator-defined fields checks may consult.
	Attributes map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`

	// TakenAt is when the snapshot was resolved.
	TakenAt time.Time `json:"taken_at" yaml:"taken_at,omitempty"`
}

// ConsentFor returns the consent record covering the given channel.
// A channel-specific record wins over an all-channel record.
func (s *Snapshot) ConsentFor(ch action.Channel) (Consent, bool) {
	var all Consent
	var haveAll bool
	for _, c := range s.Consents {
		if c.Channel == ch {
			return c, true
		}
		if c.Channel == "" {
			all = c
			haveAll = true
		}
	}
	return all, haveAll
}

// ErrNotFound indicates the provider has no state for the subject.
var ErrNotFound = errors.New("subject not found")

// Provider resolves subject snapshots. Implementations must honor the
// context deadline; the pipeline fails checks closed when Snapshot errors
// or times out.
type Provider interface {
	Snapshot(ctx context.Context, subjectID string) (*Snapshot, error)
}

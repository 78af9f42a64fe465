package action

import (
	"errors"
	"fmt"
	"time"
)

// Kind identifies what the action does to the subject.
type Kind string

const (
	// KindSendMessage delivers a rendered message over the action's channel.
	KindSendMessage Kind = "send_message"

	// KindApplyIncentive grants a discount or credit to the subject.
	KindApplyIncentive Kind = "apply_incentive"

	// KindChangeLifecycleStage moves the subject between lifecycle stages.
	KindChangeLifecycleStage Kind = "change_lifecycle_stage"
)

// Valid reports whether the kind is a known action kind.
func (k Kind) Valid() bool {
	switch k {
	case KindSendMessage, KindApplyIncentive, KindChangeLifecycleStage:
		return true
	}
	return false
}

// Kinds returns all known action kinds in declaration order.
func Kinds() []Kind {
	return []Kind{KindSendMessage, KindApplyIncentive, KindChangeLifecycleStage}
}

// Channel identifies the delivery channel an action targets.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelWeb      Channel = "web"
	ChannelPush     Channel = "push"
)

// Valid reports whether the channel is a known delivery channel.
func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelWhatsApp, ChannelWeb, ChannelPush:
		return true
	}
	return false
}

// Channels returns all known channels in declaration order.
func Channels() []Channel {
	return []Channel{ChannelEmail, ChannelSMS, ChannelWhatsApp, ChannelWeb, ChannelPush}
}

// Payload carries the content reference and the declared fields guardrail
// checks evaluate. Content itself lives with the creative collaborator;
// the pipeline only ever sees the rendered text and declared magnitudes.
type Payload struct {
	// ContentRef is an opaque reference to the creative content.
	ContentRef string `json:"content_ref,omitempty" yaml:"content_ref,omitempty"`

	// Subject is the message subject line, where the channel has one.
	Subject string `json:"subject,omitempty" yaml:"subject,omitempty"`

	// Text is the rendered message copy. Required for send_message actions;
	// tone and spam checks cannot run without it.
	Text string `json:"text,omitempty" yaml:"text,omitempty"`

	// DiscountPercent is the declared discount magnitude (0-100).
	// Zero means the action carries no discount.
	DiscountPercent float64 `json:"discount_percent,omitempty" yaml:"discount_percent,omitempty"`

	// IncentiveAmount is the declared monetary incentive, in minor units
	// of the campaign currency. Informational; ceilings apply to percent.
	IncentiveAmount int64 `json:"incentive_amount,omitempty" yaml:"incentive_amount,omitempty"`
}

// ProposedAction is the unit of work entering the pipeline. It is immutable
// once constructed; the pipeline never mutates it.
type ProposedAction struct {
	// ID is the caller-supplied idempotency identifier. Exactly one
	// decision record is ever produced per ID.
	ID string `json:"id" yaml:"id"`

	// SubjectID identifies the customer or entity being acted on.
	SubjectID string `json:"subject_id" yaml:"subject_id"`

	// Kind is what the action does.
	Kind Kind `json:"kind" yaml:"kind"`

	// Channel is the delivery channel the action targets.
	Channel Channel `json:"channel" yaml:"channel"`

	// Payload holds the content reference and declared fields.
	Payload Payload `json:"payload" yaml:"payload"`

	// CampaignID ties the action to its originating campaign.
	CampaignID string `json:"campaign_id,omitempty" yaml:"campaign_id,omitempty"`

	// ExperimentID opts the action into variant allocation. Empty means
	// no experiment.
	ExperimentID string `json:"experiment_id,omitempty" yaml:"experiment_id,omitempty"`

	// RequestedAt is when the caller proposed the action.
	RequestedAt time.Time `json:"requested_at" yaml:"requested_at"`
}

// Validation errors returned by Validate.
var (
	ErrMissingID        = errors.New("action ID is required")
	ErrMissingSubjectID = errors.New("subject ID is required")
	ErrMissingTimestamp = errors.New("requested_at is required")
)

// Validate checks that the action is well formed. It does not consult any
// policy; malformed actions are caller bugs and never reach the pipeline.
func (a *ProposedAction) Validate() error {
	if a.ID == "" {
		return ErrMissingID
	}
	if a.SubjectID == "" {
		return ErrMissingSubjectID
	}
	if !a.Kind.Valid() {
		return fmt.Errorf("invalid action kind %q", a.Kind)
	}
	if !a.Channel.Valid() {
		return fmt.Errorf("invalid channel %q", a.Channel)
	}
	if a.Payload.DiscountPercent < 0 || a.Payload.DiscountPercent > 100 {
		return fmt.Errorf("discount percent %.2f outside [0,100]", a.Payload.DiscountPercent)
	}
	if a.RequestedAt.IsZero() {
		return ErrMissingTimestamp
	}
	return nil
}

package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys. HTTP attributes follow OpenTelemetry semantic
// conventions; domain attributes use the "overture.*" namespace so one
// trace query surfaces every span touching an action or subject.
const (
	AttrActionID   = attribute.Key("overture.action.id")
	AttrActionKind = attribute.Key("overture.action.kind")
	AttrChannel    = attribute.Key("overture.action.channel")
	AttrSubjectID  = attribute.Key("overture.subject.id")
	AttrCampaignID = attribute.Key("overture.campaign.id")

	AttrExperimentID = attribute.Key("overture.experiment.id")
	AttrVariantID    = attribute.Key("overture.variant.id")

	AttrVerdict       = attribute.Key("overture.verdict")
	AttrReplayed      = attribute.Key("overture.replayed")
	AttrPolicyVersion = attribute.Key("overture.policy.version")

	AttrLedgerSeq  = attribute.Key("overture.ledger.seq")
	AttrRecordKind = attribute.Key("overture.ledger.kind")

	AttrRequestID = attribute.Key("overture.request_id")
)

// SetError records err on the span and marks its status failed. A nil err
// does nothing, so callers can defer it unconditionally.
func SetError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

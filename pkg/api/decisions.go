package api

import (
	"net/http"

	"signalhouse/overture/pkg/action"
	"signalhouse/overture/pkg/telemetry/logging"
	"signalhouse/overture/pkg/telemetry/tracing"
)

// handleDecide runs one proposed action through the pipeline.
//
// Rejections and escalations are 200s with the verdict in the body: the
// pipeline decided, and that decision is the resource. A replayed
// decision is also a 200, with replayed:true. Only malformed input
// (400) and system faults (503/504) are errors.
func (a *API) handleDecide(w http.ResponseWriter, r *http.Request) {
	// Remote trace context, when a caller propagates one, parents the
	// pipeline.decide span.
	ctx := tracing.Extract(r.Context(), r.Header)

	var act action.ProposedAction
	if err := decodeBody(r, &act); err != nil {
		a.logRequestError(r, "decision request rejected", err)
		a.writeError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid request body: "+err.Error())
		return
	}

	a.logger.DebugContext(ctx, "decision requested",
		"request_id", logging.GetRequestID(ctx),
		"action_id", act.ID,
		"subject_id", act.SubjectID,
		"payload_digest", logging.PayloadDigest(act.Payload.Text),
	)

	outcome, err := a.pipeline.Decide(ctx, &act)
	if err != nil {
		a.writePipelineError(w, r, err, http.StatusBadRequest, CodeInvalidRequest)
		return
	}

	a.writeJSON(w, http.StatusOK, outcome)
}

// overrideRequest is the body of POST /v1/overrides.
type overrideRequest struct {
	// Seq is the sequence number of the decision being corrected.
	Seq uint64 `json:"seq"`

	// Approve picks the corrected verdict: true approves, false rejects.
	Approve bool `json:"approve"`

	// Reason is the reviewer's justification, recorded verbatim.
	Reason string `json:"reason"`
}

// handleOverride records a human correction for a rejected or escalated
// decision. 404 for unknown sequence numbers, 409 for non-overridable
// or already-corrected targets, 422 for an empty reason.
func (a *API) handleOverride(w http.ResponseWriter, r *http.Request) {
	ctx := tracing.Extract(r.Context(), r.Header)

	var req overrideRequest
	if err := decodeBody(r, &req); err != nil {
		a.logRequestError(r, "override request rejected", err)
		a.writeError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Seq == 0 {
		a.writeError(w, http.StatusBadRequest, CodeInvalidRequest, "seq is required")
		return
	}

	outcome, err := a.pipeline.Override(ctx, req.Seq, req.Approve, req.Reason)
	if err != nil {
		a.writePipelineError(w, r, err, http.StatusInternalServerError, CodeInternal)
		return
	}

	a.writeJSON(w, http.StatusOK, outcome)
}

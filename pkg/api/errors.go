package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"signalhouse/overture/pkg/experiment"
	"signalhouse/overture/pkg/ledger"
	"signalhouse/overture/pkg/pipeline"
)

// ErrorResponse is the JSON envelope for every non-2xx response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the human-readable message and a machine-readable
// code. Rejected and escalated decisions never appear here: they are
// 200s with the verdict in the outcome body.
type ErrorDetail struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Machine-readable error codes.
const (
	// CodeInvalidRequest marks malformed input: bad JSON, a failed
	// validation, an unparsable query parameter.
	CodeInvalidRequest = "invalid_request"

	// CodeNotFound marks an unknown sequence number or experiment ID.
	CodeNotFound = "not_found"

	// CodeConflict marks requests valid in shape but not against current
	// state: duplicate experiment IDs, overrides of approved decisions,
	// second overrides.
	CodeConflict = "conflict"

	// CodeUnprocessable marks a well-formed body failing a semantic rule,
	// like an empty override reason or a broken variant weight set.
	CodeUnprocessable = "unprocessable"

	// CodeTransient marks a retry-safe system fault. The response carries
	// Retry-After; repeating the request with the same action ID is safe.
	CodeTransient = "transient"

	// CodeInternal marks faults that are not retry-safe, including
	// invariant violations. These need an operator, not a retry.
	CodeInternal = "internal"
)

// retryAfterSeconds is the Retry-After hint on 503 responses.
const retryAfterSeconds = "1"

// writeJSON writes a JSON response body with the given status.
func (a *API) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.logger.Error("failed to write response", "error", err)
	}
}

// writeError writes the error envelope with the given status and code.
func (a *API) writeError(w http.ResponseWriter, status int, code, message string) {
	a.writeJSON(w, status, &ErrorResponse{Error: ErrorDetail{
		Message: message,
		Code:    code,
	}})
}

// writePipelineError maps the pipeline error taxonomy onto a response.
// fallbackStatus/fallbackCode classify whatever the taxonomy does not:
// for Decide that is malformed input (400), for Override a system fault
// (500).
func (a *API) writePipelineError(w http.ResponseWriter, r *http.Request, err error, fallbackStatus int, fallbackCode string) {
	var transient *pipeline.TransientError
	var invariant *pipeline.InvariantViolationError

	switch {
	case errors.As(err, &transient):
		w.Header().Set("Retry-After", retryAfterSeconds)
		a.writeError(w, http.StatusServiceUnavailable, CodeTransient, err.Error())
	case errors.As(err, &invariant):
		a.logger.ErrorContext(r.Context(), "invariant violation surfaced to API",
			"path", r.URL.Path,
			"error", err,
		)
		a.writeError(w, http.StatusInternalServerError, CodeInternal, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		a.writeError(w, http.StatusGatewayTimeout, CodeTransient, "request deadline exceeded")
	case errors.Is(err, context.Canceled):
		// The client is gone; status is for the access log only.
		a.writeError(w, http.StatusServiceUnavailable, CodeTransient, "request canceled")
	case errors.Is(err, ledger.ErrNotFound):
		a.writeError(w, http.StatusNotFound, CodeNotFound, err.Error())
	case errors.Is(err, pipeline.ErrEmptyOverrideReason):
		a.writeError(w, http.StatusUnprocessableEntity, CodeUnprocessable, err.Error())
	case errors.Is(err, pipeline.ErrNotOverridable), errors.Is(err, pipeline.ErrAlreadyOverridden):
		a.writeError(w, http.StatusConflict, CodeConflict, err.Error())
	default:
		a.writeError(w, fallbackStatus, fallbackCode, err.Error())
	}
}

// writeExperimentError maps the experiment error taxonomy onto a
// response. Unmapped errors fall back to the given status and code.
func (a *API) writeExperimentError(w http.ResponseWriter, err error, fallbackStatus int, fallbackCode string) {
	var invariant *experiment.InvariantError
	var storeErr *experiment.StoreError

	switch {
	case errors.Is(err, experiment.ErrNotFound), errors.Is(err, experiment.ErrVariantNotFound):
		a.writeError(w, http.StatusNotFound, CodeNotFound, err.Error())
	case errors.Is(err, experiment.ErrAlreadyExists):
		a.writeError(w, http.StatusConflict, CodeConflict, err.Error())
	case errors.As(err, &invariant):
		a.writeError(w, http.StatusUnprocessableEntity, CodeUnprocessable, err.Error())
	case errors.As(err, &storeErr):
		w.Header().Set("Retry-After", retryAfterSeconds)
		a.writeError(w, http.StatusServiceUnavailable, CodeTransient, err.Error())
	default:
		a.writeError(w, fallbackStatus, fallbackCode, err.Error())
	}
}

// decodeBody decodes a size-capped JSON request body into dst. Unknown
// fields are errors: a typo in a decision request must not silently
// decide something else.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, MaxRequestBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return nil
}

// logRequestError notes a rejected request at warn level, so bad callers
// are visible without polluting error logs.
func (a *API) logRequestError(r *http.Request, what string, err error) {
	a.logger.WarnContext(r.Context(), what,
		"method", r.Method,
		"path", r.URL.Path,
		"error", err,
	)
}

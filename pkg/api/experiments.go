package api

import (
	"context"
	"net/http"

	"signalhouse/overture/pkg/experiment"
)

// experimentsResponse is the body of GET /v1/experiments.
type experimentsResponse struct {
	Experiments []*experiment.Experiment `json:"experiments"`
	Count       int                      `json:"count"`
}

// handleExperimentList serves all registered experiments, ordered by ID.
func (a *API) handleExperimentList(w http.ResponseWriter, r *http.Request) {
	experiments, err := a.experiments.List(r.Context())
	if err != nil {
		a.writeExperimentError(w, err, http.StatusInternalServerError, CodeInternal)
		return
	}
	if experiments == nil {
		experiments = []*experiment.Experiment{}
	}
	a.writeJSON(w, http.StatusOK, &experimentsResponse{
		Experiments: experiments,
		Count:       len(experiments),
	})
}

// handleExperimentGet serves one experiment, counters included.
func (a *API) handleExperimentGet(w http.ResponseWriter, r *http.Request) {
	exp, err := a.experiments.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeExperimentError(w, err, http.StatusInternalServerError, CodeInternal)
		return
	}
	a.writeJSON(w, http.StatusOK, exp)
}

// handleExperimentCreate registers an experiment definition. 201 with
// the stored experiment, 409 on a duplicate ID, 422 when the definition
// fails validation (variant count, control, weights).
func (a *API) handleExperimentCreate(w http.ResponseWriter, r *http.Request) {
	var def experiment.Experiment
	if err := decodeBody(r, &def); err != nil {
		a.logRequestError(r, "experiment definition rejected", err)
		a.writeError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid request body: "+err.Error())
		return
	}

	if err := a.experiments.Create(r.Context(), &def); err != nil {
		// Create validates before touching the store; anything not from
		// the taxonomy is a failed definition.
		a.writeExperimentError(w, err, http.StatusUnprocessableEntity, CodeUnprocessable)
		return
	}

	created, err := a.experiments.Get(r.Context(), def.ID)
	if err != nil {
		a.writeExperimentError(w, err, http.StatusInternalServerError, CodeInternal)
		return
	}

	a.logger.InfoContext(r.Context(), "experiment registered",
		"experiment_id", created.ID,
		"variants", len(created.Variants),
	)
	a.writeJSON(w, http.StatusCreated, created)
}

// outcomeRequest is the body of POST /v1/experiments/{id}/outcomes.
// Counters are deltas observed by delivery and analytics collaborators;
// they only ever add.
type outcomeRequest struct {
	VariantID   string `json:"variant_id"`
	Impressions uint64 `json:"impressions"`
	Conversions uint64 `json:"conversions"`
}

// handleExperimentOutcomes ingests outcome counters for one variant.
// 202: the counters are durable but their effect shows up at the next
// evaluation sweep, not in this response.
func (a *API) handleExperimentOutcomes(w http.ResponseWriter, r *http.Request) {
	var req outcomeRequest
	if err := decodeBody(r, &req); err != nil {
		a.logRequestError(r, "outcome request rejected", err)
		a.writeError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid request body: "+err.Error())
		return
	}

	err := a.experiments.RecordOutcome(r.Context(), r.PathValue("id"), req.VariantID,
		req.Impressions, req.Conversions)
	if err != nil {
		a.writeExperimentError(w, err, http.StatusUnprocessableEntity, CodeUnprocessable)
		return
	}

	a.writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// handleExperimentEvaluate forces one significance evaluation, outside
// the sweep schedule. The response is the evaluation's decision; a
// no-op decision is still a 200.
func (a *API) handleExperimentEvaluate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	decision, err := a.experiments.Evaluate(r.Context(), id)
	if err != nil {
		a.writeExperimentError(w, err, http.StatusInternalServerError, CodeInternal)
		return
	}

	a.collector.RecordExperimentEvaluation(string(decision.Op))
	a.refreshExperimentGauges(r.Context(), id)

	a.logger.InfoContext(r.Context(), "experiment evaluated on demand",
		"experiment_id", id,
		"op", decision.Op,
		"reason", decision.Reason,
	)
	a.writeJSON(w, http.StatusOK, decision)
}

// refreshExperimentGauges re-publishes one experiment's state and weight
// gauges after a forced evaluation, the same way the sweep scheduler
// does after a sweep.
func (a *API) refreshExperimentGauges(ctx context.Context, id string) {
	if !a.collector.Enabled() {
		return
	}
	exp, err := a.experiments.Get(ctx, id)
	if err != nil {
		a.logger.WarnContext(ctx, "experiment gauge refresh skipped",
			"experiment_id", id,
			"error", err,
		)
		return
	}
	a.collector.SetExperimentState(exp.ID, string(exp.State))
	for i := range exp.Variants {
		v := &exp.Variants[i]
		a.collector.SetVariantWeight(exp.ID, v.ID, v.Weight)
	}
}

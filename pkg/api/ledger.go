package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"signalhouse/overture/pkg/ledger"
)

// recordsResponse is the body of GET /v1/ledger/records. Count is the
// total number of matching records, not the page size; callers page
// with limit/offset against it.
type recordsResponse struct {
	Records []*ledger.Record `json:"records"`
	Count   int64            `json:"count"`
}

// handleLedgerList serves filtered, paginated reads over the ledger.
func (a *API) handleLedgerList(w http.ResponseWriter, r *http.Request) {
	query, err := parseLedgerQuery(r.URL.Query())
	if err != nil {
		a.logRequestError(r, "ledger query rejected", err)
		a.writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}

	records, err := a.records.Read(r.Context(), query)
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, CodeInternal, err.Error())
		return
	}
	count, err := a.records.Count(r.Context(), query)
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, CodeInternal, err.Error())
		return
	}

	if records == nil {
		records = []*ledger.Record{}
	}
	a.writeJSON(w, http.StatusOK, &recordsResponse{Records: records, Count: count})
}

// handleLedgerGet serves one record by sequence number.
func (a *API) handleLedgerGet(w http.ResponseWriter, r *http.Request) {
	seq, err := strconv.ParseUint(r.PathValue("seq"), 10, 64)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, CodeInvalidRequest,
			fmt.Sprintf("invalid sequence number %q", r.PathValue("seq")))
		return
	}

	record, err := a.records.GetBySeq(r.Context(), seq)
	if err != nil {
		a.writePipelineError(w, r, err, http.StatusInternalServerError, CodeInternal)
		return
	}

	a.writeJSON(w, http.StatusOK, record)
}

// parseLedgerQuery builds a ledger query from URL parameters. Unparsable
// values are errors; unknown parameters are ignored, matching how query
// strings usually grow.
func parseLedgerQuery(params url.Values) (*ledger.Query, error) {
	query := &ledger.Query{
		SubjectID:    params.Get("subject_id"),
		ActionID:     params.Get("action_id"),
		ExperimentID: params.Get("experiment_id"),
		Verdict:      params.Get("verdict"),
		Kind:         ledger.RecordKind(params.Get("kind")),
	}

	if v := params.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, fmt.Errorf("invalid since %q: want RFC3339", v)
		}
		query.Since = &t
	}
	if v := params.Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, fmt.Errorf("invalid until %q: want RFC3339", v)
		}
		query.Until = &t
	}
	if v := params.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid limit %q", v)
		}
		query.Limit = n
	}
	if v := params.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid offset %q", v)
		}
		query.Offset = n
	}

	if err := query.Validate(); err != nil {
		return nil, err
	}
	return query, nil
}

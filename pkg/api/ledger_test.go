package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"signalhouse/overture/pkg/guardrail"
	"signalhouse/overture/pkg/ledger"
)

// seedLedger decides three rejected actions and overrides the first,
// leaving three decision records and one correction.
func seedLedger(t *testing.T, fx *testAPI) {
	t.Helper()

	for i, subjectID := range []string{"cust-1", "cust-1", "cust-2"} {
		rec := postJSON(t, fx.handler, "/v1/decisions", testAction(fmt.Sprintf("act-%d", i+1), subjectID))
		if rec.Code != http.StatusOK {
			t.Fatalf("seeding decide status = %d, want %d", rec.Code, http.StatusOK)
		}
	}
	rec := postJSON(t, fx.handler, "/v1/overrides", map[string]any{
		"seq":     1,
		"approve": true,
		"reason":  "manual review cleared it",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("seeding override status = %d, want %d\nbody: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
}

// TestLedgerListEndpoint tests filtered, paginated reads.
func TestLedgerListEndpoint(t *testing.T) {
	fx := newTestAPI(t, nil,
		staticCheck{name: "tone", verdict: guardrail.CheckFail, reason: "aggressive urgency"})
	seedLedger(t, fx)

	tests := []struct {
		name        string
		query       string
		wantCount   int64
		wantRecords int
	}{
		{name: "everything", query: "", wantCount: 4, wantRecords: 4},
		{name: "by subject", query: "?subject_id=cust-1", wantCount: 3, wantRecords: 3},
		{name: "by action", query: "?action_id=act-3", wantCount: 1, wantRecords: 1},
		{name: "corrections only", query: "?kind=correction", wantCount: 1, wantRecords: 1},
		{name: "by verdict", query: "?verdict=REJECTED", wantCount: 3, wantRecords: 3},
		{name: "paginated", query: "?limit=2&offset=1", wantCount: 4, wantRecords: 2},
		{name: "no matches", query: "?subject_id=cust-404", wantCount: 0, wantRecords: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := getPath(t, fx.handler, "/v1/ledger/records"+tt.query)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d\nbody: %s", rec.Code, http.StatusOK, rec.Body.String())
			}

			var resp recordsResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decoding response: %v", err)
			}
			if resp.Count != tt.wantCount {
				t.Errorf("count = %d, want %d", resp.Count, tt.wantCount)
			}
			if len(resp.Records) != tt.wantRecords {
				t.Errorf("records = %d, want %d", len(resp.Records), tt.wantRecords)
			}
		})
	}
}

// TestLedgerListEndpointEmptyBody tests that an empty ledger serves an
// empty array, not JSON null.
func TestLedgerListEndpointEmptyBody(t *testing.T) {
	fx := newTestAPI(t, nil)

	rec := getPath(t, fx.handler, "/v1/ledger/records")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &raw); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if string(raw["records"]) != "[]" {
		t.Errorf("records = %s, want []", raw["records"])
	}
}

// TestLedgerListEndpointBadQuery tests the 400 paths for unparsable or
// out-of-range query parameters.
func TestLedgerListEndpointBadQuery(t *testing.T) {
	fx := newTestAPI(t, nil)

	queries := []struct {
		name  string
		query string
	}{
		{name: "bad since", query: "?since=yesterday"},
		{name: "bad until", query: "?until=2026-13-40"},
		{name: "bad limit", query: "?limit=ten"},
		{name: "negative limit", query: "?limit=-5"},
		{name: "bad offset", query: "?offset=x"},
		{name: "unknown kind", query: "?kind=amendment"},
		{name: "until before since", query: "?since=2026-02-01T00:00:00Z&until=2026-01-01T00:00:00Z"},
	}

	for _, tt := range queries {
		t.Run(tt.name, func(t *testing.T) {
			rec := getPath(t, fx.handler, "/v1/ledger/records"+tt.query)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d\nbody: %s", rec.Code, http.StatusBadRequest, rec.Body.String())
			}
			if resp := decodeError(t, rec); resp.Error.Code != CodeInvalidRequest {
				t.Errorf("code = %q, want %q", resp.Error.Code, CodeInvalidRequest)
			}
		})
	}
}

// TestLedgerGetEndpoint tests single-record reads by sequence number.
func TestLedgerGetEndpoint(t *testing.T) {
	fx := newTestAPI(t, nil)

	rec := postJSON(t, fx.handler, "/v1/decisions", testAction("act-1", "cust-1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("decide status = %d, want %d", rec.Code, http.StatusOK)
	}

	rec = getPath(t, fx.handler, "/v1/ledger/records/1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d\nbody: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var record ledger.Record
	if err := json.Unmarshal(rec.Body.Bytes(), &record); err != nil {
		t.Fatalf("decoding record: %v", err)
	}
	if record.Seq != 1 || record.ActionID != "act-1" {
		t.Errorf("record = seq %d action %q, want seq 1 action act-1", record.Seq, record.ActionID)
	}

	rec = getPath(t, fx.handler, "/v1/ledger/records/99")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown seq status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	rec = getPath(t, fx.handler, "/v1/ledger/records/one")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unparsable seq status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

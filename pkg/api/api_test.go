package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"signalhouse/overture/pkg/action"
	"signalhouse/overture/pkg/experiment"
	"signalhouse/overture/pkg/guardrail"
	"signalhouse/overture/pkg/ledger/storage"
	"signalhouse/overture/pkg/pipeline"
	"signalhouse/overture/pkg/policy"
	"signalhouse/overture/pkg/subject"
	"signalhouse/overture/pkg/telemetry/metrics"
)

// fixedPackProvider serves one pack forever, standing in for the manager.
type fixedPackProvider struct {
	pack *policy.Pack
}

func (p fixedPackProvider) Current() (*policy.Pack, error) {
	return p.pack, nil
}

// staticCheck returns a canned verdict for every action.
type staticCheck struct {
	name    string
	verdict guardrail.CheckVerdict
	reason  string
}

func (c staticCheck) Name() string { return c.name }

func (c staticCheck) Evaluate(ctx context.Context, in *guardrail.Input) guardrail.Result {
	return guardrail.Result{Verdict: c.verdict, Reason: c.reason}
}

// stubDecider returns canned pipeline results, for exercising the error
// mapping without engineering real faults.
type stubDecider struct {
	outcome *pipeline.Outcome
	err     error
}

func (s stubDecider) Decide(ctx context.Context, act *action.ProposedAction) (*pipeline.Outcome, error) {
	return s.outcome, s.err
}

func (s stubDecider) Override(ctx context.Context, seq uint64, approve bool, reason string) (*pipeline.Outcome, error) {
	return s.outcome, s.err
}

// testAPI wires the API over a real pipeline and memory collaborators.
type testAPI struct {
	api      *API
	handler  http.Handler
	audit    *storage.MemoryStorage
	alloc    *experiment.Allocator
	expStore *experiment.MemoryStore
}

// newTestAPI builds the surface with the given checks registered; no
// checks means one passing tone check. A nil collector records nothing.
func newTestAPI(t *testing.T, collector *metrics.Collector, checks ...guardrail.Check) *testAPI {
	t.Helper()

	packs := fixedPackProvider{pack: policy.DefaultPack()}

	if len(checks) == 0 {
		checks = []guardrail.Check{staticCheck{name: "tone", verdict: guardrail.CheckPass}}
	}
	registry := guardrail.NewRegistry()
	for _, c := range checks {
		if err := registry.Register(c); err != nil {
			t.Fatalf("Register(%s) error: %v", c.Name(), err)
		}
	}
	engine, err := guardrail.NewEngine(nil, registry, packs, nil)
	if err != nil {
		t.Fatalf("NewEngine() error: %v", err)
	}

	expStore := experiment.NewMemoryStore()
	alloc, err := experiment.NewAllocator(expStore, packs, nil)
	if err != nil {
		t.Fatalf("NewAllocator() error: %v", err)
	}

	audit := storage.NewMemoryStorage()

	orch, err := pipeline.NewOrchestrator(nil, subject.NewStaticProvider(), engine, alloc, audit, collector, nil)
	if err != nil {
		t.Fatalf("NewOrchestrator() error: %v", err)
	}

	a, err := New(orch, alloc, audit, collector, nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	return &testAPI{
		api:      a,
		handler:  a.Handler(),
		audit:    audit,
		alloc:    alloc,
		expStore: expStore,
	}
}

// newStubAPI builds the surface over a canned decider.
func newStubAPI(t *testing.T, decider Decider) http.Handler {
	t.Helper()

	packs := fixedPackProvider{pack: policy.DefaultPack()}
	alloc, err := experiment.NewAllocator(experiment.NewMemoryStore(), packs, nil)
	if err != nil {
		t.Fatalf("NewAllocator() error: %v", err)
	}
	a, err := New(decider, alloc, storage.NewMemoryStorage(), nil, nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return a.Handler()
}

// testAction returns a well-formed send_message action.
func testAction(id, subjectID string) *action.ProposedAction {
	return &action.ProposedAction{
		ID:        id,
		SubjectID: subjectID,
		Kind:      action.KindSendMessage,
		Channel:   action.ChannelEmail,
		Payload: action.Payload{
			Subject: "Your spring update",
			Text:    "New features this month. unsubscribe",
		},
		CampaignID:  "camp-spring",
		RequestedAt: time.Now(),
	}
}

// postJSON sends a POST with the marshaled body and returns the recorder.
func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshaling request body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(buf))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

// postRaw sends a POST with a literal body, for exercising malformed JSON.
func postRaw(t *testing.T, handler http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

// getPath sends a GET and returns the recorder.
func getPath(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

// decodeError unmarshals the error envelope.
func decodeError(t *testing.T, rec *httptest.ResponseRecorder) *ErrorResponse {
	t.Helper()

	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding error envelope: %v\nbody: %s", err, rec.Body.String())
	}
	return &resp
}

// TestNew tests constructor validation.
func TestNew(t *testing.T) {
	packs := fixedPackProvider{pack: policy.DefaultPack()}
	alloc, err := experiment.NewAllocator(experiment.NewMemoryStore(), packs, nil)
	if err != nil {
		t.Fatalf("NewAllocator() error: %v", err)
	}
	audit := storage.NewMemoryStorage()
	decider := stubDecider{}

	if _, err := New(nil, alloc, audit, nil, nil); err == nil {
		t.Error("Expected error for nil decider, got nil")
	}
	if _, err := New(decider, nil, audit, nil, nil); err == nil {
		t.Error("Expected error for nil experiment service, got nil")
	}
	if _, err := New(decider, alloc, nil, nil, nil); err == nil {
		t.Error("Expected error for nil ledger reader, got nil")
	}
	if _, err := New(decider, alloc, audit, nil, nil); err != nil {
		t.Errorf("New() error: %v", err)
	}
}

// TestMethodNotAllowed tests that the mux itself rejects wrong methods.
func TestMethodNotAllowed(t *testing.T) {
	fx := newTestAPI(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/decisions", nil)
	rec := httptest.NewRecorder()
	fx.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /v1/decisions status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

// TestUnknownRoute tests that unregistered paths 404.
func TestUnknownRoute(t *testing.T) {
	fx := newTestAPI(t, nil)

	rec := getPath(t, fx.handler, "/v1/nope")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

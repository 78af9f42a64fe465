package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"signalhouse/overture/pkg/action"
	"signalhouse/overture/pkg/api"
	"signalhouse/overture/pkg/config"
	"signalhouse/overture/pkg/experiment"
	"signalhouse/overture/pkg/guardrail"
	"signalhouse/overture/pkg/ledger/storage"
	"signalhouse/overture/pkg/pipeline"
	"signalhouse/overture/pkg/policy"
	"signalhouse/overture/pkg/subject"
	"signalhouse/overture/pkg/telemetry/health"
	"signalhouse/overture/pkg/telemetry/metrics"
)

type staticPacks struct {
	pack *policy.Pack
}

func (p staticPacks) Current() (*policy.Pack, error) {
	return p.pack, nil
}

type passCheck struct{}

func (passCheck) Name() string { return "tone" }

func (passCheck) Evaluate(ctx context.Context, in *guardrail.Input) guardrail.Result {
	return guardrail.Result{Verdict: guardrail.CheckPass}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestServer assembles a server over a real pipeline with memory
// collaborators. The listener binds an ephemeral port.
func newTestServer(t *testing.T, metricsCfg *config.MetricsConfig, collector *metrics.Collector, checker *health.Checker) *Server {
	t.Helper()

	packs := staticPacks{pack: policy.DefaultPack()}

	registry := guardrail.NewRegistry()
	if err := registry.Register(passCheck{}); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	engine, err := guardrail.NewEngine(nil, registry, packs, nil)
	if err != nil {
		t.Fatalf("NewEngine() error: %v", err)
	}

	alloc, err := experiment.NewAllocator(experiment.NewMemoryStore(), packs, nil)
	if err != nil {
		t.Fatalf("NewAllocator() error: %v", err)
	}

	audit := storage.NewMemoryStorage()
	orch, err := pipeline.NewOrchestrator(nil, subject.NewStaticProvider(), engine, alloc, audit, collector, nil)
	if err != nil {
		t.Fatalf("NewOrchestrator() error: %v", err)
	}

	surface, err := api.New(orch, alloc, audit, collector, nil)
	if err != nil {
		t.Fatalf("api.New() error: %v", err)
	}

	cfg := config.DefaultConfig().Server
	cfg.ListenAddress = "127.0.0.1:0"

	build := BuildInfo{Version: "1.2.3-test", Commit: "abcdef0", BuildTime: "2026-08-25T00:00:00Z"}
	return New(&cfg, metricsCfg, surface, checker, collector, build, discardLogger())
}

func get(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

// TestHandlerOperationalRoutes tests the health, version, and API mounts
// through the assembled handler.
func TestHandlerOperationalRoutes(t *testing.T) {
	srv := newTestServer(t, nil, nil, nil)
	handler := srv.Handler()

	rec := get(t, handler, "/health")
	if rec.Code != http.StatusOK {
		t.Errorf("GET /health = %d, want 200", rec.Code)
	}
	var live health.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &live); err != nil {
		t.Fatalf("decoding liveness: %v", err)
	}
	if live.Status != health.StatusOK {
		t.Errorf("liveness status = %q, want %q", live.Status, health.StatusOK)
	}

	rec = get(t, handler, "/ready")
	if rec.Code != http.StatusOK {
		t.Errorf("GET /ready = %d, want 200", rec.Code)
	}

	rec = get(t, handler, "/version")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /version = %d, want 200", rec.Code)
	}
	var version health.VersionInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &version); err != nil {
		t.Fatalf("decoding version: %v", err)
	}
	if version.Version != "1.2.3-test" || version.Commit != "abcdef0" {
		t.Errorf("version = %+v, want the build info echoed", version)
	}
	if version.GoVersion == "" {
		t.Error("version reports no Go version")
	}

	rec = get(t, handler, "/v1/experiments")
	if rec.Code != http.StatusOK {
		t.Errorf("GET /v1/experiments = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get(api.RequestIDHeader); got == "" {
		t.Error("response carries no request ID")
	}
}

// TestHandlerDecideThroughChain tests a decision request through the full
// middleware chain.
func TestHandlerDecideThroughChain(t *testing.T) {
	srv := newTestServer(t, nil, nil, nil)
	handler := srv.Handler()

	act := &action.ProposedAction{
		ID:        "act-1",
		SubjectID: "cust-1",
		Kind:      action.KindSendMessage,
		Channel:   action.ChannelEmail,
		Payload: action.Payload{
			Subject: "Your spring update",
			Text:    "New features this month. unsubscribe",
		},
		CampaignID:  "camp-spring",
		RequestedAt: time.Now(),
	}
	body, err := json.Marshal(act)
	if err != nil {
		t.Fatalf("marshaling action: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/decisions", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(api.RequestIDHeader, "req-chain-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("POST /v1/decisions = %d, want 200\nbody: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get(api.RequestIDHeader); got != "req-chain-1" {
		t.Errorf("request ID = %q, want req-chain-1 honored", got)
	}

	var outcome pipeline.Outcome
	if err := json.Unmarshal(rec.Body.Bytes(), &outcome); err != nil {
		t.Fatalf("decoding outcome: %v", err)
	}
	if outcome.Verdict != guardrail.VerdictApproved {
		t.Errorf("verdict = %q, want %q", outcome.Verdict, guardrail.VerdictApproved)
	}
	if outcome.AuditSeq == 0 {
		t.Error("outcome carries no audit seq")
	}
}

// TestHandlerReadinessDegraded tests that a failing probe flips /ready
// to 503 while /health stays 200.
func TestHandlerReadinessDegraded(t *testing.T) {
	checker := health.New(time.Second)
	checker.Register(health.ProbeLedger, func(ctx context.Context) error {
		return errors.New("ledger storage: database is locked")
	})

	srv := newTestServer(t, nil, nil, checker)
	handler := srv.Handler()

	rec := get(t, handler, "/ready")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("GET /ready = %d, want 503", rec.Code)
	}
	var report health.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decoding readiness: %v", err)
	}
	if report.Status != health.StatusDegraded {
		t.Errorf("readiness status = %q, want %q", report.Status, health.StatusDegraded)
	}
	if report.Checks[health.ProbeLedger].Status != health.StatusUnhealthy {
		t.Errorf("ledger probe = %+v, want unhealthy", report.Checks[health.ProbeLedger])
	}

	if rec := get(t, handler, "/health"); rec.Code != http.StatusOK {
		t.Errorf("GET /health = %d, want 200 regardless of probes", rec.Code)
	}
}

// TestHandlerMetricsRoute tests mount, custom path, and the disabled
// case.
func TestHandlerMetricsRoute(t *testing.T) {
	collector := metrics.NewCollector(&config.MetricsConfig{Enabled: true, Namespace: "test"}, nil)

	srv := newTestServer(t, &config.MetricsConfig{Enabled: true, Path: "/internal/metrics"}, collector, nil)
	handler := srv.Handler()

	if rec := get(t, handler, "/internal/metrics"); rec.Code != http.StatusOK {
		t.Errorf("GET /internal/metrics = %d, want 200", rec.Code)
	}
	if rec := get(t, handler, "/metrics"); rec.Code != http.StatusNotFound {
		t.Errorf("GET /metrics = %d, want 404 when the path is moved", rec.Code)
	}

	// No collector: nothing mounted.
	srv = newTestServer(t, nil, nil, nil)
	if rec := get(t, srv.Handler(), "/metrics"); rec.Code != http.StatusNotFound {
		t.Errorf("GET /metrics = %d, want 404 with metrics disabled", rec.Code)
	}
}

// TestServerStartStop tests the full lifecycle over a real listener.
func TestServerStartStop(t *testing.T) {
	srv := newTestServer(t, nil, nil, nil)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(context.Background())
	}()

	deadline := time.Now().Add(2 * time.Second)
	for srv.Addr() == "" {
		if time.Now().After(deadline) {
			t.Fatal("server did not bind in time")
		}
		time.Sleep(10 * time.Millisecond)
	}

	resp, err := http.Get("http://" + srv.Addr() + "/health")
	if err != nil {
		t.Fatalf("GET /health over the wire: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /health = %d, want 200", resp.StatusCode)
	}

	if err := srv.Health(context.Background()); err != nil {
		t.Errorf("Health() error: %v", err)
	}
	if err := srv.Start(context.Background()); err == nil {
		t.Error("second Start() did not fail")
	}

	srv.Stop()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Start() returned %v after Stop", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	if srv.IsRunning() {
		t.Error("IsRunning() = true after shutdown")
	}
}

// TestServerContextCancel tests shutdown via context cancellation.
func TestServerContextCancel(t *testing.T) {
	srv := newTestServer(t, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for srv.Addr() == "" {
		if time.Now().After(deadline) {
			t.Fatal("server did not bind in time")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Start() returned %v after cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop on context cancel")
	}
}

// TestServerHealthNotRunning tests Health before Start.
func TestServerHealthNotRunning(t *testing.T) {
	srv := newTestServer(t, nil, nil, nil)
	if err := srv.Health(context.Background()); err == nil {
		t.Error("Health() on a stopped server did not fail")
	}
}

// TestServerBindFailure tests that a taken port surfaces synchronously.
func TestServerBindFailure(t *testing.T) {
	first := newTestServer(t, nil, nil, nil)
	errCh := make(chan error, 1)
	go func() {
		errCh <- first.Start(context.Background())
	}()
	defer func() {
		first.Stop()
		<-errCh
	}()

	deadline := time.Now().Add(2 * time.Second)
	for first.Addr() == "" {
		if time.Now().After(deadline) {
			t.Fatal("first server did not bind in time")
		}
		time.Sleep(10 * time.Millisecond)
	}

	second := newTestServer(t, nil, nil, nil)
	second.cfg.ListenAddress = first.Addr()
	if err := second.Start(context.Background()); err == nil {
		t.Error("Start() on a taken port did not fail")
	}
	if second.IsRunning() {
		t.Error("IsRunning() = true after failed bind")
	}
}

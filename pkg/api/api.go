package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"signalhouse/overture/pkg/action"
	"signalhouse/overture/pkg/experiment"
	"signalhouse/overture/pkg/ledger"
	"signalhouse/overture/pkg/pipeline"
	"signalhouse/overture/pkg/telemetry/metrics"
)

// MaxRequestBodySize is the maximum allowed request body size (1MB).
// Decision and experiment payloads are small; anything larger is a
// caller bug, not a bigger campaign.
const MaxRequestBodySize = 1 * 1024 * 1024

// Decider runs proposed actions and human overrides through the decision
// pipeline. *pipeline.Orchestrator implements it.
type Decider interface {
	Decide(ctx context.Context, act *action.ProposedAction) (*pipeline.Outcome, error)
	Override(ctx context.Context, seq uint64, approve bool, reason string) (*pipeline.Outcome, error)
}

// ExperimentService is the slice of the experiment allocator the API
// exposes: administration, outcome ingestion, and forced evaluations.
type ExperimentService interface {
	Create(ctx context.Context, exp *experiment.Experiment) error
	Get(ctx context.Context, id string) (*experiment.Experiment, error)
	List(ctx context.Context) ([]*experiment.Experiment, error)
	RecordOutcome(ctx context.Context, experimentID, variantID string, impressions, conversions uint64) error
	Evaluate(ctx context.Context, experimentID string) (*experiment.Decision, error)
}

// LedgerReader is the read-only slice of ledger storage the API serves.
// Writes only ever happen through the pipeline.
type LedgerReader interface {
	Read(ctx context.Context, query *ledger.Query) ([]*ledger.Record, error)
	Count(ctx context.Context, query *ledger.Query) (int64, error)
	GetBySeq(ctx context.Context, seq uint64) (*ledger.Record, error)
}

// API owns the HTTP surface over the pipeline, the ledger's read side,
// and experiment administration. It maps outcomes and the package error
// taxonomies onto status codes; it holds no domain logic of its own.
type API struct {
	pipeline    Decider
	experiments ExperimentService
	records     LedgerReader
	collector   *metrics.Collector
	logger      *slog.Logger
}

// New creates the API surface. A nil collector records nothing.
func New(decider Decider, experiments ExperimentService, records LedgerReader, collector *metrics.Collector, logger *slog.Logger) (*API, error) {
	if decider == nil {
		return nil, errors.New("decider cannot be nil")
	}
	if experiments == nil {
		return nil, errors.New("experiment service cannot be nil")
	}
	if records == nil {
		return nil, errors.New("ledger reader cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		pipeline:    decider,
		experiments: experiments,
		records:     records,
		collector:   collector,
		logger:      logger.With("component", "api"),
	}, nil
}

// Register mounts all routes onto the mux. Method+path patterns mean a
// wrong method is a 405 from the mux itself, not handler boilerplate.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/decisions", a.handleDecide)
	mux.HandleFunc("POST /v1/overrides", a.handleOverride)
	mux.HandleFunc("GET /v1/ledger/records", a.handleLedgerList)
	mux.HandleFunc("GET /v1/ledger/records/{seq}", a.handleLedgerGet)
	mux.HandleFunc("GET /v1/experiments", a.handleExperimentList)
	mux.HandleFunc("POST /v1/experiments", a.handleExperimentCreate)
	mux.HandleFunc("GET /v1/experiments/{id}", a.handleExperimentGet)
	mux.HandleFunc("POST /v1/experiments/{id}/outcomes", a.handleExperimentOutcomes)
	mux.HandleFunc("POST /v1/experiments/{id}/evaluate", a.handleExperimentEvaluate)
}

// Handler returns the API routes as a standalone handler, without the
// server's middleware chain. Used by tests and the offline CLI.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	a.Register(mux)
	return mux
}

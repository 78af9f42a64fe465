// Package telemetry groups Overture's observability packages.
//
// # Components
//
//   - logging: structured slog loggers with request ID context and payload
//     digests instead of raw marketing copy
//   - metrics: the Prometheus collector for decision, guardrail,
//     experiment, and ledger metric families
//   - tracing: OpenTelemetry span export with W3C trace context
//     propagation
//   - health: liveness and readiness probes over the ledger, policy pack,
//     and experiment store
//
// Each component is wired independently: the logger is created first so
// later failures are reportable, metrics and tracing read their own config
// sections and degrade to noops when disabled, and health registers
// whichever probes the enabled backends support. Nothing here is in the
// decision path when its config section is off.
//
// # Usage
//
//	logger, err := logging.Setup(logCfg)
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing)
//	checker := health.New(5 * time.Second)
//
// The pipeline orchestrator accepts the collector and records through it;
// a nil collector records nothing, which keeps tests and the CLI free of
// metrics plumbing.
package telemetry

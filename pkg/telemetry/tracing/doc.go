// Package tracing provides OpenTelemetry distributed tracing for Overture.
//
// # Overview
//
// The tracing package owns the OpenTelemetry provider lifecycle: it builds
// the sampler and the OTLP gRPC exporter from configuration, installs the
// global tracer provider and the W3C Trace Context propagator, and shuts
// them down on exit. Instrumented packages (the decision pipeline, the HTTP
// server) obtain their tracers through the otel global, so a single New
// call turns their spans on and a disabled configuration leaves them as
// noops.
//
// # Trace Context Propagation
//
// Trace context crosses HTTP boundaries as W3C Trace Context
// (https://www.w3.org/TR/trace-context/) plus W3C Baggage:
//
//	traceparent: 00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01
//	baggage: overture.tenant=acme
//
// A caller that already carries a trace sees Overture's decision spans
// appear inside it; a caller without one starts a fresh trace subject to
// the configured sampler.
//
// # Sampling Strategies
//
// Three strategies, all parent-based so the upstream decision wins:
//   - always: sample every root trace (development, debugging)
//   - never: sample no root traces
//   - ratio: sample a fraction of root traces by trace ID (production)
//
// # Usage
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing)
//	if err != nil {
//	    return err
//	}
//	defer tracer.Shutdown(context.Background())
//
//	ctx, span := tracer.Start(ctx, "ledger.export")
//	span.SetAttributes(
//	    tracing.AttrChannel.String("email"),
//	    tracing.AttrVerdict.String("APPROVED"),
//	)
//	defer span.End()
//
// # Span Hierarchy
//
// A single decision produces this span tree:
//
//	pipeline.decide
//	├── subject.snapshot
//	├── guardrail.evaluate
//	├── experiment.assign
//	└── ledger.append
//
// Replayed decisions end at pipeline.decide: the idempotency index answers
// before any child work starts, and the span is marked with
// overture.replayed=true.
//
// # HTTP Integration
//
// Server handlers join the caller's trace before starting their span, and
// clients propagate outward:
//
//	ctx := tracing.Extract(r.Context(), r.Header)
//	ctx, span := tracer.Start(ctx, "http.request")
//	defer span.End()
//
//	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
//	tracing.Inject(ctx, req.Header)
//
// # Attributes
//
// Domain attributes live under the "overture.*" namespace (action, subject,
// experiment, verdict, ledger keys) so one trace query surfaces every span
// touching a given action or subject. SetError records an error on a span
// and marks its status failed; it ignores nil so callers can defer it
// unconditionally.
//
// # Configuration
//
//	telemetry:
//	  tracing:
//	    enabled: true
//	    exporter: otlp
//	    endpoint: localhost:4317
//	    sampler: ratio
//	    sample_ratio: 0.1
//	    insecure: true
//	    timeout: 10s
//
// The OTLP connection is lazy: a collector that is down at startup surfaces
// as export errors in the logs, never as a startup failure.
package tracing

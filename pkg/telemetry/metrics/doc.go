// Package metrics provides Prometheus metrics collection for Overture.
//
// # Overview
//
// The metrics package covers the four observable surfaces of the decision
// runtime: decisions served, guardrail check results, experiment allocation
// and lifecycle, and audit ledger appends. A single Collector registers every
// metric family exactly once against one registry and exposes Record methods
// for the pipeline and HTTP layer.
//
// # Metric Families
//
//   - Decision metrics: decisions served, latency, replays, in-flight count
//   - Guardrail metrics: per-check results, latency, unavailability
//   - Experiment metrics: assignments, lifecycle evaluations, state and weight gauges
//   - Ledger metrics: appends, append latency, sequence high-water mark, overrides
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//
//	collector.RecordDecision(
//		"APPROVED",           // verdict
//		"email",              // channel
//		"send_message",       // kind
//		3*time.Millisecond,   // duration
//		false,                // replayed
//	)
//
//	collector.RecordGuardrailResult("tone", "PASS", 40*time.Microsecond, false)
//	collector.RecordLedgerAppend("decision", time.Millisecond, 1042)
//
//	mux.Handle("/metrics", collector.Handler())
//
// Every Record method is safe on a nil *Collector, so the pipeline holds an
// optional collector without guarding each call.
//
// # Exposition
//
// Metrics carry the configured namespace (default "overture"):
//
//	# HELP overture_decisions_total Total decisions served, by aggregate verdict, action channel, and action kind
//	# TYPE overture_decisions_total counter
//	overture_decisions_total{verdict="APPROVED",channel="email",kind="send_message"} 1234
//
// # Cardinality Management
//
// Experiment and variant identifiers come from policy packs, not code, so
// the Collector bounds them: at most 100 unique combinations are admitted,
// and overflow aggregates into "other". Check names, verdicts, channels,
// kinds, and record kinds are closed vocabularies and need no limiting.
package metrics

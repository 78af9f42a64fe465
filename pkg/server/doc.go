// Package server runs the Overture HTTP service.
//
// It mounts the decision API from pkg/api next to the operational
// endpoints, applies the middleware chain, and owns the listener
// lifecycle: bind, serve, signal handling, graceful drain.
//
// # Basic Usage
//
//	cfg := config.GetConfig()
//
//	checker := health.New(0)
//	checker.Register(health.ProbeLedger, health.LedgerProbe(auditStore))
//	checker.Register(health.ProbePolicy, health.PolicyProbe(packManager))
//
//	srv := server.New(&cfg.Server, &cfg.Telemetry.Metrics, apiSurface,
//		checker, collector, server.BuildInfo{Version: version}, logger)
//	if err := srv.Start(ctx); err != nil {
//		logger.Error("server failed", "error", err)
//	}
//
// Start blocks until the context is cancelled, SIGINT/SIGTERM arrives,
// Stop is called, or the listener fails. Bind failures return
// synchronously so a taken port is a startup error, not a log line.
//
// # Routes
//
// Beyond the /v1 decision API (see pkg/api):
//
//   - GET /health — liveness; always 200, runs no probes
//   - GET /ready — readiness; 503 with a per-probe breakdown when degraded
//   - GET /version — build information stamped at link time
//   - GET /metrics — Prometheus exposition, when metrics are enabled
//     (path configurable, default /metrics)
//
// # Middleware Chain
//
// Outermost to innermost: Recovery, RequestID, Logging, Timeout, CORS.
// RequestID runs outside Logging so access lines carry the request ID;
// Timeout attaches a context deadline rather than racing the response
// writer.
//
// # Shutdown
//
// Shutdown stops accepting connections and drains in-flight requests up
// to the configured shutdown timeout. All lifecycle methods are safe for
// concurrent use.
package server

// Package health provides liveness and readiness probes for Overture.
//
// # Overview
//
// The health package separates two questions an orchestrator asks: is the
// process alive (/health), and can it serve decisions (/ready). Liveness
// runs no probes at all; readiness runs every registered probe and degrades
// when any fails. A degraded instance leaves the load balancer rotation but
// is never restarted for a dependency it cannot fix.
//
// # Probes
//
// The server wiring registers three probes:
//
//   - ledger: the audit ledger answers its cheapest query. Every decision
//     ends in a ledger append, so this probe gates readiness hardest.
//   - policy: a policy pack is loaded. Failed reloads keep the last good
//     pack, so this only fails before the first successful load.
//   - experiments: the experiment store answers. Assignment degrades to no
//     variant when it is down, so decisions served meanwhile stayed valid.
//
// # Usage
//
//	checker := health.New(5 * time.Second)
//	checker.Register(health.ProbeLedger, health.LedgerProbe(store))
//	checker.Register(health.ProbePolicy, health.PolicyProbe(packs))
//	checker.Register(health.ProbeExperiments, health.ExperimentProbe(experiments))
//
//	mux.Handle("GET /health", checker.LivenessHandler())
//	mux.Handle("GET /ready", checker.ReadinessHandler())
//	mux.Handle("GET /version", health.VersionHandler(version, commit, buildTime))
//
// # Responses
//
// Readiness reports per-probe results; 200 when ready, 503 when degraded:
//
//	{
//	    "status": "degraded",
//	    "checks": {
//	        "ledger": {"status": "ok", "duration_ms": 0.4},
//	        "experiments": {"status": "ok", "duration_ms": 0.2},
//	        "policy": {"status": "unhealthy", "message": "policy pack: no pack loaded"}
//	    },
//	    "timestamp": "2026-08-25T10:30:00Z"
//	}
//
// Probes run concurrently under a shared per-probe timeout, so one wedged
// dependency cannot stall the whole report past that timeout.
package health

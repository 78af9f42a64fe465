// Package api is the HTTP surface over the decision pipeline, the
// ledger's read side, and experiment administration.
//
// The package holds no domain logic: handlers decode, call a
// collaborator, and map the result or its package's error taxonomy onto
// a status code. Everything decided lands in the ledger before any
// response leaves.
//
// # Routes
//
//	POST /v1/decisions                     decide one proposed action
//	POST /v1/overrides                     record a human correction
//	GET  /v1/ledger/records                filtered, paginated ledger read
//	GET  /v1/ledger/records/{seq}          one record by sequence number
//	GET  /v1/experiments                   list experiments
//	POST /v1/experiments                   register an experiment
//	GET  /v1/experiments/{id}              one experiment with counters
//	POST /v1/experiments/{id}/outcomes     ingest impressions/conversions
//	POST /v1/experiments/{id}/evaluate     force one significance evaluation
//
// Routes use Go 1.22 method+path patterns; a wrong method is a 405 from
// the mux. The server package mounts these alongside /health, /ready,
// /version, and /metrics.
//
// # Decisions Are Not Errors
//
// POST /v1/decisions returns 200 for every decided action, including
// rejections and escalations: the verdict is in the outcome body, and a
// rejected campaign action is the system working, not failing. A replay
// of an already-decided action ID is also a 200, with replayed:true.
// Error statuses are reserved for requests that never became decisions:
//
//	400  malformed body or action validation failure
//	503  retry-safe system fault, with Retry-After (same action ID is
//	     safe to resend; the idempotency index absorbs the retry)
//	504  request deadline exceeded
//
// # Error Envelope
//
// Non-2xx responses share one envelope:
//
//	{
//	  "error": {
//	    "message": "override reason is required",
//	    "code": "unprocessable"
//	  }
//	}
//
// # Middleware
//
// The server applies Recovery, RequestID, Logging, Timeout, and CORS
// around the routes, outermost first. Request IDs honor an inbound
// X-Request-ID header and fall back to a generated UUID; the ID rides
// the context into every log line below the handler. Timeout attaches a
// context deadline rather than racing the response writer from a second
// goroutine; the deadline surfaces as a 504 through the handlers' error
// writers.
//
// # Usage
//
//	a, err := api.New(orchestrator, allocator, store, collector, logger)
//	if err != nil {
//	    return err
//	}
//	mux := http.NewServeMux()
//	a.Register(mux)
package api

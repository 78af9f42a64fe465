// Package logging builds the structured loggers the rest of Overture
// injects.
//
// # Overview
//
// The package configures Go's standard log/slog and adds the few
// conventions the service relies on:
//   - JSON and text handlers, with level and source location from config
//   - Component-scoped loggers (every line carries a "component" field)
//   - Request ID propagation through context for the HTTP layer
//   - Payload digests so rendered marketing copy never lands in logs
//
// # Usage
//
//	// At startup: build and install the default logger
//	logger, err := logging.Setup(logging.Config{
//	    Level:  cfg.Telemetry.Logging.Level,
//	    Format: cfg.Telemetry.Logging.Format,
//	})
//
//	// Scope a logger to one component
//	log := logging.Component("pipeline")
//	log.Info("decision recorded", "action_id", id, "verdict", verdict)
//
//	// Fingerprint message copy instead of logging it
//	log.Debug("action received",
//	    "payload_digest", logging.PayloadDigest(action.Payload.Text),
//	)
//
// # Content Redaction
//
// Rendered subject lines and message text are customer-facing content.
// Log lines carry PayloadDigest output (sha256, first 12 hex characters)
// rather than the copy itself; the digest is stable, so operators can
// still correlate records across systems.
package logging

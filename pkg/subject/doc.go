// Package subject models the read-only subject state the guardrails
// consult: lifecycle stage, consent records, and engagement.
//
// The pipeline resolves one Snapshot per decision through a Provider.
// Providers are bounded-latency collaborators: the caller supplies a
// timeout, and on timeout or error the pipeline treats snapshot-dependent
// checks as unavailable and fails them closed. Real providers front a CRM
// or profile store; StaticProvider backs tests and offline decisions.
package subject

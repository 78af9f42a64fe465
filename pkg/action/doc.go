// Package action defines the unit of work entering the decision pipeline:
// a proposed marketing action against one subject over one channel.
//
// A ProposedAction is immutable once constructed. Callers supply a unique
// action ID that doubles as the idempotency identifier for the whole
// pipeline: submitting the same ID twice yields the same decision.
//
// The payload carries an opaque content reference plus the small set of
// declared fields the guardrails need (rendered text, discount magnitude)
// so that checks never have to fetch or parse creative content themselves.
package action

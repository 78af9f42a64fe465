// Package pipeline orchestrates the decision path for proposed actions:
// subject snapshot, guardrail evaluation, experiment assignment, and the
// audit append, in that order.
//
// The orchestrator guarantees exactly one decision record per action ID
// across concurrent and repeated invocations, serializes decisions per
// subject so frequency reads and increments cannot interleave, and runs
// everything from guardrail evaluation to the audit append inside a
// non-cancelable section: a decision that consumed a frequency slot is
// always audited, or the invocation fails before any side effect.
package pipeline

// Package experiment allocates actions to experiment variants and decides
// when a variant has won.
//
// Allocation is deterministic: a subject's variant is a pure function of
// (experiment ID, subject ID) and the weights at assignment time, so repeat
// actions for one subject never straddle variants. Assignments are stored
// and sticky for the experiment's lifetime.
//
// Evaluation runs a pooled two-proportion z-test of each challenger against
// the control. Significant winners are promoted on a fixed schedule (weight
// doubles, capped per step) rather than jumping to 100%, significant losers
// are retired, and experiments that exhaust their time or sample budget
// close with the control retained. Evaluation is deterministic given the
// stored counters.
package experiment

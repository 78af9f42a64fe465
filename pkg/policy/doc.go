// Package policy loads and serves guardrail policy packs: the versioned
// business limits (frequency caps, consent rules, tone and spam thresholds,
// financial ceilings, experiment policy) the guardrail engine evaluates
// against.
//
// Packs are declarative YAML, loadable from a file, a directory, or a git
// repository. The Manager owns the current pack and swaps it atomically on
// reload; a failed reload never replaces the last good pack. File sources
// support hot reload through fsnotify with debouncing; git sources poll and
// stamp each pack with the commit it came from, so every audit record can
// name the exact policy version it was decided under.
package policy

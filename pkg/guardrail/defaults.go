package guardrail

import "signalhouse/overture/pkg/frequency"

// DefaultRegistry returns a registry with the standard check set in its
// canonical order. Frequency runs first so its slot consumption is settled
// before any other check can reject; the cheap payload checks run before
// the snapshot-dependent ones.
func DefaultRegistry(tracker *frequency.Tracker, limiter *frequency.RateLimiter) (*Registry, error) {
	registry := NewRegistry()

	checks := []Check{
		NewFrequencyCheck(tracker),
		NewRateCheck(limiter),
		NewConsentCheck(),
		NewToneCheck(),
		NewSpamCheck(),
		NewFinancialCheck(),
		NewEngagementCheck(),
	}
	for _, c := range checks {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

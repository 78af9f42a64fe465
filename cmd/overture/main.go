// Overture is a decision governance runtime for marketing automation.
//
// It sits between campaign agents and send infrastructure, running every
// proposed action through guardrail checks, experiment allocation, and an
// append-only audit ledger:
//   - Policy-pack-driven guardrails (frequency, consent, tone, spam,
//     financial, engagement, rate)
//   - Deterministic experiment assignment with lifecycle evaluation
//   - Append-only audit ledger with human override corrections
//   - Idempotent decision replay per action ID
//
// Usage:
//
//	# Start the server with the default configuration
//	overture run
//
//	# Start with a custom configuration file
//	overture run --config /etc/overture/config.yaml
//
//	# Validate the configuration and policy pack
//	overture validate
//
//	# Run one decision offline against a candidate pack
//	overture decide --action action.json --policy candidate.yaml
//
//	# Query the audit ledger
//	overture ledger list --subject cust-42 --verdict REJECTED
//
//	# Inspect experiments
//	overture experiment show exp-hero
//
//	# Show version information
//	overture version
package main

func main() {
	Execute()
}

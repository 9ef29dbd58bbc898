package enrichment

import "skirmish/pkg/esigateway"

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeTransient
	outcomePermanent
)

// classify maps a Fetch error onto the enrichment state machine's three
// terminal/retry branches (spec §4.5): 404/410 and 401/403 are permanent
// (no retry schedule fixes a missing or forbidden resource), everything
// else — 5xx, 429, budget exhaustion, network/timeout errors — is
// transient and eligible for the resweep's retry-after-backoff.
func classify(err error) outcome {
	if err == nil {
		return outcomeSuccess
	}
	switch err.(type) {
	case *esigateway.UpstreamNotFound, *esigateway.UpstreamUnauthorized:
		return outcomePermanent
	default:
		return outcomeTransient
	}
}

package esigateway

import "fmt"

// UpstreamHttpError is returned for any non-2xx response other than 401,
// 403 or 404, after retries are exhausted.
type UpstreamHttpError struct {
	Status int
}

func (e *UpstreamHttpError) Error() string {
	return fmt.Sprintf("esigateway: upstream responded %d", e.Status)
}

// UpstreamUnauthorized is returned for 401/403. No token-aware retry
// happens at this layer; callers decide whether to fail fast or halt.
type UpstreamUnauthorized struct{}

func (e *UpstreamUnauthorized) Error() string {
	return "esigateway: upstream unauthorized"
}

// UpstreamNotFound is returned for 404. Terminal for C5 enrichment.
type UpstreamNotFound struct{}

func (e *UpstreamNotFound) Error() string {
	return "esigateway: upstream not found"
}

// BudgetExhausted is returned when the per-process error budget has been
// driven to zero or below and outbound calls are suspended.
type BudgetExhausted struct{}

func (e *BudgetExhausted) Error() string {
	return "esigateway: error budget exhausted, outbound calls suspended"
}

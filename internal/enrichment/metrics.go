package enrichment

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Grounded on internal/killmail/ingestion/metrics.go's promauto counters,
// which themselves follow MOHCentral-opm-stats-api's worker pool metrics.
var (
	succeededTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skirmish_enrichment_succeeded_total",
		Help: "Total number of events whose enrichment fetch succeeded.",
	})

	failedTransientTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skirmish_enrichment_failed_transient_total",
		Help: "Total number of enrichment fetches that failed transiently and were scheduled for retry.",
	})

	failedPermanentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skirmish_enrichment_failed_permanent_total",
		Help: "Total number of enrichment fetches that failed permanently.",
	})

	retriedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skirmish_enrichment_retried_total",
		Help: "Total number of failed_transient rows requeued to pending by the resweep.",
	})

	skippedTerminalTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skirmish_enrichment_skipped_terminal_total",
		Help: "Total number of work items skipped because the enrichment row was already terminal.",
	})
)

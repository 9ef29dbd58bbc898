package ingestion

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric names are grounded on MOHCentral-opm-stats-api's worker pool
// (internal/worker/pool.go), which tracks ingested/processed/failed
// counters the same way via promauto.
var (
	eventsStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skirmish_ingestion_events_stored_total",
		Help: "Total number of events newly persisted by ingestion.",
	})

	eventsDuplicate = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skirmish_ingestion_events_duplicate_total",
		Help: "Total number of pulled events that already existed.",
	})

	eventsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skirmish_ingestion_events_rejected_total",
		Help: "Total number of events dropped by the ruleset's ignore_unlisted filter.",
	})

	malformedEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skirmish_ingestion_malformed_events_total",
		Help: "Total number of pulled packages dropped for decode/timestamp/payload errors.",
	})

	pullErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skirmish_ingestion_pull_errors_total",
		Help: "Total number of upstream pull failures.",
	})

	resweptEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skirmish_ingestion_resweep_events_total",
		Help: "Total number of stale pending enrichments re-emitted as work items.",
	})
)

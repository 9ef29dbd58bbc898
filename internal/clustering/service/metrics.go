package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	battlesFormed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skirmish_clustering_battles_formed_total",
		Help: "Total number of battle plans committed.",
	})

	eventsIgnored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skirmish_clustering_events_ignored_total",
		Help: "Total number of events processed with no battle (below min_kills).",
	})

	planCommitErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skirmish_clustering_plan_commit_errors_total",
		Help: "Total number of plan commits that failed and were left for retry.",
	})

	emptyBatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skirmish_clustering_empty_batches_total",
		Help: "Total number of ticks that found no unprocessed events.",
	})
)

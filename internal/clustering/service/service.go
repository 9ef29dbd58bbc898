// Package service implements C7: the ticker-driven loop that fetches
// unprocessed events, hands them to the pure clustering engine, and
// commits each resulting plan transactionally. Grounded on the teacher's
// poll-loop idiom in internal/zkillboard/services/redisq_consumer.go
// (fixed-interval tick, fetch, process, repeat), redirected at a batch
// database read instead of a long-poll HTTP pull.
package service

import (
	"context"
	"log/slog"
	"time"

	"skirmish/internal/clustering/engine"
	killmodels "skirmish/internal/killmail/models"
	"skirmish/internal/ruleset"
)

// clusterStore is the persistence seam Service depends on; *Store
// satisfies it against Postgres, tests satisfy it with an in-memory fake.
type clusterStore interface {
	FetchBatch(ctx context.Context, delay time.Duration, limit int) ([]killmodels.Event, error)
	PersistPlan(ctx context.Context, plan engine.Plan) error
	MarkIgnored(ctx context.Context, eventIDs []int64) error
	Recluster(ctx context.Context, from, to time.Time) error
}

// Classifier derives a battle's space/security class from its system ID.
type Classifier interface {
	Classify(systemID int64) (spaceClass, securityClass string)
}

// RulesetView is the read side of C2 the clusterer needs. Only min_kills
// is sourced from the ruleset (via min_pilots, per spec §4.6); window and
// gap stay fixed defaults since the ruleset carries no such fields.
type RulesetView interface {
	Current() ruleset.Ruleset
}

func clusterParams(r ruleset.Ruleset) engine.Params {
	p := engine.DefaultParams()
	if r.MinPilots > 0 {
		p.MinKills = r.MinPilots
	}
	return p
}

// Config tunes the tick interval, batch size and processing delay.
type Config struct {
	TickInterval time.Duration // T_cluster, default 5s
	DelayMinutes int           // default 30
	BatchSize    int           // default 200
}

func DefaultConfig() Config {
	return Config{TickInterval: 5 * time.Second, DelayMinutes: 30, BatchSize: 200}
}

// Service runs C7's fetch-cluster-commit loop.
type Service struct {
	store       clusterStore
	classifier  Classifier
	rulesetView RulesetView
	cfg         Config
}

func NewService(store clusterStore, classifier Classifier, rulesetView RulesetView, cfg Config) *Service {
	if cfg.TickInterval <= 0 {
		cfg = DefaultConfig()
	}
	return &Service{store: store, classifier: classifier, rulesetView: rulesetView, cfg: cfg}
}

// Run ticks every TickInterval until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one fetch-cluster-commit cycle. Exported so tests and an
// operator-triggered "run now" endpoint can drive it directly.
func (s *Service) Tick(ctx context.Context) {
	delay := time.Duration(s.cfg.DelayMinutes) * time.Minute
	events, err := s.store.FetchBatch(ctx, delay, s.cfg.BatchSize)
	if err != nil {
		slog.Error("clustering: failed to fetch batch", "error", err)
		return
	}
	if len(events) == 0 {
		emptyBatches.Inc()
		return
	}

	params := engine.DefaultParams()
	if s.rulesetView != nil {
		params = clusterParams(s.rulesetView.Current())
	}

	result := engine.Cluster(events, params, s.classifier)

	for _, plan := range result.Battles {
		if err := s.store.PersistPlan(ctx, plan); err != nil {
			slog.Error("clustering: failed to persist plan", "error", err, "battle_id", plan.Battle.ID)
			planCommitErrors.Inc()
			continue
		}
		battlesFormed.Inc()
	}

	if len(result.Ignored) > 0 {
		if err := s.store.MarkIgnored(ctx, result.Ignored); err != nil {
			slog.Error("clustering: failed to mark ignored events", "error", err)
			return
		}
		eventsIgnored.Add(float64(len(result.Ignored)))
	}
}

// Recluster resets processing state for [from, to) so the next tick
// re-clusters the range from scratch, per spec §4.7's operator-initiated
// recluster operation.
func (s *Service) Recluster(ctx context.Context, from, to time.Time) error {
	return s.store.Recluster(ctx, from, to)
}

// Package ingestion implements C4: pull from the upstream killmail source,
// apply the ruleset's pre-ingest filter, persist at-most-once, and emit a
// work item for enrichment. Grounded on the teacher's
// internal/zkillboard/services/processor.go dedup-then-store pipeline,
// redirected at this spec's pending-enrichment state machine instead of
// the teacher's single-shot "fetch full detail inline" treatment.
package ingestion

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	killmodels "skirmish/internal/killmail/models"
	"skirmish/internal/killmail/source"
	"skirmish/internal/ruleset"
)

// WorkEmitter hands a newly-pending event off to the enrichment worker.
type WorkEmitter interface {
	Emit(ctx context.Context, eventID int64)
}

// ChannelEmitter emits work items onto a buffered channel shared with the
// enrichment worker pool. Emit blocks until the channel accepts the item
// or ctx is cancelled — ingestion never silently drops a work item.
type ChannelEmitter struct {
	ch chan<- int64
}

func NewChannelEmitter(ch chan<- int64) *ChannelEmitter {
	return &ChannelEmitter{ch: ch}
}

func (e *ChannelEmitter) Emit(ctx context.Context, eventID int64) {
	select {
	case e.ch <- eventID:
	case <-ctx.Done():
	}
}

// RulesetView is the read side of C2 that ingestion needs: the live,
// invalidation-refreshed snapshot.
type RulesetView interface {
	Current() ruleset.Ruleset
}

// Classifier derives an event's space/security class from its system ID.
type Classifier interface {
	Classify(systemID int64) (spaceClass, securityClass string)
}

// eventStore is the persistence seam Service depends on; *Store satisfies
// it against Postgres, tests satisfy it with an in-memory fake.
type eventStore interface {
	InsertEvent(ctx context.Context, e killmodels.Event) (bool, error)
	InsertPendingEnrichment(ctx context.Context, eventID int64) error
	StalePendingEventIDs(ctx context.Context, olderThan time.Duration, limit int) ([]int64, error)
}

// Config tunes the background resweep of stuck pending enrichments.
type Config struct {
	ResweepInterval time.Duration
	ResweepAge      time.Duration
	ResweepBatch    int
}

// DefaultConfig mirrors spec defaults for the resweep knobs.
func DefaultConfig() Config {
	return Config{
		ResweepInterval: 5 * time.Minute,
		ResweepAge:      2 * time.Minute,
		ResweepBatch:    100,
	}
}

// Service runs C4's pull-filter-persist-emit loop.
type Service struct {
	source      source.KillmailSource
	store       eventStore
	rulesetView RulesetView
	classifier  Classifier
	emitter     WorkEmitter
	cfg         Config

	stored    atomic.Int64
	duplicate atomic.Int64
	rejected  atomic.Int64
	malformed atomic.Int64
	errors    atomic.Int64
	reswept   atomic.Int64
}

// sourceStatus is satisfied by *source.RedisQSource; Status degrades
// gracefully to a zero-value source.Status when the configured source
// doesn't expose one (e.g. a test fake).
type sourceStatus interface {
	Status() source.Status
}

// Status is a point-in-time snapshot for the /ingestion/status endpoint,
// grounded on the teacher's RedisQConsumer.GetStatus.
type Status struct {
	Source          source.Status `json:"source"`
	EventsStored    int64         `json:"events_stored"`
	EventsDuplicate int64         `json:"events_duplicate"`
	EventsRejected  int64         `json:"events_rejected"`
	Malformed       int64         `json:"malformed"`
	PullErrors      int64         `json:"pull_errors"`
	Reswept         int64         `json:"reswept"`
}

func (s *Service) Status() Status {
	st := Status{
		EventsStored:    s.stored.Load(),
		EventsDuplicate: s.duplicate.Load(),
		EventsRejected:  s.rejected.Load(),
		Malformed:       s.malformed.Load(),
		PullErrors:      s.errors.Load(),
		Reswept:         s.reswept.Load(),
	}
	if sp, ok := s.source.(sourceStatus); ok {
		st.Source = sp.Status()
	}
	return st
}

func NewService(src source.KillmailSource, store eventStore, rulesetView RulesetView, classifier Classifier, emitter WorkEmitter, cfg Config) *Service {
	if cfg.ResweepInterval <= 0 {
		cfg = DefaultConfig()
	}
	return &Service{
		source:      src,
		store:       store,
		rulesetView: rulesetView,
		classifier:  classifier,
		emitter:     emitter,
		cfg:         cfg,
	}
}

// Run drives the ingestion loop until ctx is cancelled. Pull's own
// long-poll wait is the loop's pacing mechanism; no extra ticking is
// needed between successful pulls.
func (s *Service) Run(ctx context.Context) error {
	resweepTicker := time.NewTicker(s.cfg.ResweepInterval)
	defer resweepTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-resweepTicker.C:
			s.resweep(ctx)
		default:
			s.pullOnce(ctx)
		}
	}
}

func (s *Service) pullOnce(ctx context.Context) {
	event, err := s.source.Pull(ctx)
	if err != nil {
		switch err.(type) {
		case *source.DecodeError, *source.InvalidTimestamp, *source.MissingPayload:
			malformedEvents.Inc()
			s.malformed.Add(1)
		default:
			pullErrors.Inc()
			s.errors.Add(1)
			time.Sleep(time.Second)
		}
		return
	}
	if event == nil {
		return
	}
	s.Ingest(ctx, *event)
}

// Ingest classifies, applies the pre-ingest filter, persists at-most-once
// and emits a work item. Classification comes first so the filter can match
// tracked security classes. Exported so ingestion can be driven directly by
// tests or by alternate sources (e.g. a backfill tool) without going
// through Pull.
func (s *Service) Ingest(ctx context.Context, e killmodels.Event) {
	e.SpaceClass, e.SecurityClass = s.classifier.Classify(e.SystemID)

	current := s.rulesetView.Current()
	if ruleset.RejectedByIngestFilter(current, e) {
		eventsRejected.Inc()
		s.rejected.Add(1)
		return
	}

	stored, err := s.store.InsertEvent(ctx, e)
	if err != nil {
		slog.Error("ingestion: failed to insert event", "error", err, "event_id", e.EventID)
		return
	}
	if !stored {
		eventsDuplicate.Inc()
		s.duplicate.Add(1)
		return
	}
	eventsStored.Inc()
	s.stored.Add(1)

	if err := s.store.InsertPendingEnrichment(ctx, e.EventID); err != nil {
		slog.Error("ingestion: failed to insert pending enrichment", "error", err, "event_id", e.EventID)
		return
	}

	s.emitter.Emit(ctx, e.EventID)
}

func (s *Service) resweep(ctx context.Context) {
	ids, err := s.store.StalePendingEventIDs(ctx, s.cfg.ResweepAge, s.cfg.ResweepBatch)
	if err != nil {
		slog.Error("ingestion: resweep query failed", "error", err)
		return
	}
	for _, id := range ids {
		resweptEvents.Inc()
		s.reswept.Add(1)
		s.emitter.Emit(ctx, id)
	}
}

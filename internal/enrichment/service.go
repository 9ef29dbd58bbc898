package enrichment

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	killmodels "skirmish/internal/killmail/models"
)

// enrichmentStore is the persistence seam Worker depends on; *Store
// satisfies it against Postgres, tests satisfy it with an in-memory fake.
type enrichmentStore interface {
	StatusAndSourceURL(ctx context.Context, eventID int64) (status, sourceURL string, err error)
	MarkSucceeded(ctx context.Context, eventID int64, payload []byte) error
	MarkFailedTransient(ctx context.Context, eventID int64, reason string) error
	MarkFailedPermanent(ctx context.Context, eventID int64, reason string) error
	StaleTransientEventIDs(ctx context.Context, olderThan time.Duration, limit int) ([]int64, error)
}

// Emitter is the same capability ingestion.WorkEmitter exposes, reused
// here so the resweep can hand a requeued event back onto the shared work
// channel without the two packages importing each other.
type Emitter interface {
	Emit(ctx context.Context, eventID int64)
}

// Config tunes the resweep cron schedule.
type Config struct {
	ResweepSchedule string // robfig/cron expression, seconds-precision
	ResweepAge      time.Duration
	ResweepBatch    int
}

// DefaultConfig resweeps failed_transient rows older than one minute every
// thirty seconds, in batches of 100.
func DefaultConfig() Config {
	return Config{
		ResweepSchedule: "*/30 * * * * *",
		ResweepAge:      time.Minute,
		ResweepBatch:    100,
	}
}

// Worker drains work items (event IDs) from a channel shared with
// ingestion and drives each one through the enrichment state machine.
// Grounded on the cron-driven resweep idiom in internal/scheduler/engine.go
// (cron.New(cron.WithSeconds()), AddFunc, Start/Stop), applied here to
// requeue failed_transient rows on a fixed schedule instead of the
// scheduler's arbitrary per-task cron expressions.
type Worker struct {
	store   enrichmentStore
	fetcher Fetcher
	emitter Emitter
	cron    *cron.Cron
	cfg     Config

	succeeded       atomic.Int64
	failedTransient atomic.Int64
	failedPermanent atomic.Int64
	retried         atomic.Int64
	skippedTerminal atomic.Int64
	lastEventID     atomic.Int64
}

// Status is a point-in-time snapshot for the /enrichment/status endpoint,
// grounded on the teacher's RedisQConsumer.GetStatus.
type Status struct {
	Succeeded       int64  `json:"succeeded"`
	FailedTransient int64  `json:"failed_transient"`
	FailedPermanent int64  `json:"failed_permanent"`
	Retried         int64  `json:"retried"`
	SkippedTerminal int64  `json:"skipped_terminal"`
	LastEventID     *int64 `json:"last_event_id,omitempty"`
}

func (w *Worker) Status() Status {
	st := Status{
		Succeeded:       w.succeeded.Load(),
		FailedTransient: w.failedTransient.Load(),
		FailedPermanent: w.failedPermanent.Load(),
		Retried:         w.retried.Load(),
		SkippedTerminal: w.skippedTerminal.Load(),
	}
	if id := w.lastEventID.Load(); id != 0 {
		st.LastEventID = &id
	}
	return st
}

func NewWorker(store enrichmentStore, fetcher Fetcher, emitter Emitter, cfg Config) *Worker {
	if cfg.ResweepSchedule == "" {
		cfg = DefaultConfig()
	}
	return &Worker{
		store:   store,
		fetcher: fetcher,
		emitter: emitter,
		cron:    cron.New(cron.WithSeconds()),
		cfg:     cfg,
	}
}

// Run drains items off work until ctx is cancelled, and runs the resweep
// on its cron schedule concurrently. It returns once work is closed or ctx
// is done.
func (w *Worker) Run(ctx context.Context, work <-chan int64) error {
	if _, err := w.cron.AddFunc(w.cfg.ResweepSchedule, func() {
		w.resweep(ctx)
	}); err != nil {
		return err
	}
	w.cron.Start()
	defer func() {
		stopCtx := w.cron.Stop()
		<-stopCtx.Done()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case eventID, ok := <-work:
			if !ok {
				return nil
			}
			w.Process(ctx, eventID)
		}
	}
}

// Process drives a single work item through the state machine. Idempotent:
// a work item for an event whose row is already succeeded or
// failed_permanent is a no-op, so receiving the same item twice never
// regresses state or double-counts an external call.
func (w *Worker) Process(ctx context.Context, eventID int64) {
	status, sourceURL, err := w.store.StatusAndSourceURL(ctx, eventID)
	if err != nil {
		slog.Error("enrichment: failed to read enrichment status", "error", err, "event_id", eventID)
		return
	}
	if status == killmodels.EnrichmentSucceeded || status == killmodels.EnrichmentFailedPermanent {
		skippedTerminalTotal.Inc()
		w.skippedTerminal.Add(1)
		return
	}

	w.lastEventID.Store(eventID)
	payload, fetchErr := w.fetcher.Fetch(ctx, eventID, sourceURL)
	switch classify(fetchErr) {
	case outcomeSuccess:
		if err := w.store.MarkSucceeded(ctx, eventID, payload); err != nil {
			slog.Error("enrichment: failed to mark succeeded", "error", err, "event_id", eventID)
			return
		}
		succeededTotal.Inc()
		w.succeeded.Add(1)

	case outcomePermanent:
		if err := w.store.MarkFailedPermanent(ctx, eventID, fetchErr.Error()); err != nil {
			slog.Error("enrichment: failed to mark failed_permanent", "error", err, "event_id", eventID)
			return
		}
		failedPermanentTotal.Inc()
		w.failedPermanent.Add(1)

	case outcomeTransient:
		if err := w.store.MarkFailedTransient(ctx, eventID, fetchErr.Error()); err != nil {
			slog.Error("enrichment: failed to mark failed_transient", "error", err, "event_id", eventID)
			return
		}
		failedTransientTotal.Inc()
		w.failedTransient.Add(1)
	}
}

// resweep requeues failed_transient rows older than ResweepAge back to
// pending and re-emits them as work items, the same retry-after-backoff
// step spec §4.5 names.
func (w *Worker) resweep(ctx context.Context) {
	ids, err := w.store.StaleTransientEventIDs(ctx, w.cfg.ResweepAge, w.cfg.ResweepBatch)
	if err != nil {
		slog.Error("enrichment: resweep query failed", "error", err)
		return
	}
	for _, id := range ids {
		retriedTotal.Inc()
		w.retried.Add(1)
		w.emitter.Emit(ctx, id)
	}
}

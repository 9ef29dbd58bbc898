package ruleset

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"skirmish/pkg/database"
)

// Store persists the singleton ruleset row and publishes invalidation
// messages after every committed update. Grounded on the teacher's Redis
// wrapper (pkg/database/redis.go), extended with Publish/Subscribe.
type Store struct {
	postgres *database.Postgres
	redis    *database.Redis
}

// NewStore creates a ruleset store.
func NewStore(postgres *database.Postgres, redis *database.Redis) *Store {
	return &Store{postgres: postgres, redis: redis}
}

// GetActive returns the current singleton ruleset.
func (s *Store) GetActive(ctx context.Context) (Ruleset, error) {
	row := s.postgres.Pool.QueryRow(ctx, `
		SELECT min_pilots, tracked_alliance_ids, tracked_corp_ids, tracked_system_ids,
		       tracked_security_classes, ignore_unlisted, updated_at
		FROM ruleset
		LIMIT 1
	`)

	var r Ruleset
	if err := row.Scan(&r.MinPilots, &r.TrackedAllianceIDs, &r.TrackedCorpIDs, &r.TrackedSystemIDs,
		&r.TrackedSecurityClasses, &r.IgnoreUnlisted, &r.UpdatedAt); err != nil {
		return Ruleset{}, fmt.Errorf("failed to read active ruleset: %w", err)
	}

	return r, nil
}

// UpdateActive applies patch to the singleton row, last-writer-wins keyed
// on updated_at, commits, then publishes a single invalidation message on
// ruleset:invalidate. Subscribers (C4, C8) must re-read the ruleset on
// receipt and never cache it across a long-lived request without
// rechecking.
func (s *Store) UpdateActive(ctx context.Context, patch Patch) (Ruleset, error) {
	current, err := s.GetActive(ctx)
	if err != nil {
		return Ruleset{}, err
	}

	updated := patch.apply(current)
	updated.UpdatedAt = time.Now().UTC()

	_, err = s.postgres.Pool.Exec(ctx, `
		UPDATE ruleset SET
			min_pilots = $1,
			tracked_alliance_ids = $2,
			tracked_corp_ids = $3,
			tracked_system_ids = $4,
			tracked_security_classes = $5,
			ignore_unlisted = $6,
			updated_at = $7
	`, updated.MinPilots, updated.TrackedAllianceIDs, updated.TrackedCorpIDs, updated.TrackedSystemIDs,
		updated.TrackedSecurityClasses, updated.IgnoreUnlisted, updated.UpdatedAt)
	if err != nil {
		return Ruleset{}, fmt.Errorf("failed to update ruleset: %w", err)
	}

	payload := updated.UpdatedAt.Format(time.RFC3339Nano)

	if err := s.redis.Publish(ctx, InvalidateChannel, payload); err != nil {
		slog.Error("failed to publish ruleset invalidation", "error", err)
	}

	return updated, nil
}

// Watcher wraps a Redis subscription to ruleset:invalidate and re-reads
// the ruleset into an in-memory holder whenever a message arrives. Callers
// (C4's ingestion loop, C8's stream sessions) hold a *Watcher and call
// Current() instead of hitting the store on every tick.
type Watcher struct {
	store *Store

	mu      sync.RWMutex
	current Ruleset
}

// NewWatcher creates a watcher with an initial snapshot loaded from the
// store, then starts a background goroutine that re-reads on every
// invalidation message. The subscription survives a dropped Redis
// connection — go-redis reconnects its PubSub internally — so the watcher
// never needs to re-subscribe itself; worst case is one stale tick.
func NewWatcher(ctx context.Context, store *Store, redis *database.Redis) (*Watcher, error) {
	initial, err := store.GetActive(ctx)
	if err != nil {
		return nil, err
	}

	w := &Watcher{store: store, current: initial}

	sub := redis.Subscribe(ctx, InvalidateChannel)
	go w.run(ctx, sub)

	return w, nil
}

// run re-reads the ruleset from the store on every invalidation message
// until ctx is cancelled, then closes the subscription. A failed re-read is
// logged and skipped — the watcher keeps serving its last good snapshot
// rather than blocking or panicking.
func (w *Watcher) run(ctx context.Context, sub *redis.PubSub) {
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			updated, err := w.store.GetActive(ctx)
			if err != nil {
				slog.Error("failed to reload ruleset after invalidation", "error", err)
				continue
			}
			w.mu.Lock()
			w.current = updated
			w.mu.Unlock()
		}
	}
}

// Current returns the most recently observed ruleset snapshot.
func (w *Watcher) Current() Ruleset {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

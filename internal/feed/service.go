// Package feed implements C8: the filtered, cursor-paginated killmail feed
// and its SSE stream. Grounded on the teacher's zkillboard
// routes/repository pair, widened with a cursor-based poll the teacher's
// "recent" endpoint never needed.
package feed

import (
	"context"
	"time"

	killmodels "skirmish/internal/killmail/models"
	"skirmish/internal/nameenricher"
	"skirmish/internal/ruleset"
)

// overfetchFactor compensates for the ruleset/query filter dropping rows
// after the store's LIMIT has already been applied: fetch more than the
// caller asked for, filter, then trim back down to the requested size.
const overfetchFactor = 3

// RulesetView is the read side of C2 the feed needs to apply spec §4.8's
// shared filter predicate.
type RulesetView interface {
	Current() ruleset.Ruleset
}

// NameEnricher is C9's capability, narrowed to what the feed uses.
type NameEnricher interface {
	Enrich(ctx context.Context, events []killmodels.Event) (map[int64]nameenricher.Entity, error)
}

// feedStore is the persistence seam Service depends on; *Store satisfies
// it against Postgres, tests satisfy it with an in-memory fake.
type feedStore interface {
	FetchRecent(ctx context.Context, limit int) ([]killmodels.Event, error)
	FetchNewestCursor(ctx context.Context) (occurredAt time.Time, eventID int64, ok bool, err error)
	FetchSince(ctx context.Context, occurredAt time.Time, eventID int64, limit int) ([]killmodels.Event, error)
}

// Service holds the feed's business logic, with no HTTP awareness —
// routes.go adapts it to huma operations and a raw chi SSE handler.
type Service struct {
	store       feedStore
	rulesetView RulesetView
	enricher    NameEnricher
}

func NewService(store feedStore, rulesetView RulesetView, enricher NameEnricher) *Service {
	return &Service{store: store, rulesetView: rulesetView, enricher: enricher}
}

// clampLimit normalizes a requested page size to spec §4.8's [1,100] range,
// defaulting to DefaultLimit when unset.
func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > 100 {
		return 100
	}
	return limit
}

// Recent implements GET /killmails/recent: fetch a deeper page than asked
// for, apply the ruleset's shared predicate plus the request's own space
// class filter, trim to the requested limit, then enrich names for
// whatever survived.
func (s *Service) Recent(ctx context.Context, q Query) (RecentResponse, error) {
	limit := clampLimit(q.Limit)

	events, err := s.store.FetchRecent(ctx, limit*overfetchFactor)
	if err != nil {
		return RecentResponse{}, err
	}

	filtered := s.filterEvents(events, q)
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}

	items, err := s.buildItems(ctx, filtered)
	if err != nil {
		return RecentResponse{}, err
	}

	return RecentResponse{Items: items, Count: len(items)}, nil
}

// Cursor identifies a position in the event stream's (occurred_at,
// event_id) lexicographic ordering, per spec §4.8.
type Cursor struct {
	OccurredAt time.Time
	EventID    int64
}

// Snapshot seeds a new stream connection: the cursor is set to the newest
// event currently stored (or "now" if the table is empty, so a
// newly-connecting client never replays history it didn't ask for).
func (s *Service) Snapshot(ctx context.Context, q Query) (Cursor, error) {
	occurredAt, eventID, ok, err := s.store.FetchNewestCursor(ctx)
	if err != nil {
		return Cursor{}, err
	}
	if !ok {
		return Cursor{OccurredAt: time.Now().UTC()}, nil
	}
	return Cursor{OccurredAt: occurredAt, EventID: eventID}, nil
}

// pollBatch bounds how many raw rows a single poll tick reads from the
// store; large enough that a normal tick drains fully, small enough that a
// burst can't stall the stream loop for too long on one tick.
const pollBatch = 200

// Poll fetches events strictly newer than cursor, applies the request's
// filter, and returns the filtered items alongside the advanced cursor.
// The cursor advances over every raw event observed, not just the ones
// that survived filtering, so a client-side filter change (or ruleset
// update) never causes events to be replayed.
func (s *Service) Poll(ctx context.Context, cursor Cursor, q Query) ([]KillItem, Cursor, error) {
	events, err := s.store.FetchSince(ctx, cursor.OccurredAt, cursor.EventID, pollBatch)
	if err != nil {
		return nil, cursor, err
	}
	if len(events) == 0 {
		return nil, cursor, nil
	}

	next := cursor
	last := events[len(events)-1]
	next.OccurredAt = last.OccurredAt
	next.EventID = last.EventID

	filtered := s.filterEvents(events, q)
	items, err := s.buildItems(ctx, filtered)
	if err != nil {
		return nil, cursor, err
	}
	return items, next, nil
}

// filterEvents applies the ruleset's shared predicate (min pilots, tracked
// lists) plus the request's own space class containment, which the
// ruleset predicate doesn't know about.
func (s *Service) filterEvents(events []killmodels.Event, q Query) []killmodels.Event {
	current := s.rulesetView.Current()

	out := make([]killmodels.Event, 0, len(events))
	for _, e := range events {
		if !ruleset.Keep(current, e, q.SecurityClasses, q.TrackedOnly) {
			continue
		}
		if len(q.SpaceClasses) > 0 && !containsString(q.SpaceClasses, e.SpaceClass) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (s *Service) buildItems(ctx context.Context, events []killmodels.Event) ([]KillItem, error) {
	if len(events) == 0 {
		return nil, nil
	}
	names, err := s.enricher.Enrich(ctx, events)
	if err != nil {
		// Name resolution failing open: the feed still returns bare ids
		// rather than failing the whole request over an upstream name
		// lookup outage.
		names = nil
	}
	items := make([]KillItem, len(events))
	for i, e := range events {
		items[i] = buildItem(e, names)
	}
	return items, nil
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

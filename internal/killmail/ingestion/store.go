package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	killmodels "skirmish/internal/killmail/models"
)

// Store owns the events and enrichments tables' insert-time writes (the
// clusterer owns later updates to events' processed_at/battle_id, the
// enrichment worker owns later enrichment state changes). At-most-once insert is enforced by
// a natural-key conflict target, matching spec §7's PersistenceConflict
// policy: a conflict on the event's own identity is idempotent success,
// not an error.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// InsertEvent inserts the event row if it doesn't already exist and
// reports whether it was newly stored. A false return with a nil error
// means the event_id already existed — a duplicate, not a failure.
func (s *Store) InsertEvent(ctx context.Context, e killmodels.Event) (stored bool, err error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO events (
			event_id, system_id, occurred_at, space_class, security_class,
			victim_character_id, victim_corporation_id, victim_alliance_id, victim_ship_type_id,
			attacker_character_ids, attacker_corporation_ids, attacker_alliance_ids, attacker_ship_type_ids,
			isk_value, source_url, fetched_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT (event_id) DO NOTHING
	`,
		e.EventID, e.SystemID, e.OccurredAt, e.SpaceClass, e.SecurityClass,
		e.VictimCharacterID, e.VictimCorporationID, e.VictimAllianceID, e.VictimShipTypeID,
		e.AttackerCharacterIDs, e.AttackerCorporationIDs, e.AttackerAllianceIDs, e.AttackerShipTypeIDs,
		e.ISKValue, e.SourceURL, e.FetchedAt,
	)
	if err != nil {
		return false, fmt.Errorf("ingestion: failed to insert event: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// InsertPendingEnrichment creates the one-to-one enrichment row for a
// newly stored event, initialized to pending. Conflict is idempotent:
// ingestion never double-creates the row for an event it just deduped.
func (s *Store) InsertPendingEnrichment(ctx context.Context, eventID int64) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO enrichments (event_id, status, fetched_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, killmodels.EnrichmentPending, now)
	if err != nil {
		return fmt.Errorf("ingestion: failed to insert enrichment stub: %w", err)
	}
	return nil
}

// StalePendingEventIDs returns event IDs whose enrichment is still pending
// after olderThan has elapsed since it was last touched — candidates for
// C4's background resweep, in case a prior work item was lost.
func (s *Store) StalePendingEventIDs(ctx context.Context, olderThan time.Duration, limit int) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event_id FROM enrichments
		WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at
		LIMIT $3
	`, killmodels.EnrichmentPending, time.Now().UTC().Add(-olderThan), limit)
	if err != nil {
		return nil, fmt.Errorf("ingestion: failed to query stale enrichments: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ingestion: failed to scan stale enrichment row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

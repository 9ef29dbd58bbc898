package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	battlemodels "skirmish/internal/battle/models"
	killmodels "skirmish/internal/killmail/models"
)

// Store is the feed's read-only view over events and battles. Grounded on
// the teacher's zkillboard Repository.GetRecentKillmails query shape,
// widened to the cursor-based stream read and the battle detail join.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const eventColumns = `
	event_id, system_id, occurred_at, space_class, security_class,
	victim_character_id, victim_corporation_id, victim_alliance_id,
	attacker_character_ids, attacker_corporation_ids, attacker_alliance_ids,
	isk_value, source_url, fetched_at, processed_at, battle_id
`

func scanEvent(rows pgx.Rows) (killmodels.Event, error) {
	var e killmodels.Event
	err := rows.Scan(
		&e.EventID, &e.SystemID, &e.OccurredAt, &e.SpaceClass, &e.SecurityClass,
		&e.VictimCharacterID, &e.VictimCorporationID, &e.VictimAllianceID,
		&e.AttackerCharacterIDs, &e.AttackerCorporationIDs, &e.AttackerAllianceIDs,
		&e.ISKValue, &e.SourceURL, &e.FetchedAt, &e.ProcessedAt, &e.BattleID,
	)
	return e, err
}

// FetchRecent returns the newest limit events, ordered occurred_at DESC,
// event_id DESC per spec §4.8.
func (s *Store) FetchRecent(ctx context.Context, limit int) ([]killmodels.Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+eventColumns+`
		FROM events
		ORDER BY occurred_at DESC, event_id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("feed: failed to fetch recent events: %w", err)
	}
	defer rows.Close()

	var events []killmodels.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("feed: failed to scan event row: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// FetchNewestCursor returns the (occurred_at, event_id) of the newest event,
// used to seed a new stream connection. ok is false when the table is
// empty, in which case the caller seeds the cursor at "now" per spec §4.8.
func (s *Store) FetchNewestCursor(ctx context.Context) (occurredAt time.Time, eventID int64, ok bool, err error) {
	row := s.pool.QueryRow(ctx, `
		SELECT occurred_at, event_id FROM events
		ORDER BY occurred_at DESC, event_id DESC
		LIMIT 1
	`)
	if err := row.Scan(&occurredAt, &eventID); err != nil {
		if err == pgx.ErrNoRows {
			return time.Time{}, 0, false, nil
		}
		return time.Time{}, 0, false, fmt.Errorf("feed: failed to fetch newest cursor: %w", err)
	}
	return occurredAt, eventID, true, nil
}

// FetchSince returns events strictly newer than the (occurredAt, eventID)
// cursor, lexicographically, oldest first so the caller can advance the
// cursor to the true newest after applying its own filter.
func (s *Store) FetchSince(ctx context.Context, occurredAt time.Time, eventID int64, limit int) ([]killmodels.Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE (occurred_at, event_id) > ($1, $2)
		ORDER BY occurred_at ASC, event_id ASC
		LIMIT $3
	`, occurredAt, eventID, limit)
	if err != nil {
		return nil, fmt.Errorf("feed: failed to fetch events since cursor: %w", err)
	}
	defer rows.Close()

	var events []killmodels.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("feed: failed to scan event row: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// BattleDetail returns one battle with its attached events and
// participants, or ok=false if no battle with that id exists.
func (s *Store) BattleDetail(ctx context.Context, battleID string) (battle battlemodels.Battle, events []battlemodels.Event, participants []battlemodels.Participant, ok bool, err error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, system_id, space_class, start_time, end_time, total_kills, total_isk_destroyed, external_reference_url, created_at
		FROM battles WHERE id = $1
	`, battleID)
	var externalRef *string
	if err := row.Scan(
		&battle.ID, &battle.SystemID, &battle.SpaceClass, &battle.StartTime, &battle.EndTime,
		&battle.TotalKills, &battle.TotalISKDestroyed, &externalRef, &battle.CreatedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return battlemodels.Battle{}, nil, nil, false, nil
		}
		return battlemodels.Battle{}, nil, nil, false, fmt.Errorf("feed: failed to fetch battle: %w", err)
	}
	if externalRef != nil {
		battle.ExternalReferenceURL = *externalRef
	}

	eventRows, err := s.pool.Query(ctx, `
		SELECT battle_id, event_id, victim_alliance_id, attacker_alliance_ids, isk_value, occurred_at, side_id
		FROM battle_events WHERE battle_id = $1
		ORDER BY occurred_at
	`, battleID)
	if err != nil {
		return battlemodels.Battle{}, nil, nil, false, fmt.Errorf("feed: failed to fetch battle events: %w", err)
	}
	defer eventRows.Close()
	for eventRows.Next() {
		var be battlemodels.Event
		if err := eventRows.Scan(&be.BattleID, &be.EventID, &be.VictimAllianceID, &be.AttackerAllianceIDs, &be.ISKValue, &be.OccurredAt, &be.SideID); err != nil {
			return battlemodels.Battle{}, nil, nil, false, fmt.Errorf("feed: failed to scan battle event: %w", err)
		}
		events = append(events, be)
	}
	if err := eventRows.Err(); err != nil {
		return battlemodels.Battle{}, nil, nil, false, err
	}

	participantRows, err := s.pool.Query(ctx, `
		SELECT battle_id, character_id, alliance_id, corp_id, ship_type_id, side_id, is_victim
		FROM battle_participants WHERE battle_id = $1
	`, battleID)
	if err != nil {
		return battlemodels.Battle{}, nil, nil, false, fmt.Errorf("feed: failed to fetch battle participants: %w", err)
	}
	defer participantRows.Close()
	for participantRows.Next() {
		var p battlemodels.Participant
		if err := participantRows.Scan(&p.BattleID, &p.CharacterID, &p.AllianceID, &p.CorpID, &p.ShipTypeID, &p.SideID, &p.IsVictim); err != nil {
			return battlemodels.Battle{}, nil, nil, false, fmt.Errorf("feed: failed to scan battle participant: %w", err)
		}
		participants = append(participants, p)
	}
	return battle, events, participants, true, participantRows.Err()
}

// IngestionCounts summarizes the events table for the status endpoint.
type IngestionCounts struct {
	Total         int64
	Unprocessed   int64
	LastEventID   *int64
	LastOccurred  *time.Time
}

func (s *Store) IngestionCounts(ctx context.Context) (IngestionCounts, error) {
	var c IngestionCounts
	err := s.pool.QueryRow(ctx, `
		SELECT
			count(*),
			count(*) FILTER (WHERE processed_at IS NULL),
			max(event_id),
			max(occurred_at)
		FROM events
	`).Scan(&c.Total, &c.Unprocessed, &c.LastEventID, &c.LastOccurred)
	if err != nil {
		return IngestionCounts{}, fmt.Errorf("feed: failed to count ingestion status: %w", err)
	}
	return c, nil
}

// EnrichmentCounts summarizes the enrichments table by status.
type EnrichmentCounts struct {
	Pending         int64
	Succeeded       int64
	FailedTransient int64
	FailedPermanent int64
}

func (s *Store) EnrichmentCounts(ctx context.Context) (EnrichmentCounts, error) {
	var c EnrichmentCounts
	err := s.pool.QueryRow(ctx, `
		SELECT
			count(*) FILTER (WHERE status = $1),
			count(*) FILTER (WHERE status = $2),
			count(*) FILTER (WHERE status = $3),
			count(*) FILTER (WHERE status = $4)
		FROM enrichments
	`, killmodels.EnrichmentPending, killmodels.EnrichmentSucceeded, killmodels.EnrichmentFailedTransient, killmodels.EnrichmentFailedPermanent).
		Scan(&c.Pending, &c.Succeeded, &c.FailedTransient, &c.FailedPermanent)
	if err != nil {
		return EnrichmentCounts{}, fmt.Errorf("feed: failed to count enrichment status: %w", err)
	}
	return c, nil
}

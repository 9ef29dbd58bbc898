package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	battlemodels "skirmish/internal/battle/models"
	"skirmish/internal/clustering/engine"
	killmodels "skirmish/internal/killmail/models"
)

// Store owns the clusterer's batch read and the per-plan transactional
// commit. The tx-per-plan shape is grounded on pkg/migrations.Runner's
// tx-per-migration loop (pool.Begin / tx.Commit / tx.Rollback on error).
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// FetchBatch reads up to limit unprocessed events old enough to be past
// delay (late-arrival and in-flight-enrichment grace period), ordered by
// occurred_at per spec §4.7 step 1.
func (s *Store) FetchBatch(ctx context.Context, delay time.Duration, limit int) ([]killmodels.Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, system_id, occurred_at, space_class, security_class,
			victim_character_id, victim_corporation_id, victim_alliance_id, victim_ship_type_id,
			attacker_character_ids, attacker_corporation_ids, attacker_alliance_ids, attacker_ship_type_ids,
			isk_value, source_url, fetched_at
		FROM events
		WHERE processed_at IS NULL AND occurred_at <= $1
		ORDER BY occurred_at
		LIMIT $2
	`, time.Now().UTC().Add(-delay), limit)
	if err != nil {
		return nil, fmt.Errorf("clustering: failed to fetch batch: %w", err)
	}
	defer rows.Close()

	var events []killmodels.Event
	for rows.Next() {
		var e killmodels.Event
		if err := rows.Scan(
			&e.EventID, &e.SystemID, &e.OccurredAt, &e.SpaceClass, &e.SecurityClass,
			&e.VictimCharacterID, &e.VictimCorporationID, &e.VictimAllianceID, &e.VictimShipTypeID,
			&e.AttackerCharacterIDs, &e.AttackerCorporationIDs, &e.AttackerAllianceIDs, &e.AttackerShipTypeIDs,
			&e.ISKValue, &e.SourceURL, &e.FetchedAt,
		); err != nil {
			return nil, fmt.Errorf("clustering: failed to scan event row: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// PersistPlan commits one battle plan atomically: insert the battle, upsert
// its event attachments and participants, then mark every plan event
// processed and attached. Any failure rolls the whole plan back so the
// events stay processed_at IS NULL and are retried on the next tick.
func (s *Store) PersistPlan(ctx context.Context, plan engine.Plan) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("clustering: failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()

	if _, err := tx.Exec(ctx, `
		INSERT INTO battles (id, system_id, space_class, start_time, end_time, total_kills, total_isk_destroyed, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO NOTHING
	`, plan.Battle.ID, plan.Battle.SystemID, plan.Battle.SpaceClass, plan.Battle.StartTime, plan.Battle.EndTime,
		plan.Battle.TotalKills, plan.Battle.TotalISKDestroyed, now); err != nil {
		return fmt.Errorf("clustering: failed to insert battle: %w", err)
	}

	for _, be := range plan.Events {
		if _, err := tx.Exec(ctx, `
			INSERT INTO battle_events (battle_id, event_id, victim_alliance_id, attacker_alliance_ids, isk_value, occurred_at)
			VALUES ($1,$2,$3,$4,$5,$6)
			ON CONFLICT (battle_id, event_id) DO UPDATE SET
				victim_alliance_id = EXCLUDED.victim_alliance_id,
				attacker_alliance_ids = EXCLUDED.attacker_alliance_ids,
				isk_value = EXCLUDED.isk_value
		`, be.BattleID, be.EventID, be.VictimAllianceID, be.AttackerAllianceIDs, be.ISKValue, be.OccurredAt); err != nil {
			return fmt.Errorf("clustering: failed to upsert battle event %d: %w", be.EventID, err)
		}
	}

	for _, p := range plan.Participants {
		if _, err := tx.Exec(ctx, `
			INSERT INTO battle_participants (battle_id, character_id, alliance_id, corp_id, ship_type_id, is_victim)
			VALUES ($1,$2,$3,$4,$5,$6)
			ON CONFLICT (battle_id, character_id) DO UPDATE SET
				alliance_id = EXCLUDED.alliance_id,
				corp_id = EXCLUDED.corp_id,
				ship_type_id = EXCLUDED.ship_type_id,
				is_victim = EXCLUDED.is_victim
		`, p.BattleID, p.CharacterID, p.AllianceID, p.CorpID, p.ShipTypeID, p.IsVictim); err != nil {
			return fmt.Errorf("clustering: failed to upsert participant %d: %w", p.CharacterID, err)
		}
	}

	eventIDs := make([]int64, len(plan.Events))
	for i, be := range plan.Events {
		eventIDs[i] = be.EventID
	}
	if _, err := tx.Exec(ctx, `
		UPDATE events SET processed_at = $1, battle_id = $2 WHERE event_id = ANY($3)
	`, now, plan.Battle.ID, eventIDs); err != nil {
		return fmt.Errorf("clustering: failed to attach events to battle: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("clustering: failed to commit plan: %w", err)
	}
	return nil
}

// MarkIgnored marks events that fell below min_kills processed with no
// battle, in one statement, per spec §4.7 step 5.
func (s *Store) MarkIgnored(ctx context.Context, eventIDs []int64) error {
	if len(eventIDs) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE events SET processed_at = $1, battle_id = NULL WHERE event_id = ANY($2)
	`, time.Now().UTC(), eventIDs)
	if err != nil {
		return fmt.Errorf("clustering: failed to mark ignored events: %w", err)
	}
	return nil
}

// Recluster resets processed_at on every event in [from, to) and deletes
// battles whose window overlaps that range, atomically, so the next tick
// re-clusters them from scratch. Operator-initiated per spec §4.7.
func (s *Store) Recluster(ctx context.Context, from, to time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("clustering: failed to begin recluster tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT id FROM battles WHERE start_time < $2 AND end_time >= $1
	`, from, to)
	if err != nil {
		return fmt.Errorf("clustering: failed to select overlapping battles: %w", err)
	}
	var battleIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("clustering: failed to scan overlapping battle id: %w", err)
		}
		battleIDs = append(battleIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("clustering: failed to read overlapping battles: %w", err)
	}

	if len(battleIDs) > 0 {
		if _, err := tx.Exec(ctx, `
			DELETE FROM battle_participants WHERE battle_id = ANY($1)
		`, battleIDs); err != nil {
			return fmt.Errorf("clustering: failed to delete battle participants for recluster: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			DELETE FROM battle_events WHERE battle_id = ANY($1)
		`, battleIDs); err != nil {
			return fmt.Errorf("clustering: failed to delete battle events for recluster: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			DELETE FROM battles WHERE id = ANY($1)
		`, battleIDs); err != nil {
			return fmt.Errorf("clustering: failed to delete overlapping battles: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE events SET processed_at = NULL, battle_id = NULL
		WHERE occurred_at >= $1 AND occurred_at < $2
	`, from, to); err != nil {
		return fmt.Errorf("clustering: failed to reset events for recluster: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("clustering: failed to commit recluster: %w", err)
	}
	return nil
}

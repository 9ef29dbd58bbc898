package migrations

import (
	"context"

	"github.com/jackc/pgx/v5"
)

func init() {
	Register(Migration{
		Version:     "002_create_events",
		Description: "Create the events table and its clusterer/feed/aggregate indexes",
		Up:          up002,
		Down:        down002,
	})
}

func up002(ctx context.Context, tx pgx.Tx) error {
	if _, err := tx.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS events (
			event_id                 BIGINT PRIMARY KEY,
			system_id                BIGINT NOT NULL,
			occurred_at              TIMESTAMPTZ NOT NULL,
			space_class              TEXT NOT NULL,
			security_class           TEXT NOT NULL,
			victim_character_id      BIGINT,
			victim_corporation_id    BIGINT,
			victim_alliance_id       BIGINT,
			victim_ship_type_id      BIGINT,
			attacker_character_ids   BIGINT[] NOT NULL DEFAULT '{}',
			attacker_corporation_ids BIGINT[] NOT NULL DEFAULT '{}',
			attacker_alliance_ids    BIGINT[] NOT NULL DEFAULT '{}',
			attacker_ship_type_ids   BIGINT[] NOT NULL DEFAULT '{}',
			isk_value                BIGINT,
			source_url               TEXT NOT NULL,
			fetched_at               TIMESTAMPTZ NOT NULL,
			processed_at             TIMESTAMPTZ,
			battle_id                UUID
		)
	`); err != nil {
		return err
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_events_processed_occurred ON events (processed_at, occurred_at)`,
		`CREATE INDEX IF NOT EXISTS idx_events_occurred_event_desc ON events (occurred_at DESC, event_id DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_events_system_occurred ON events (system_id, occurred_at)`,
	}
	for _, stmt := range indexes {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func down002(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx, `DROP TABLE IF EXISTS events`)
	return err
}

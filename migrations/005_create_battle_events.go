package migrations

import (
	"context"

	"github.com/jackc/pgx/v5"
)

func init() {
	Register(Migration{
		Version:     "005_create_battle_events",
		Description: "Create the battle_events attachment table",
		Up:          up005,
		Down:        down005,
	})
}

func up005(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS battle_events (
			battle_id             UUID NOT NULL REFERENCES battles (id),
			event_id              BIGINT NOT NULL REFERENCES events (event_id),
			victim_alliance_id    BIGINT,
			attacker_alliance_ids BIGINT[] NOT NULL DEFAULT '{}',
			isk_value             BIGINT,
			occurred_at           TIMESTAMPTZ NOT NULL,
			side_id               INTEGER,
			PRIMARY KEY (battle_id, event_id)
		)
	`)
	return err
}

func down005(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx, `DROP TABLE IF EXISTS battle_events`)
	return err
}

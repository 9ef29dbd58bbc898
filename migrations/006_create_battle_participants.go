package migrations

import (
	"context"

	"github.com/jackc/pgx/v5"
)

func init() {
	Register(Migration{
		Version:     "006_create_battle_participants",
		Description: "Create the battle_participants table",
		Up:          up006,
		Down:        down006,
	})
}

func up006(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS battle_participants (
			battle_id     UUID NOT NULL REFERENCES battles (id),
			character_id  BIGINT NOT NULL,
			alliance_id   BIGINT,
			corp_id       BIGINT,
			ship_type_id  BIGINT,
			side_id       INTEGER,
			is_victim     BOOLEAN NOT NULL DEFAULT FALSE,
			PRIMARY KEY (battle_id, character_id)
		)
	`)
	return err
}

func down006(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx, `DROP TABLE IF EXISTS battle_participants`)
	return err
}

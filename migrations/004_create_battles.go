package migrations

import (
	"context"

	"github.com/jackc/pgx/v5"
)

func init() {
	Register(Migration{
		Version:     "004_create_battles",
		Description: "Create the battles table and its system/time index",
		Up:          up004,
		Down:        down004,
	})
}

func up004(ctx context.Context, tx pgx.Tx) error {
	if _, err := tx.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS battles (
			id                      UUID PRIMARY KEY,
			system_id               BIGINT NOT NULL,
			space_class             TEXT NOT NULL,
			start_time              TIMESTAMPTZ NOT NULL,
			end_time                TIMESTAMPTZ NOT NULL,
			total_kills             INTEGER NOT NULL,
			total_isk_destroyed     BIGINT NOT NULL,
			external_reference_url  TEXT,
			created_at              TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`); err != nil {
		return err
	}

	_, err := tx.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS idx_battles_system_start_end ON battles (system_id, start_time, end_time)
	`)
	return err
}

func down004(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx, `DROP TABLE IF EXISTS battles`)
	return err
}

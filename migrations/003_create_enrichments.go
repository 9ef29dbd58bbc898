package migrations

import (
	"context"

	"github.com/jackc/pgx/v5"
)

func init() {
	Register(Migration{
		Version:     "003_create_enrichments",
		Description: "Create the enrichments table and its retry-sweep index",
		Up:          up003,
		Down:        down003,
	})
}

func up003(ctx context.Context, tx pgx.Tx) error {
	if _, err := tx.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS enrichments (
			event_id   BIGINT PRIMARY KEY REFERENCES events (event_id),
			status     TEXT NOT NULL,
			payload    BYTEA,
			error      TEXT,
			fetched_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)
	`); err != nil {
		return err
	}

	_, err := tx.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS idx_enrichments_status_updated ON enrichments (status, updated_at)
	`)
	return err
}

func down003(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx, `DROP TABLE IF EXISTS enrichments`)
	return err
}

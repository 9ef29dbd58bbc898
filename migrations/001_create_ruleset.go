package migrations

import (
	"context"

	"github.com/jackc/pgx/v5"
)

func init() {
	Register(Migration{
		Version:     "001_create_ruleset",
		Description: "Create the single-row ruleset table",
		Up:          up001,
		Down:        down001,
	})
}

func up001(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS ruleset (
			id                       BOOLEAN PRIMARY KEY DEFAULT TRUE CHECK (id),
			min_pilots               INTEGER NOT NULL DEFAULT 1,
			tracked_alliance_ids     BIGINT[] NOT NULL DEFAULT '{}',
			tracked_corp_ids         BIGINT[] NOT NULL DEFAULT '{}',
			tracked_system_ids       BIGINT[] NOT NULL DEFAULT '{}',
			tracked_security_classes TEXT[] NOT NULL DEFAULT '{}',
			ignore_unlisted          BOOLEAN NOT NULL DEFAULT FALSE,
			updated_at               TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO ruleset (id) VALUES (TRUE) ON CONFLICT (id) DO NOTHING
	`)
	return err
}

func down001(ctx context.Context, tx pgx.Tx) error {
	_, err := tx.Exec(ctx, `DROP TABLE IF EXISTS ruleset`)
	return err
}

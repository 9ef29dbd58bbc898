package migrations

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Migration represents an applied database migration, recorded in the
// _migrations ledger table after its Up function commits.
type Migration struct {
	Version     string    // e.g. "001_create_events"
	Description string    // Human-readable description
	AppliedAt   time.Time // When the migration was applied
	Checksum    string    // SHA256 of version+description; recorded, never compared
}

// MigrationFunc applies or rolls back one migration inside an open transaction.
type MigrationFunc func(ctx context.Context, tx pgx.Tx) error

// RegisteredMigration holds migration metadata and functions
type RegisteredMigration struct {
	Version     string
	Description string
	Up          MigrationFunc
	Down        MigrationFunc // optional rollback
}

// Runner manages forward-only, numbered, transactional database migrations.
type Runner struct {
	pool       *pgxpool.Pool
	migrations []RegisteredMigration
}

// NewRunner creates a new migration runner bound to a pool.
func NewRunner(pool *pgxpool.Pool) *Runner {
	return &Runner{pool: pool}
}

// Register adds a migration to the runner. Migrations run in registration
// order, so callers must register them in ascending version order.
func (r *Runner) Register(migration RegisteredMigration) {
	r.migrations = append(r.migrations, migration)
}

// Run executes all pending migrations, each inside its own transaction.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.ensureLedger(ctx); err != nil {
		return fmt.Errorf("failed to create migrations ledger: %w", err)
	}

	applied, err := r.getAppliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	appliedMap := make(map[string]bool, len(applied))
	for _, m := range applied {
		appliedMap[m.Version] = true
	}

	for _, migration := range r.migrations {
		if appliedMap[migration.Version] {
			continue
		}

		fmt.Printf("running migration: %s - %s\n", migration.Version, migration.Description)

		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to start transaction for migration %s: %w", migration.Version, err)
		}

		if err := migration.Up(ctx, tx); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("migration %s failed: %w", migration.Version, err)
		}

		checksum := calculateChecksum(migration)
		if _, err := tx.Exec(ctx,
			`INSERT INTO _migrations (version, description, applied_at, checksum) VALUES ($1, $2, $3, $4)`,
			migration.Version, migration.Description, time.Now().UTC(), checksum,
		); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("failed to record migration %s: %w", migration.Version, err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", migration.Version, err)
		}

		fmt.Printf("migration %s completed\n", migration.Version)
	}

	return nil
}

// Rollback rolls back the last n applied migrations, in reverse order.
func (r *Runner) Rollback(ctx context.Context, steps int) error {
	applied, err := r.getAppliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	if steps > len(applied) {
		steps = len(applied)
	}

	migrationMap := make(map[string]RegisteredMigration, len(r.migrations))
	for _, m := range r.migrations {
		migrationMap[m.Version] = m
	}

	for i := len(applied) - 1; i >= len(applied)-steps; i-- {
		version := applied[i].Version
		migration, ok := migrationMap[version]
		if !ok {
			return fmt.Errorf("migration %s not found in registered migrations", version)
		}

		if migration.Down == nil {
			fmt.Printf("migration %s has no rollback function, skipping\n", version)
			continue
		}

		fmt.Printf("rolling back migration: %s\n", version)

		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to start transaction for rollback %s: %w", version, err)
		}

		if err := migration.Down(ctx, tx); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("rollback %s failed: %w", version, err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM _migrations WHERE version = $1`, version); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("failed to remove migration record %s: %w", version, err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit rollback %s: %w", version, err)
		}

		fmt.Printf("rollback %s completed\n", version)
	}

	return nil
}

// Status prints the applied/pending state of every registered migration.
func (r *Runner) Status(ctx context.Context) error {
	applied, err := r.getAppliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	appliedMap := make(map[string]Migration, len(applied))
	for _, m := range applied {
		appliedMap[m.Version] = m
	}

	fmt.Println("\nmigration status:")
	fmt.Println(strings.Repeat("=", 80))

	for _, migration := range r.migrations {
		status := "pending"
		appliedAt := ""

		if a, ok := appliedMap[migration.Version]; ok {
			status = "applied"
			appliedAt = fmt.Sprintf(" (at %s)", a.AppliedAt.Format("2006-01-02 15:04:05"))
		}

		fmt.Printf("[%s] %s - %s%s\n", status, migration.Version, migration.Description, appliedAt)
	}

	fmt.Printf("\ntotal: %d migrations (%d applied, %d pending)\n",
		len(r.migrations), len(applied), len(r.migrations)-len(applied))

	return nil
}

func (r *Runner) ensureLedger(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS _migrations (
			version     TEXT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  TIMESTAMPTZ NOT NULL,
			checksum    TEXT NOT NULL
		)
	`)
	return err
}

func (r *Runner) getAppliedMigrations(ctx context.Context) ([]Migration, error) {
	rows, err := r.pool.Query(ctx, `SELECT version, description, applied_at, checksum FROM _migrations ORDER BY version ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var migrations []Migration
	for rows.Next() {
		var m Migration
		if err := rows.Scan(&m.Version, &m.Description, &m.AppliedAt, &m.Checksum); err != nil {
			return nil, err
		}
		migrations = append(migrations, m)
	}
	return migrations, rows.Err()
}

// calculateChecksum hashes a migration's version and description for the
// ledger's checksum column; it does not hash function bodies. Run writes the
// value but does not compare it against already-applied rows, so a
// description that changed after application goes undetected.
func calculateChecksum(migration RegisteredMigration) string {
	sum := sha256.Sum256([]byte(migration.Version + ":" + migration.Description))
	return hex.EncodeToString(sum[:])
}

package database

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres wraps a pooled connection to the relational store backing
// events, enrichments, battles, battle_events, battle_participants and
// the ruleset singleton.
type Postgres struct {
	Pool *pgxpool.Pool
}

// NewPostgres connects to Postgres using DATABASE_URL (or a local default)
// and verifies connectivity with a bounded ping.
func NewPostgres(ctx context.Context) (*Postgres, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		dsn = "postgres://localhost:5432/skirmish?sslmode=disable"
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	slog.Info("connected to postgres", "host", cfg.ConnConfig.Host, "database", cfg.ConnConfig.Database)

	return &Postgres{Pool: pool}, nil
}

func (p *Postgres) Close(_ context.Context) error {
	p.Pool.Close()
	return nil
}

// HealthCheck verifies the pool can still reach the server within a bounded
// deadline. Callers use this to decide whether to exit with code 2 (lost
// store connectivity).
func (p *Postgres) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return p.Pool.Ping(ctx)
}

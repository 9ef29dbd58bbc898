package enrichment

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	killmodels "skirmish/internal/killmail/models"
)

// Store owns the enrichments table's post-insert transitions. Ingestion's
// Store owns the row's creation (pending, at event-insert time); this
// Store only ever moves it forward.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// StatusAndSourceURL reads the current status alongside the event's
// source_url, letting the worker decide before fetching whether this work
// item is still actionable — the read half of the idempotency guarantee.
func (s *Store) StatusAndSourceURL(ctx context.Context, eventID int64) (status, sourceURL string, err error) {
	err = s.pool.QueryRow(ctx, `
		SELECT en.status, ev.source_url
		FROM enrichments en
		JOIN events ev ON ev.event_id = en.event_id
		WHERE en.event_id = $1
	`, eventID).Scan(&status, &sourceURL)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", "", fmt.Errorf("enrichment: no enrichment row for event %d: %w", eventID, err)
		}
		return "", "", fmt.Errorf("enrichment: failed to read status for event %d: %w", eventID, err)
	}
	return status, sourceURL, nil
}

// MarkSucceeded records the full payload and advances status to succeeded.
// A terminal-status guard keeps a duplicate work item from clobbering an
// already-succeeded payload with a second, possibly different, fetch.
func (s *Store) MarkSucceeded(ctx context.Context, eventID int64, payload []byte) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE enrichments
		SET status = $2, payload = $3, error = NULL, updated_at = $4
		WHERE event_id = $1 AND status != $2
	`, eventID, killmodels.EnrichmentSucceeded, payload, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("enrichment: failed to mark event %d succeeded: %w", eventID, err)
	}
	return nil
}

// MarkFailedTransient records the error and leaves the row eligible for
// the resweep's retry. Guarded against overwriting a terminal status.
func (s *Store) MarkFailedTransient(ctx context.Context, eventID int64, reason string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE enrichments
		SET status = $2, error = $3, updated_at = $4
		WHERE event_id = $1 AND status NOT IN ($5, $6)
	`, eventID, killmodels.EnrichmentFailedTransient, reason, time.Now().UTC(),
		killmodels.EnrichmentSucceeded, killmodels.EnrichmentFailedPermanent)
	if err != nil {
		return fmt.Errorf("enrichment: failed to mark event %d failed_transient: %w", eventID, err)
	}
	return nil
}

// MarkFailedPermanent terminally fails the row; nothing retries it again.
func (s *Store) MarkFailedPermanent(ctx context.Context, eventID int64, reason string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE enrichments
		SET status = $2, error = $3, updated_at = $4
		WHERE event_id = $1 AND status != $5
	`, eventID, killmodels.EnrichmentFailedPermanent, reason, time.Now().UTC(), killmodels.EnrichmentSucceeded)
	if err != nil {
		return fmt.Errorf("enrichment: failed to mark event %d failed_permanent: %w", eventID, err)
	}
	return nil
}

// StaleTransientEventIDs returns failed_transient rows whose last
// transition is older than olderThan, requeuing them to pending and
// returning their IDs atomically so the caller can re-emit each as a work
// item. Using UPDATE ... RETURNING keeps the claim-and-requeue step a
// single round trip, matching ingestion.Store.StalePendingEventIDs'
// resweep shape.
func (s *Store) StaleTransientEventIDs(ctx context.Context, olderThan time.Duration, limit int) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE enrichments
		SET status = $1, updated_at = $2
		WHERE event_id IN (
			SELECT event_id FROM enrichments
			WHERE status = $3 AND updated_at < $4
			ORDER BY updated_at
			LIMIT $5
		)
		RETURNING event_id
	`, killmodels.EnrichmentPending, time.Now().UTC(), killmodels.EnrichmentFailedTransient,
		time.Now().UTC().Add(-olderThan), limit)
	if err != nil {
		return nil, fmt.Errorf("enrichment: failed to requeue stale transient rows: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("enrichment: failed to scan requeued event id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Package history provides a PostgreSQL-backed audit log of generation jobs.
// Each launched job gets one row that is stamped with its terminal outcome
// when polling ends. The log is write-mostly; it exists for operators asking
// "what happened to job X" after the fact, not for driving polling itself.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vidforge/vidforge/internal/poll"
	"github.com/vidforge/vidforge/pkg/provider/video"
)

// Record is one job's audit row.
type Record struct {
	ID         uuid.UUID
	Provider   string
	JobID      string
	Kind       video.ResultKind
	Prompt     string
	Status     string
	AssetURL   string
	Reason     string
	Attempts   int
	StartedAt  time.Time
	FinishedAt time.Time // zero while the job is in flight
}

// Store writes and reads job audit rows. It implements [poll.Recorder].
// All operations are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// Compile-time interface check.
var _ poll.Recorder = (*Store)(nil)

// NewStore establishes a connection pool to the PostgreSQL database at dsn
// and runs [Migrate] to ensure the jobs table exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("history store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("history store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases all connections held by the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping probes the database connection. Used by readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// JobStarted implements [poll.Recorder]. It inserts a row in the "RUNNING"
// state for the given handle.
func (s *Store) JobStarted(ctx context.Context, handle video.JobHandle, prompt string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO generation_jobs (id, provider, job_id, kind, prompt, status, started_at)
		VALUES ($1, $2, $3, $4, $5, 'RUNNING', now())`,
		uuid.New(), handle.Provider, handle.ID, string(handle.Kind), prompt,
	)
	if err != nil {
		return fmt.Errorf("history store: insert job %s: %w", handle.Key(), err)
	}
	return nil
}

// JobFinished implements [poll.Recorder]. It stamps the most recent row for
// the handle with the terminal outcome.
func (s *Store) JobFinished(ctx context.Context, handle video.JobHandle, outcome poll.Outcome) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE generation_jobs
		SET status = $1, asset_url = $2, reason = $3, attempts = $4, finished_at = now()
		WHERE id = (
			SELECT id FROM generation_jobs
			WHERE provider = $5 AND job_id = $6 AND finished_at IS NULL
			ORDER BY started_at DESC
			LIMIT 1
		)`,
		outcome.Status, outcome.AssetURL, outcome.Reason, outcome.Attempts,
		handle.Provider, handle.ID,
	)
	if err != nil {
		return fmt.Errorf("history store: finish job %s: %w", handle.Key(), err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("history store: finish job %s: no open row", handle.Key())
	}
	return nil
}

// Recent returns the most recently started jobs, newest first, up to limit.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, provider, job_id, kind, prompt, status, asset_url, reason,
		       attempts, started_at, COALESCE(finished_at, 'epoch'::timestamptz)
		FROM generation_jobs
		ORDER BY started_at DESC
		LIMIT $1`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("history store: query recent: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r    Record
			kind string
		)
		if err := rows.Scan(&r.ID, &r.Provider, &r.JobID, &kind, &r.Prompt,
			&r.Status, &r.AssetURL, &r.Reason, &r.Attempts, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("history store: scan row: %w", err)
		}
		r.Kind = video.ResultKind(kind)
		if r.FinishedAt.Unix() == 0 {
			r.FinishedAt = time.Time{}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history store: iterate rows: %w", err)
	}
	return out, nil
}

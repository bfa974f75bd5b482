package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlGenerationJobs = `
CREATE TABLE IF NOT EXISTS generation_jobs (
    id          UUID         PRIMARY KEY,
    provider    TEXT         NOT NULL,
    job_id      TEXT         NOT NULL,
    kind        TEXT         NOT NULL,
    prompt      TEXT         NOT NULL DEFAULT '',
    status      TEXT         NOT NULL,
    asset_url   TEXT         NOT NULL DEFAULT '',
    reason      TEXT         NOT NULL DEFAULT '',
    attempts    INT          NOT NULL DEFAULT 0,
    started_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    finished_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_generation_jobs_provider_job
    ON generation_jobs (provider, job_id);

CREATE INDEX IF NOT EXISTS idx_generation_jobs_started_at
    ON generation_jobs (started_at);
`

// Migrate ensures the jobs table and its indexes exist. Idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlGenerationJobs); err != nil {
		return fmt.Errorf("history migrate: %w", err)
	}
	return nil
}

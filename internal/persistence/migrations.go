package persistence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS termination_runs (
		run_id          UUID PRIMARY KEY,
		ticket_id       TEXT NOT NULL,
		employee_email  TEXT NOT NULL DEFAULT '',
		employee_state  TEXT NOT NULL,
		manager_email   TEXT NOT NULL DEFAULT '',
		manager_state   TEXT NOT NULL,
		overall_success BOOLEAN NOT NULL,
		started_at      TIMESTAMPTZ NOT NULL,
		duration_ms     BIGINT NOT NULL DEFAULT 0,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_termination_runs_ticket
		ON termination_runs (ticket_id)`,
	`CREATE TABLE IF NOT EXISTS termination_run_phases (
		id                BIGSERIAL PRIMARY KEY,
		run_id            UUID NOT NULL REFERENCES termination_runs(run_id) ON DELETE CASCADE,
		phase             TEXT NOT NULL,
		position          INT NOT NULL,
		succeeded         BOOLEAN NOT NULL,
		skipped           BOOLEAN NOT NULL,
		actions_completed TEXT[] NOT NULL DEFAULT '{}',
		actions_failed    TEXT[] NOT NULL DEFAULT '{}',
		errors            TEXT[] NOT NULL DEFAULT '{}',
		warnings          TEXT[] NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_termination_run_phases_run
		ON termination_run_phases (run_id)`,
}

// RunMigrations applies the schema statements in order. Statements are
// idempotent, so re-running on startup is safe.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return nil
	}
	for i, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}

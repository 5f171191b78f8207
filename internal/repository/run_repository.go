package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/spec-kit/lifecycle-service/internal/domain"
)

// RunRepository records completed termination runs for the operator portal.
type RunRepository interface {
	SaveOutcome(ctx context.Context, outcome *domain.TerminationOutcome) error
	ListRecent(ctx context.Context, limit int) ([]*domain.TerminationOutcome, error)
}

// PostgresRunRepository persists run history in Postgres.
type PostgresRunRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresRunRepository builds the repository over a pool.
func NewPostgresRunRepository(pool *pgxpool.Pool, logger *zap.Logger) *PostgresRunRepository {
	return &PostgresRunRepository{pool: pool, logger: logger}
}

// SaveOutcome inserts the run row and one row per phase, in one transaction.
func (r *PostgresRunRepository) SaveOutcome(ctx context.Context, outcome *domain.TerminationOutcome) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO termination_runs
			(run_id, ticket_id, employee_email, employee_state, manager_email, manager_state,
			 overall_success, started_at, duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		outcome.RunID,
		outcome.TicketID,
		outcome.EmployeeIdentity.Email(),
		string(outcome.EmployeeIdentity.State),
		outcome.ManagerIdentity.Email(),
		string(outcome.ManagerIdentity.State),
		outcome.OverallSuccess,
		outcome.StartedAt,
		outcome.Duration.Milliseconds(),
	)
	if err != nil {
		return err
	}

	for position, name := range outcome.PhaseOrder {
		result, ok := outcome.PerPhase[name]
		if !ok {
			continue
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO termination_run_phases
				(run_id, phase, position, succeeded, skipped,
				 actions_completed, actions_failed, errors, warnings)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			outcome.RunID,
			string(name),
			position,
			result.Succeeded,
			result.Skipped,
			result.ActionsCompleted,
			result.ActionsFailed,
			result.Errors,
			result.Warnings,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// ListRecent returns the most recent runs with their phase results.
func (r *PostgresRunRepository) ListRecent(ctx context.Context, limit int) ([]*domain.TerminationOutcome, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx,
		`SELECT run_id, ticket_id, employee_email, employee_state,
		        manager_email, manager_state, overall_success, started_at, duration_ms
		 FROM termination_runs
		 ORDER BY started_at DESC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outcomes []*domain.TerminationOutcome
	byID := map[string]*domain.TerminationOutcome{}
	for rows.Next() {
		var (
			outcome    domain.TerminationOutcome
			empEmail   string
			empState   string
			mgrEmail   string
			mgrState   string
			durationMS int64
		)
		if err := rows.Scan(&outcome.RunID, &outcome.TicketID, &empEmail, &empState,
			&mgrEmail, &mgrState, &outcome.OverallSuccess, &outcome.StartedAt, &durationMS); err != nil {
			return nil, err
		}
		outcome.EmployeeIdentity = domain.CanonicalIdentity{Value: empEmail, State: domain.ResolutionState(empState)}
		outcome.ManagerIdentity = domain.CanonicalIdentity{Value: mgrEmail, State: domain.ResolutionState(mgrState)}
		outcome.Duration = time.Duration(durationMS) * time.Millisecond
		outcome.PerPhase = map[domain.PhaseName]*domain.PhaseResult{}
		outcomes = append(outcomes, &outcome)
		byID[outcome.RunID] = &outcome
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(outcomes) == 0 {
		return outcomes, nil
	}

	ids := make([]string, 0, len(outcomes))
	for _, outcome := range outcomes {
		ids = append(ids, outcome.RunID)
	}
	phaseRows, err := r.pool.Query(ctx,
		`SELECT run_id, phase, position, succeeded, skipped,
		        actions_completed, actions_failed, errors, warnings
		 FROM termination_run_phases
		 WHERE run_id = ANY($1)
		 ORDER BY run_id, position`, ids)
	if err != nil {
		return nil, err
	}
	defer phaseRows.Close()

	for phaseRows.Next() {
		var (
			runID  string
			phase  string
			pos    int
			result domain.PhaseResult
		)
		if err := phaseRows.Scan(&runID, &phase, &pos, &result.Succeeded, &result.Skipped,
			&result.ActionsCompleted, &result.ActionsFailed, &result.Errors, &result.Warnings); err != nil {
			return nil, err
		}
		result.Phase = domain.PhaseName(phase)
		outcome, ok := byID[runID]
		if !ok {
			continue
		}
		outcome.PhaseOrder = append(outcome.PhaseOrder, result.Phase)
		outcome.PerPhase[result.Phase] = &result
	}
	return outcomes, phaseRows.Err()
}

// MemoryRunRepository keeps run history in memory. It backs the portal when
// no Postgres DSN is configured.
type MemoryRunRepository struct {
	mu       sync.RWMutex
	outcomes []*domain.TerminationOutcome
}

// NewMemoryRunRepository builds an empty in-memory repository.
func NewMemoryRunRepository() *MemoryRunRepository {
	return &MemoryRunRepository{}
}

// SaveOutcome appends the outcome.
func (r *MemoryRunRepository) SaveOutcome(_ context.Context, outcome *domain.TerminationOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
	return nil
}

// ListRecent returns up to limit outcomes, newest first.
func (r *MemoryRunRepository) ListRecent(_ context.Context, limit int) ([]*domain.TerminationOutcome, error) {
	if limit <= 0 {
		limit = 50
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	sorted := make([]*domain.TerminationOutcome, len(r.outcomes))
	copy(sorted, r.outcomes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartedAt.After(sorted[j].StartedAt) })
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted, nil
}

var (
	_ RunRepository = (*PostgresRunRepository)(nil)
	_ RunRepository = (*MemoryRunRepository)(nil)
)

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/talentsift/talentsift/internal/core/domain"
)

type RunRepository struct {
	db *sql.DB
}

func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

func (r *RunRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082902)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS pipeline_runs (
	id TEXT PRIMARY KEY,
	candidate_id TEXT NOT NULL,
	stage TEXT NOT NULL,
	state TEXT NOT NULL,
	attempts INT NOT NULL DEFAULT 0,
	condition JSONB NOT NULL DEFAULT '{}'::jsonb,
	error_stage TEXT NOT NULL DEFAULT '',
	last_error TEXT NOT NULL DEFAULT '',
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_pipeline_runs_candidate ON pipeline_runs(candidate_id);
CREATE INDEX IF NOT EXISTS idx_pipeline_runs_state ON pipeline_runs(state);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *RunRepository) Create(ctx context.Context, run *domain.PipelineRun) error {
	condJSON, err := json.Marshal(run.Condition)
	if err != nil {
		return fmt.Errorf("marshal condition: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO pipeline_runs (id, candidate_id, stage, state, attempts, condition, error_stage, last_error, started_at, finished_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`,
		run.ID, run.CandidateID, string(run.Stage), string(run.State), run.Attempts, condJSON,
		string(run.ErrorStage), run.LastError, run.StartedAt, nullableTime(run.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (r *RunRepository) GetByID(ctx context.Context, id string) (*domain.PipelineRun, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, candidate_id, stage, state, attempts, condition, error_stage, last_error, started_at, finished_at
FROM pipeline_runs
WHERE id = $1
`, id)

	var run domain.PipelineRun
	var condRaw []byte
	var stage, state, errorStage string
	var finishedAt sql.NullTime

	err := row.Scan(
		&run.ID, &run.CandidateID, &stage, &state, &run.Attempts,
		&condRaw, &errorStage, &run.LastError, &run.StartedAt, &finishedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get run", err)
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}

	if len(condRaw) > 0 {
		if err := json.Unmarshal(condRaw, &run.Condition); err != nil {
			return nil, fmt.Errorf("unmarshal condition: %w", err)
		}
	}
	run.Stage = domain.Stage(stage)
	run.State = domain.RunState(state)
	run.ErrorStage = domain.Stage(errorStage)
	if finishedAt.Valid {
		run.FinishedAt = finishedAt.Time
	}
	return &run, nil
}

func (r *RunRepository) Update(ctx context.Context, run *domain.PipelineRun) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE pipeline_runs
SET stage = $2, state = $3, attempts = $4, error_stage = $5, last_error = $6, finished_at = $7
WHERE id = $1
`,
		run.ID, string(run.Stage), string(run.State), run.Attempts,
		string(run.ErrorStage), run.LastError, nullableTime(run.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

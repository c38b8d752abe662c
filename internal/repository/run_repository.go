// internal/repository/run_repository.go
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// RunStatus represents the state of a single pipeline stage execution.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// PipelineRun is the audit record for one BI stage executed for one day.
type PipelineRun struct {
	ID           uuid.UUID  `db:"id"`
	Stage        string     `db:"stage"`
	Day          time.Time  `db:"day"`
	Status       RunStatus  `db:"status"`
	StartedAt    time.Time  `db:"started_at"`
	CompletedAt  *time.Time `db:"completed_at"`
	ErrorMessage string     `db:"error_message"`
}

type RunRepository interface {
	Create(ctx context.Context, run *PipelineRun) error
	Update(ctx context.Context, run *PipelineRun) error
	ListForDay(ctx context.Context, day time.Time) ([]PipelineRun, error)
}

type runRepository struct {
	db *sqlx.DB
}

func NewRunRepository(db *sqlx.DB) RunRepository {
	return &runRepository{db: db}
}

func (r *runRepository) Create(ctx context.Context, run *PipelineRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}

	query := `
		INSERT INTO bi_pipeline_runs (id, stage, day, status, started_at, completed_at, error_message)
		VALUES (:id, :stage, :day, :status, :started_at, :completed_at, :error_message)
	`

	if _, err := r.db.NamedExecContext(ctx, query, run); err != nil {
		return fmt.Errorf("error creating pipeline run: %w", err)
	}
	return nil
}

func (r *runRepository) Update(ctx context.Context, run *PipelineRun) error {
	query := `
		UPDATE bi_pipeline_runs
		SET status = :status, completed_at = :completed_at, error_message = :error_message
		WHERE id = :id
	`

	if _, err := r.db.NamedExecContext(ctx, query, run); err != nil {
		return fmt.Errorf("error updating pipeline run: %w", err)
	}
	return nil
}

func (r *runRepository) ListForDay(ctx context.Context, day time.Time) ([]PipelineRun, error) {
	query := `
		SELECT id, stage, day, status, started_at, completed_at, error_message
		FROM bi_pipeline_runs
		WHERE day = $1
		ORDER BY started_at
	`

	var runs []PipelineRun
	if err := r.db.SelectContext(ctx, &runs, query, asDay(day)); err != nil {
		return nil, fmt.Errorf("error listing pipeline runs: %w", err)
	}
	return runs, nil
}

package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/insightloop/catalog-engine/pkg/apperrors"
	"github.com/insightloop/catalog-engine/pkg/models"
)

// JobStatusUpdate carries the optional fields of one status transition.
// Nil fields leave the corresponding column untouched.
type JobStatusUpdate struct {
	Status       models.JobStatus
	CurrentStep  *string
	StepIndex    *int
	ErrorMessage *string
}

// JobRepository provides data access for pipeline jobs.
type JobRepository interface {
	Create(ctx context.Context, job *models.Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
	List(ctx context.Context, limit int) ([]models.Job, error)
	ListByRun(ctx context.Context, runID uuid.UUID) ([]models.Job, error)
	LatestRunID(ctx context.Context, jobType models.JobType) (uuid.UUID, error)

	// UpdateStatus applies one state transition and returns the updated row.
	// Progress is recomputed in the store from total_steps when a step index
	// is supplied, and completed_at is stamped exactly once on the first
	// transition into a terminal status.
	UpdateStatus(ctx context.Context, id uuid.UUID, update JobStatusUpdate) (*models.Job, error)

	UpdateResult(ctx context.Context, id uuid.UUID, result json.RawMessage) error

	// ResetForRetry returns the job to pending with cleared progress and a
	// fresh started_at. It refuses jobs that are currently running.
	ResetForRetry(ctx context.Context, id uuid.UUID) (*models.Job, error)
}

type jobRepository struct {
	db DB
}

// NewJobRepository creates a new JobRepository.
func NewJobRepository(db DB) JobRepository {
	return &jobRepository{db: db}
}

var _ JobRepository = (*jobRepository)(nil)

const jobColumns = `id, job_type, run_id, status, total_steps, current_step, step_index,
	       progress, error_message, details, result, started_at, completed_at`

func (r *jobRepository) Create(ctx context.Context, job *models.Job) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}
	if job.StartedAt.IsZero() {
		job.StartedAt = time.Now()
	}

	query := `
		INSERT INTO catalog_jobs (
			id, job_type, run_id, status, total_steps,
			details, started_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.Exec(ctx, query,
		job.ID, job.JobType, job.RunID, job.Status, job.TotalSteps,
		job.Details, job.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

func (r *jobRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM catalog_jobs
		WHERE id = $1`

	row := r.db.QueryRow(ctx, query, id)
	return scanJobRow(row)
}

func (r *jobRepository) List(ctx context.Context, limit int) ([]models.Job, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT ` + jobColumns + `
		FROM catalog_jobs
		ORDER BY started_at DESC
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	return scanJobRows(rows)
}

func (r *jobRepository) ListByRun(ctx context.Context, runID uuid.UUID) ([]models.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM catalog_jobs
		WHERE run_id = $1
		ORDER BY started_at ASC`

	rows, err := r.db.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs for run: %w", err)
	}
	defer rows.Close()

	return scanJobRows(rows)
}

func (r *jobRepository) LatestRunID(ctx context.Context, jobType models.JobType) (uuid.UUID, error) {
	query := `
		SELECT run_id
		FROM catalog_jobs
		WHERE job_type = $1
		ORDER BY started_at DESC
		LIMIT 1`

	var runID uuid.UUID
	err := r.db.QueryRow(ctx, query, jobType).Scan(&runID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, apperrors.ErrNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to get latest run id: %w", err)
	}

	return runID, nil
}

func (r *jobRepository) UpdateStatus(ctx context.Context, id uuid.UUID, update JobStatusUpdate) (*models.Job, error) {
	// Progress derives from total_steps read at update time; a zero total
	// guards to 0. completed_at only moves NULL -> now() so a repeated
	// terminal transition is a no-op.
	query := `
		UPDATE catalog_jobs
		SET status = $2,
		    current_step = COALESCE($3, current_step),
		    step_index = COALESCE($4, step_index),
		    progress = CASE
		        WHEN $4::int IS NULL THEN progress
		        WHEN total_steps <= 0 THEN 0
		        ELSE LEAST(100, ($4::int + 1) * 100 / total_steps)
		    END,
		    error_message = COALESCE($5, error_message),
		    completed_at = CASE
		        WHEN $2 IN ('completed', 'failed') THEN COALESCE(completed_at, now())
		        ELSE completed_at
		    END
		WHERE id = $1
		RETURNING ` + jobColumns

	row := r.db.QueryRow(ctx, query, id, update.Status, update.CurrentStep, update.StepIndex, update.ErrorMessage)
	return scanJobRow(row)
}

func (r *jobRepository) UpdateResult(ctx context.Context, id uuid.UUID, result json.RawMessage) error {
	query := `
		UPDATE catalog_jobs
		SET result = $2
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, result)
	if err != nil {
		return fmt.Errorf("failed to update job result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

func (r *jobRepository) ResetForRetry(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	// The status guard is the retry precondition: a running job must not be
	// reset underneath its owning pipeline run.
	query := `
		UPDATE catalog_jobs
		SET status = 'pending',
		    current_step = NULL,
		    step_index = NULL,
		    progress = 0,
		    error_message = NULL,
		    result = NULL,
		    started_at = now(),
		    completed_at = NULL
		WHERE id = $1 AND status <> 'running'
		RETURNING ` + jobColumns

	row := r.db.QueryRow(ctx, query, id)
	job, err := scanJobRow(row)
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	// Distinguish a missing job from a running one.
	existing, getErr := r.GetByID(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if existing.Status == models.JobStatusRunning {
		return nil, apperrors.ErrJobRunning
	}
	return nil, apperrors.ErrNotFound
}

// ============================================================================
// Scan helpers
// ============================================================================

func scanJobRow(row pgx.Row) (*models.Job, error) {
	var job models.Job
	err := row.Scan(
		&job.ID, &job.JobType, &job.RunID, &job.Status, &job.TotalSteps,
		&job.CurrentStep, &job.StepIndex, &job.Progress, &job.ErrorMessage,
		&job.Details, &job.Result, &job.StartedAt, &job.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}
	return &job, nil
}

func scanJobRows(rows pgx.Rows) ([]models.Job, error) {
	var jobs []models.Job
	for rows.Next() {
		var job models.Job
		if err := rows.Scan(
			&job.ID, &job.JobType, &job.RunID, &job.Status, &job.TotalSteps,
			&job.CurrentStep, &job.StepIndex, &job.Progress, &job.ErrorMessage,
			&job.Details, &job.Result, &job.StartedAt, &job.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate jobs: %w", err)
	}
	return jobs, nil
}

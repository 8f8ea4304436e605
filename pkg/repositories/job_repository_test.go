package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightloop/catalog-engine/pkg/apperrors"
	"github.com/insightloop/catalog-engine/pkg/models"
)

var jobRowColumns = []string{
	"id", "job_type", "run_id", "status", "total_steps", "current_step", "step_index",
	"progress", "error_message", "details", "result", "started_at", "completed_at",
}

func jobRow(id uuid.UUID, status models.JobStatus) *pgxmock.Rows {
	return pgxmock.NewRows(jobRowColumns).AddRow(
		id, models.JobTypeEnrichment, uuid.New(), status, 8, (*string)(nil), (*int)(nil),
		0, (*string)(nil), []byte(nil), []byte(nil), time.Now(), (*time.Time)(nil),
	)
}

func TestJobRepository_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewJobRepository(mock)

	mock.ExpectExec("INSERT INTO catalog_jobs").
		WithArgs(pgxmock.AnyArg(), models.JobTypeExtraction, pgxmock.AnyArg(),
			models.JobStatusPending, 2, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	job := &models.Job{
		JobType:    models.JobTypeExtraction,
		RunID:      uuid.New(),
		TotalSteps: 2,
	}
	require.NoError(t, repo.Create(context.Background(), job))

	assert.NotEqual(t, uuid.Nil, job.ID, "create must assign an id")
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.False(t, job.StartedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepository_GetByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewJobRepository(mock)
	id := uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM catalog_jobs").
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err = repo.GetByID(context.Background(), id)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepository_UpdateStatus_ReturnsUpdatedRow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewJobRepository(mock)
	id := uuid.New()
	step := "fetch_context"
	stepIndex := 1

	mock.ExpectQuery("UPDATE catalog_jobs").
		WithArgs(id, models.JobStatusRunning, &step, &stepIndex, (*string)(nil)).
		WillReturnRows(jobRow(id, models.JobStatusRunning))

	job, err := repo.UpdateStatus(context.Background(), id, JobStatusUpdate{
		Status:      models.JobStatusRunning,
		CurrentStep: &step,
		StepIndex:   &stepIndex,
	})
	require.NoError(t, err)
	assert.Equal(t, id, job.ID)
	assert.Equal(t, models.JobStatusRunning, job.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepository_UpdateResult_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewJobRepository(mock)
	id := uuid.New()

	mock.ExpectExec("UPDATE catalog_jobs").
		WithArgs(id, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = repo.UpdateResult(context.Background(), id, []byte(`{"tables":3}`))
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepository_ResetForRetry_RefusesRunningJob(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewJobRepository(mock)
	id := uuid.New()

	// The guarded UPDATE matches no row, so the repository disambiguates by
	// re-reading the job.
	mock.ExpectQuery("UPDATE catalog_jobs").
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT (.+) FROM catalog_jobs").
		WithArgs(id).
		WillReturnRows(jobRow(id, models.JobStatusRunning))

	_, err = repo.ResetForRetry(context.Background(), id)
	assert.ErrorIs(t, err, apperrors.ErrJobRunning)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepository_ResetForRetry_MissingJob(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewJobRepository(mock)
	id := uuid.New()

	mock.ExpectQuery("UPDATE catalog_jobs").
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT (.+) FROM catalog_jobs").
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err = repo.ResetForRetry(context.Background(), id)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepository_ResetForRetry_ReturnsResetJob(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewJobRepository(mock)
	id := uuid.New()

	mock.ExpectQuery("UPDATE catalog_jobs").
		WithArgs(id).
		WillReturnRows(jobRow(id, models.JobStatusPending))

	job, err := repo.ResetForRetry(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, job.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepository_ListByRun(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewJobRepository(mock)
	runID := uuid.New()
	first := uuid.New()
	second := uuid.New()

	rows := pgxmock.NewRows(jobRowColumns).
		AddRow(first, models.JobTypeExtraction, runID, models.JobStatusCompleted, 2,
			(*string)(nil), (*int)(nil), 100, (*string)(nil), []byte(nil), []byte(nil),
			time.Now().Add(-time.Minute), (*time.Time)(nil)).
		AddRow(second, models.JobTypeEnrichment, runID, models.JobStatusRunning, 8,
			(*string)(nil), (*int)(nil), 25, (*string)(nil), []byte(nil), []byte(nil),
			time.Now(), (*time.Time)(nil))

	mock.ExpectQuery("SELECT (.+) FROM catalog_jobs").
		WithArgs(runID).
		WillReturnRows(rows)

	jobs, err := repo.ListByRun(context.Background(), runID)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, first, jobs[0].ID)
	assert.Equal(t, second, jobs[1].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepository_LatestRunID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewJobRepository(mock)

	mock.ExpectQuery("SELECT run_id").
		WithArgs(models.JobTypeSync).
		WillReturnError(pgx.ErrNoRows)

	_, err = repo.LatestRunID(context.Background(), models.JobTypeSync)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobRepository_ErrorsAreWrapped(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewJobRepository(mock)
	dbErr := errors.New("connection reset")

	mock.ExpectExec("INSERT INTO catalog_jobs").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(dbErr)

	err = repo.Create(context.Background(), &models.Job{JobType: models.JobTypeSync, RunID: uuid.New()})
	assert.ErrorIs(t, err, dbErr)
	require.NoError(t, mock.ExpectationsWereMet())
}

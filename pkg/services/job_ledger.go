package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/insightloop/catalog-engine/pkg/events"
	"github.com/insightloop/catalog-engine/pkg/logging"
	"github.com/insightloop/catalog-engine/pkg/models"
	"github.com/insightloop/catalog-engine/pkg/repositories"
)

// JobLedger tracks pipeline jobs durably and mirrors every status change
// onto the run-scoped event bus for live observers. The ledger is the source
// of truth; events are best-effort.
type JobLedger interface {
	CreateJob(ctx context.Context, jobType models.JobType, runID uuid.UUID, totalSteps int, details any) (*models.Job, error)
	UpdateStatus(ctx context.Context, jobID uuid.UUID, update repositories.JobStatusUpdate) (*models.Job, error)
	UpdateResult(ctx context.Context, jobID uuid.UUID, result any) error
	GetJob(ctx context.Context, jobID uuid.UUID) (*models.Job, error)
	ListJobs(ctx context.Context, limit int) ([]models.Job, error)
	ListJobsForRun(ctx context.Context, runID uuid.UUID) ([]models.Job, error)
	GetLatestRunID(ctx context.Context, jobType models.JobType) (uuid.UUID, error)
	ResetForRetry(ctx context.Context, jobID uuid.UUID) (*models.Job, error)
}

type jobLedger struct {
	repo      repositories.JobRepository
	publisher events.Publisher
	logger    *zap.Logger
}

// NewJobLedger creates a JobLedger over the given repository and event bus.
func NewJobLedger(repo repositories.JobRepository, publisher events.Publisher, logger *zap.Logger) JobLedger {
	return &jobLedger{
		repo:      repo,
		publisher: publisher,
		logger:    logger.Named("job-ledger"),
	}
}

var _ JobLedger = (*jobLedger)(nil)

func (l *jobLedger) CreateJob(ctx context.Context, jobType models.JobType, runID uuid.UUID, totalSteps int, details any) (*models.Job, error) {
	var detailsJSON json.RawMessage
	if details != nil {
		payload, err := json.Marshal(details)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal job details: %w", err)
		}
		detailsJSON = payload
	}

	job := &models.Job{
		JobType:    jobType,
		RunID:      runID,
		Status:     models.JobStatusPending,
		TotalSteps: totalSteps,
		Details:    detailsJSON,
	}
	if err := l.repo.Create(ctx, job); err != nil {
		return nil, err
	}

	l.logger.Info("job created",
		zap.String("job_id", job.ID.String()),
		zap.String("job_type", string(jobType)),
		zap.String("run_id", runID.String()),
		zap.Int("total_steps", totalSteps))

	return job, nil
}

func (l *jobLedger) UpdateStatus(ctx context.Context, jobID uuid.UUID, update repositories.JobStatusUpdate) (*models.Job, error) {
	if update.ErrorMessage != nil {
		sanitized := logging.SanitizeMessage(*update.ErrorMessage)
		update.ErrorMessage = &sanitized
	}

	job, err := l.repo.UpdateStatus(ctx, jobID, update)
	if err != nil {
		return nil, err
	}

	l.publish(ctx, job)
	return job, nil
}

func (l *jobLedger) UpdateResult(ctx context.Context, jobID uuid.UUID, result any) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal job result: %w", err)
	}
	return l.repo.UpdateResult(ctx, jobID, payload)
}

func (l *jobLedger) GetJob(ctx context.Context, jobID uuid.UUID) (*models.Job, error) {
	return l.repo.GetByID(ctx, jobID)
}

func (l *jobLedger) ListJobs(ctx context.Context, limit int) ([]models.Job, error) {
	return l.repo.List(ctx, limit)
}

func (l *jobLedger) ListJobsForRun(ctx context.Context, runID uuid.UUID) ([]models.Job, error) {
	return l.repo.ListByRun(ctx, runID)
}

func (l *jobLedger) GetLatestRunID(ctx context.Context, jobType models.JobType) (uuid.UUID, error) {
	return l.repo.LatestRunID(ctx, jobType)
}

func (l *jobLedger) ResetForRetry(ctx context.Context, jobID uuid.UUID) (*models.Job, error) {
	job, err := l.repo.ResetForRetry(ctx, jobID)
	if err != nil {
		return nil, err
	}

	l.logger.Info("job reset for retry", zap.String("job_id", jobID.String()))
	l.publish(ctx, job)
	return job, nil
}

// publish mirrors a job row onto the run channel. Failures are logged and
// swallowed: observers recover missed events from the ledger on heartbeat.
func (l *jobLedger) publish(ctx context.Context, job *models.Job) {
	if l.publisher == nil {
		return
	}

	event := &events.JobEvent{
		JobID:    job.ID,
		RunID:    job.RunID,
		Status:   job.Status,
		Progress: job.Progress,
	}
	if job.CurrentStep != nil {
		event.Step = *job.CurrentStep
	}
	if job.ErrorMessage != nil {
		event.Message = *job.ErrorMessage
	}

	if err := l.publisher.Publish(ctx, event); err != nil {
		l.logger.Warn("failed to publish job event",
			zap.String("job_id", job.ID.String()),
			zap.Error(err))
	}
}

package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/insightloop/catalog-engine/pkg/apperrors"
	"github.com/insightloop/catalog-engine/pkg/logging"
	"github.com/insightloop/catalog-engine/pkg/models"
	"github.com/insightloop/catalog-engine/pkg/repositories"
	"github.com/insightloop/catalog-engine/pkg/workqueue"
)

// JobDispatcher creates ledger jobs and hands them to the workqueue. Each
// Start method returns the pending job immediately; execution happens in the
// background and is observed through the ledger and the run event stream.
type JobDispatcher struct {
	ledger         JobLedger
	runner         TaskRunner
	extraction     *ExtractionService
	enrichment     *EnrichmentService
	sync           *SyncService
	batchSize      int
	syncRetryDelay time.Duration
	logger         *zap.Logger
}

// NewJobDispatcher creates a new JobDispatcher.
func NewJobDispatcher(
	ledger JobLedger,
	runner TaskRunner,
	extraction *ExtractionService,
	enrichment *EnrichmentService,
	sync *SyncService,
	batchSize int,
	syncRetryDelay time.Duration,
	logger *zap.Logger,
) *JobDispatcher {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	if syncRetryDelay <= 0 {
		syncRetryDelay = 5 * time.Second
	}
	return &JobDispatcher{
		ledger:         ledger,
		runner:         runner,
		extraction:     extraction,
		enrichment:     enrichment,
		sync:           sync,
		batchSize:      batchSize,
		syncRetryDelay: syncRetryDelay,
		logger:         logger.Named("dispatcher"),
	}
}

// StartExtraction creates and enqueues an extraction job.
func (d *JobDispatcher) StartExtraction(ctx context.Context, details models.ExtractionDetails) (*models.Job, error) {
	job, err := d.ledger.CreateJob(ctx, models.JobTypeExtraction, uuid.New(), ExtractionTotalSteps, details)
	if err != nil {
		return nil, err
	}
	return d.enqueue(ctx, job, NewExtractionTask(job.ID, d.extraction, details))
}

// StartEnrichment creates and enqueues an enrichment job. The step count is
// fixed at creation from the table selection so progress is monotonic.
func (d *JobDispatcher) StartEnrichment(ctx context.Context, details models.EnrichmentDetails) (*models.Job, error) {
	if len(details.TableIDs) == 0 {
		return nil, fmt.Errorf("%w: enrichment requires at least one table", apperrors.ErrInvalidInput)
	}
	if details.BatchSize < 1 {
		details.BatchSize = d.batchSize
	}

	totalSteps := EnrichmentTotalSteps(len(details.TableIDs), details.BatchSize)
	job, err := d.ledger.CreateJob(ctx, models.JobTypeEnrichment, uuid.New(), totalSteps, details)
	if err != nil {
		return nil, err
	}
	return d.enqueue(ctx, job, NewEnrichmentTask(job.ID, d.enrichment, details))
}

// StartSync creates and enqueues a sync job.
func (d *JobDispatcher) StartSync(ctx context.Context, details models.SyncDetails) (*models.Job, error) {
	job, err := d.ledger.CreateJob(ctx, models.JobTypeSync, uuid.New(), SyncTotalSteps, details)
	if err != nil {
		return nil, err
	}
	return d.enqueue(ctx, job, NewSyncTask(job.ID, d.sync, details, d.syncRetryDelay))
}

// Retry re-dispatches a non-running job from its stored trigger context.
// Jobs created before details were recorded cannot be retried.
func (d *JobDispatcher) Retry(ctx context.Context, jobID uuid.UUID) (*models.Job, error) {
	job, err := d.ledger.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if len(job.Details) == 0 {
		return nil, apperrors.ErrRetryContextMissing
	}

	task, err := d.taskFromDetails(job)
	if err != nil {
		return nil, err
	}

	job, err = d.ledger.ResetForRetry(ctx, jobID)
	if err != nil {
		return nil, err
	}

	d.logger.Info("job retried",
		zap.String("job_id", jobID.String()),
		zap.String("job_type", string(job.JobType)))

	return d.enqueue(ctx, job, task)
}

func (d *JobDispatcher) taskFromDetails(job *models.Job) (workqueue.Task, error) {
	switch job.JobType {
	case models.JobTypeExtraction:
		var details models.ExtractionDetails
		if err := json.Unmarshal(job.Details, &details); err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrRetryContextMissing, err)
		}
		return NewExtractionTask(job.ID, d.extraction, details), nil

	case models.JobTypeEnrichment:
		var details models.EnrichmentDetails
		if err := json.Unmarshal(job.Details, &details); err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrRetryContextMissing, err)
		}
		if len(details.TableIDs) == 0 {
			return nil, apperrors.ErrRetryContextMissing
		}
		return NewEnrichmentTask(job.ID, d.enrichment, details), nil

	case models.JobTypeSync:
		var details models.SyncDetails
		if err := json.Unmarshal(job.Details, &details); err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrRetryContextMissing, err)
		}
		return NewSyncTask(job.ID, d.sync, details, d.syncRetryDelay), nil

	default:
		return nil, fmt.Errorf("%w: unknown job type %q", apperrors.ErrInvalidInput, job.JobType)
	}
}

// enqueue hands the job's task to the runner. A rejected enqueue fails the
// job immediately so it never sits pending forever.
func (d *JobDispatcher) enqueue(ctx context.Context, job *models.Job, task workqueue.Task) (*models.Job, error) {
	if err := d.runner.Enqueue(task); err != nil {
		msg := logging.SanitizeError(err)
		if _, updateErr := d.ledger.UpdateStatus(ctx, job.ID, repositories.JobStatusUpdate{
			Status:       models.JobStatusFailed,
			ErrorMessage: &msg,
		}); updateErr != nil {
			d.logger.Error("failed to mark unenqueued job failed",
				zap.String("job_id", job.ID.String()),
				zap.Error(updateErr))
		}
		return nil, err
	}
	return job, nil
}

package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/insightloop/catalog-engine/pkg/logging"
	"github.com/insightloop/catalog-engine/pkg/models"
	"github.com/insightloop/catalog-engine/pkg/repositories"
	"github.com/insightloop/catalog-engine/pkg/retry"
	"github.com/insightloop/catalog-engine/pkg/workqueue"
)

// TaskRunner is the slice of the workqueue runner the dispatcher needs.
type TaskRunner interface {
	Enqueue(task workqueue.Task) error
}

// ExtractionTask runs one extraction job on the workqueue.
type ExtractionTask struct {
	workqueue.BaseTask
	svc     *ExtractionService
	jobID   uuid.UUID
	details models.ExtractionDetails
}

// NewExtractionTask creates the workqueue task for one extraction job.
func NewExtractionTask(jobID uuid.UUID, svc *ExtractionService, details models.ExtractionDetails) *ExtractionTask {
	return &ExtractionTask{
		BaseTask: workqueue.NewBaseTask(jobID.String(), "extraction"),
		svc:      svc,
		jobID:    jobID,
		details:  details,
	}
}

// Execute runs the extraction stage. Extraction talks only to local engines,
// so failures are terminal rather than re-run.
func (t *ExtractionTask) Execute(ctx context.Context) workqueue.Result {
	return workqueue.Result{Err: t.svc.Run(ctx, t.jobID, t.details)}
}

// EnrichmentTask runs one enrichment job on the workqueue.
type EnrichmentTask struct {
	workqueue.BaseTask
	svc     *EnrichmentService
	jobID   uuid.UUID
	details models.EnrichmentDetails
}

// NewEnrichmentTask creates the workqueue task for one enrichment job.
func NewEnrichmentTask(jobID uuid.UUID, svc *EnrichmentService, details models.EnrichmentDetails) *EnrichmentTask {
	return &EnrichmentTask{
		BaseTask: workqueue.NewBaseTask(jobID.String(), "enrichment"),
		svc:      svc,
		jobID:    jobID,
		details:  details,
	}
}

// Execute runs the enrichment stage. Gateway retry and breaker handling live
// inside the stage; by the time it reports an error-status result the job is
// already terminal, so the task never asks for a re-run.
func (t *EnrichmentTask) Execute(ctx context.Context) workqueue.Result {
	result := t.svc.Run(ctx, t.jobID, t.details)
	if result.Status != StageStatusOK {
		return workqueue.Result{Err: fmt.Errorf("enrichment failed: %s", result.ErrorType)}
	}
	return workqueue.Result{}
}

// SyncTask runs one sync job on the workqueue. Transient source errors ask
// the runner for a delayed re-run while the ledger row stays running;
// permanent errors fail immediately. When the attempt limit is exhausted the
// runner's failure reporter drives the row to failed.
type SyncTask struct {
	workqueue.BaseTask
	svc        *SyncService
	jobID      uuid.UUID
	details    models.SyncDetails
	retryDelay time.Duration
}

// NewSyncTask creates the workqueue task for one sync job.
func NewSyncTask(jobID uuid.UUID, svc *SyncService, details models.SyncDetails, retryDelay time.Duration) *SyncTask {
	return &SyncTask{
		BaseTask:   workqueue.NewBaseTask(jobID.String(), "sync"),
		svc:        svc,
		jobID:      jobID,
		details:    details,
		retryDelay: retryDelay,
	}
}

// Execute runs the sync stage once.
func (t *SyncTask) Execute(ctx context.Context) workqueue.Result {
	err := t.svc.Run(ctx, t.jobID, t.details)
	if err == nil {
		return workqueue.Result{}
	}
	if retry.IsRetryable(err) {
		return workqueue.Result{Retry: true, Delay: t.retryDelay, Err: err}
	}
	return workqueue.Result{Err: err}
}

// NewTaskFailureReporter builds the runner failure hook that drives the
// ledger row to failed. It covers the paths a stage cannot report itself:
// panics, timeouts, and enqueue-side bookkeeping. A job already failed by
// its stage is updated again with the same terminal status, which the ledger
// treats as a no-op on completion time.
func NewTaskFailureReporter(ledger JobLedger, logger *zap.Logger) func(taskID string, err error) {
	log := logger.Named("task-reporter")
	return func(taskID string, err error) {
		jobID, parseErr := uuid.Parse(taskID)
		if parseErr != nil {
			log.Error("failure report for unparseable task id",
				zap.String("task_id", taskID), zap.Error(parseErr))
			return
		}

		msg := logging.SanitizeError(err)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if _, updateErr := ledger.UpdateStatus(ctx, jobID, repositories.JobStatusUpdate{
			Status:       models.JobStatusFailed,
			ErrorMessage: &msg,
		}); updateErr != nil {
			log.Error("failed to mark job failed from task report",
				zap.String("job_id", jobID.String()),
				zap.Error(updateErr))
		}
	}
}

package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/insightloop/catalog-engine/pkg/apperrors"
	"github.com/insightloop/catalog-engine/pkg/models"
	"github.com/insightloop/catalog-engine/pkg/repositories"
	"github.com/insightloop/catalog-engine/pkg/workqueue"
)

// ============================================================================
// Mock Implementations for JobDispatcher Tests
// ============================================================================

type dispMockLedger struct {
	created  []*models.Job
	job      *models.Job
	getErr   error
	resetErr error
	updates  []repositories.JobStatusUpdate
}

func (m *dispMockLedger) CreateJob(ctx context.Context, jobType models.JobType, runID uuid.UUID, totalSteps int, details any) (*models.Job, error) {
	payload, err := json.Marshal(details)
	if err != nil {
		return nil, err
	}
	job := &models.Job{
		ID:         uuid.New(),
		JobType:    jobType,
		RunID:      runID,
		Status:     models.JobStatusPending,
		TotalSteps: totalSteps,
		Details:    payload,
	}
	m.created = append(m.created, job)
	return job, nil
}

func (m *dispMockLedger) GetJob(ctx context.Context, jobID uuid.UUID) (*models.Job, error) {
	return m.job, m.getErr
}

func (m *dispMockLedger) ResetForRetry(ctx context.Context, jobID uuid.UUID) (*models.Job, error) {
	if m.resetErr != nil {
		return nil, m.resetErr
	}
	reset := *m.job
	reset.Status = models.JobStatusPending
	return &reset, nil
}

func (m *dispMockLedger) UpdateStatus(ctx context.Context, jobID uuid.UUID, update repositories.JobStatusUpdate) (*models.Job, error) {
	m.updates = append(m.updates, update)
	return &models.Job{ID: jobID, Status: update.Status}, nil
}

// Unused interface methods
func (m *dispMockLedger) UpdateResult(ctx context.Context, jobID uuid.UUID, result any) error {
	return nil
}
func (m *dispMockLedger) ListJobs(ctx context.Context, limit int) ([]models.Job, error) {
	return nil, nil
}
func (m *dispMockLedger) ListJobsForRun(ctx context.Context, runID uuid.UUID) ([]models.Job, error) {
	return nil, nil
}
func (m *dispMockLedger) GetLatestRunID(ctx context.Context, jobType models.JobType) (uuid.UUID, error) {
	return uuid.Nil, nil
}

type dispMockRunner struct {
	tasks      []workqueue.Task
	enqueueErr error
}

func (m *dispMockRunner) Enqueue(task workqueue.Task) error {
	if m.enqueueErr != nil {
		return m.enqueueErr
	}
	m.tasks = append(m.tasks, task)
	return nil
}

func newDispatcherFixture() (*JobDispatcher, *dispMockLedger, *dispMockRunner) {
	ledger := &dispMockLedger{}
	runner := &dispMockRunner{}
	d := NewJobDispatcher(ledger, runner, nil, nil, nil, DefaultBatchSize, time.Second, zap.NewNop())
	return d, ledger, runner
}

// ============================================================================
// Tests
// ============================================================================

func TestDispatcher_StartExtraction(t *testing.T) {
	d, ledger, runner := newDispatcherFixture()

	job, err := d.StartExtraction(context.Background(), models.ExtractionDetails{DatasetID: "ds1"})
	if err != nil {
		t.Fatalf("start extraction failed: %v", err)
	}

	if job.JobType != models.JobTypeExtraction {
		t.Errorf("expected extraction job, got %s", job.JobType)
	}
	if job.TotalSteps != ExtractionTotalSteps {
		t.Errorf("expected %d total steps, got %d", ExtractionTotalSteps, job.TotalSteps)
	}
	if len(runner.tasks) != 1 {
		t.Fatalf("expected 1 enqueued task, got %d", len(runner.tasks))
	}
	if runner.tasks[0].ID() != job.ID.String() {
		t.Errorf("task id %s does not match job id %s", runner.tasks[0].ID(), job.ID)
	}
	if len(ledger.created) != 1 {
		t.Errorf("expected 1 ledger job, got %d", len(ledger.created))
	}
}

func TestDispatcher_StartEnrichment_RequiresTables(t *testing.T) {
	d, _, runner := newDispatcherFixture()

	_, err := d.StartEnrichment(context.Background(), models.EnrichmentDetails{DatasetID: "ds1"})
	if !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if len(runner.tasks) != 0 {
		t.Errorf("nothing may be enqueued on validation failure")
	}
}

func TestDispatcher_StartEnrichment_ComputesTotalSteps(t *testing.T) {
	d, _, _ := newDispatcherFixture()

	tableIDs := make([]uuid.UUID, 20)
	for i := range tableIDs {
		tableIDs[i] = uuid.New()
	}

	job, err := d.StartEnrichment(context.Background(), models.EnrichmentDetails{
		DatasetID: "ds1",
		TableIDs:  tableIDs,
	})
	if err != nil {
		t.Fatalf("start enrichment failed: %v", err)
	}

	// 20 tables at the default batch size of 15 is 2 batches: 2 + 2 + 3 steps.
	if job.TotalSteps != 7 {
		t.Errorf("expected 7 total steps, got %d", job.TotalSteps)
	}
}

func TestDispatcher_EnqueueFailureMarksJobFailed(t *testing.T) {
	d, ledger, runner := newDispatcherFixture()
	runner.enqueueErr = workqueue.ErrQueueFull

	_, err := d.StartSync(context.Background(), models.SyncDetails{SourceID: "s1", DatasetID: "ds1"})
	if !errors.Is(err, workqueue.ErrQueueFull) {
		t.Fatalf("expected queue-full error, got %v", err)
	}

	if len(ledger.updates) != 1 {
		t.Fatalf("expected 1 status update, got %d", len(ledger.updates))
	}
	if ledger.updates[0].Status != models.JobStatusFailed {
		t.Errorf("expected job marked failed, got %s", ledger.updates[0].Status)
	}
	if ledger.updates[0].ErrorMessage == nil {
		t.Errorf("expected error message recorded")
	}
}

func TestDispatcher_Retry_RequiresStoredDetails(t *testing.T) {
	d, ledger, _ := newDispatcherFixture()
	ledger.job = &models.Job{
		ID:      uuid.New(),
		JobType: models.JobTypeExtraction,
		Status:  models.JobStatusFailed,
	}

	_, err := d.Retry(context.Background(), ledger.job.ID)
	if !errors.Is(err, apperrors.ErrRetryContextMissing) {
		t.Fatalf("expected ErrRetryContextMissing, got %v", err)
	}
}

func TestDispatcher_Retry_EnrichmentWithoutTablesIsUnretryable(t *testing.T) {
	d, ledger, _ := newDispatcherFixture()
	details, _ := json.Marshal(models.EnrichmentDetails{DatasetID: "ds1"})
	ledger.job = &models.Job{
		ID:      uuid.New(),
		JobType: models.JobTypeEnrichment,
		Status:  models.JobStatusFailed,
		Details: details,
	}

	_, err := d.Retry(context.Background(), ledger.job.ID)
	if !errors.Is(err, apperrors.ErrRetryContextMissing) {
		t.Fatalf("expected ErrRetryContextMissing, got %v", err)
	}
}

func TestDispatcher_Retry_ReenqueuesFromStoredDetails(t *testing.T) {
	d, ledger, runner := newDispatcherFixture()
	details, _ := json.Marshal(models.SyncDetails{SourceID: "s1", DatasetID: "ds1"})
	ledger.job = &models.Job{
		ID:      uuid.New(),
		JobType: models.JobTypeSync,
		Status:  models.JobStatusFailed,
		Details: details,
	}

	job, err := d.Retry(context.Background(), ledger.job.ID)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}

	if job.Status != models.JobStatusPending {
		t.Errorf("expected reset job pending, got %s", job.Status)
	}
	if len(runner.tasks) != 1 {
		t.Fatalf("expected 1 re-enqueued task, got %d", len(runner.tasks))
	}
	if runner.tasks[0].Name() != "sync" {
		t.Errorf("expected sync task, got %s", runner.tasks[0].Name())
	}
}

func TestDispatcher_Retry_RunningJobIsRefused(t *testing.T) {
	d, ledger, runner := newDispatcherFixture()
	details, _ := json.Marshal(models.ExtractionDetails{DatasetID: "ds1"})
	ledger.job = &models.Job{
		ID:      uuid.New(),
		JobType: models.JobTypeExtraction,
		Status:  models.JobStatusRunning,
		Details: details,
	}
	ledger.resetErr = apperrors.ErrJobRunning

	_, err := d.Retry(context.Background(), ledger.job.ID)
	if !errors.Is(err, apperrors.ErrJobRunning) {
		t.Fatalf("expected ErrJobRunning, got %v", err)
	}
	if len(runner.tasks) != 0 {
		t.Errorf("nothing may be enqueued for a running job")
	}
}

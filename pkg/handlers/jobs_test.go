package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/insightloop/catalog-engine/pkg/apperrors"
	"github.com/insightloop/catalog-engine/pkg/models"
	"github.com/insightloop/catalog-engine/pkg/repositories"
	"github.com/insightloop/catalog-engine/pkg/services"
	"github.com/insightloop/catalog-engine/pkg/workqueue"
)

// ============================================================================
// Mock Implementations for JobsHandler Tests
// ============================================================================

type jhMockLedger struct {
	job      *models.Job
	jobs     []models.Job
	getErr   error
	resetErr error
}

func (m *jhMockLedger) CreateJob(ctx context.Context, jobType models.JobType, runID uuid.UUID, totalSteps int, details any) (*models.Job, error) {
	payload, err := json.Marshal(details)
	if err != nil {
		return nil, err
	}
	return &models.Job{
		ID:         uuid.New(),
		JobType:    jobType,
		RunID:      runID,
		Status:     models.JobStatusPending,
		TotalSteps: totalSteps,
		Details:    payload,
	}, nil
}

func (m *jhMockLedger) GetJob(ctx context.Context, jobID uuid.UUID) (*models.Job, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.job, nil
}

func (m *jhMockLedger) ResetForRetry(ctx context.Context, jobID uuid.UUID) (*models.Job, error) {
	if m.resetErr != nil {
		return nil, m.resetErr
	}
	reset := *m.job
	reset.Status = models.JobStatusPending
	return &reset, nil
}

func (m *jhMockLedger) ListJobs(ctx context.Context, limit int) ([]models.Job, error) {
	return m.jobs, nil
}

func (m *jhMockLedger) ListJobsForRun(ctx context.Context, runID uuid.UUID) ([]models.Job, error) {
	return m.jobs, nil
}

// Unused interface methods
func (m *jhMockLedger) UpdateStatus(ctx context.Context, jobID uuid.UUID, update repositories.JobStatusUpdate) (*models.Job, error) {
	return &models.Job{ID: jobID, Status: update.Status}, nil
}
func (m *jhMockLedger) UpdateResult(ctx context.Context, jobID uuid.UUID, result any) error {
	return nil
}
func (m *jhMockLedger) GetLatestRunID(ctx context.Context, jobType models.JobType) (uuid.UUID, error) {
	return uuid.Nil, nil
}

type jhMockRunner struct {
	tasks []workqueue.Task
}

func (m *jhMockRunner) Enqueue(task workqueue.Task) error {
	m.tasks = append(m.tasks, task)
	return nil
}

func (m *jhMockRunner) Snapshots() []workqueue.TaskSnapshot {
	snapshots := make([]workqueue.TaskSnapshot, 0, len(m.tasks))
	for _, task := range m.tasks {
		snapshots = append(snapshots, workqueue.TaskSnapshot{
			ID:     task.ID(),
			Name:   task.Name(),
			Status: workqueue.TaskStatusPending,
		})
	}
	return snapshots
}

func newJobsHandlerFixture(ledger *jhMockLedger) (*JobsHandler, *jhMockRunner) {
	runner := &jhMockRunner{}
	dispatcher := services.NewJobDispatcher(ledger, runner, nil, nil, nil, 15, time.Second, zap.NewNop())
	return NewJobsHandler(dispatcher, ledger, runner, zap.NewNop()), runner
}

func serveJobs(t *testing.T, handler *JobsHandler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode error body %q: %v", rec.Body.String(), err)
	}
	return resp
}

// ============================================================================
// Tests
// ============================================================================

func TestStartExtraction_Accepted(t *testing.T) {
	handler, runner := newJobsHandlerFixture(&jhMockLedger{})

	rec := serveJobs(t, handler, http.MethodPost, "/api/jobs/extract", `{"dataset_id":"ds1"}`)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var job models.Job
	if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
		t.Fatalf("failed to decode job: %v", err)
	}
	if job.JobType != models.JobTypeExtraction {
		t.Errorf("expected extraction job, got %s", job.JobType)
	}
	if job.Status != models.JobStatusPending {
		t.Errorf("expected pending job, got %s", job.Status)
	}
	if len(runner.tasks) != 1 {
		t.Errorf("expected task enqueued, got %d", len(runner.tasks))
	}
}

func TestStartExtraction_MissingDatasetID(t *testing.T) {
	handler, runner := newJobsHandlerFixture(&jhMockLedger{})

	rec := serveJobs(t, handler, http.MethodPost, "/api/jobs/extract", `{}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(runner.tasks) != 0 {
		t.Errorf("nothing may be enqueued on validation failure")
	}
}

func TestStartEnrichment_RequiresTableIDs(t *testing.T) {
	handler, _ := newJobsHandlerFixture(&jhMockLedger{})

	rec := serveJobs(t, handler, http.MethodPost, "/api/jobs/enrich", `{"dataset_id":"ds1","table_ids":[]}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if resp := decodeError(t, rec); resp["error"] != "invalid_request" {
		t.Errorf("expected invalid_request code, got %q", resp["error"])
	}
}

func TestStartEnrichment_Accepted(t *testing.T) {
	handler, _ := newJobsHandlerFixture(&jhMockLedger{})
	tableID := uuid.New()

	rec := serveJobs(t, handler, http.MethodPost, "/api/jobs/enrich",
		`{"dataset_id":"ds1","table_ids":["`+tableID.String()+`"]}`)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var job models.Job
	if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
		t.Fatalf("failed to decode job: %v", err)
	}
	// 1 table, batch 15: 2 + 1 + 3 steps.
	if job.TotalSteps != 6 {
		t.Errorf("expected 6 total steps, got %d", job.TotalSteps)
	}
}

func TestStartSync_RequiresSourceAndDataset(t *testing.T) {
	handler, _ := newJobsHandlerFixture(&jhMockLedger{})

	rec := serveJobs(t, handler, http.MethodPost, "/api/jobs/sync", `{"source_id":"s1"}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGetJob_NotFound(t *testing.T) {
	handler, _ := newJobsHandlerFixture(&jhMockLedger{getErr: apperrors.ErrNotFound})

	rec := serveJobs(t, handler, http.MethodGet, "/api/jobs/"+uuid.New().String(), "")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if resp := decodeError(t, rec); resp["error"] != "not_found" {
		t.Errorf("expected not_found code, got %q", resp["error"])
	}
}

func TestGetJob_InvalidID(t *testing.T) {
	handler, _ := newJobsHandlerFixture(&jhMockLedger{})

	rec := serveJobs(t, handler, http.MethodGet, "/api/jobs/not-a-uuid", "")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestRetryJob_RunningConflict(t *testing.T) {
	details, _ := json.Marshal(models.ExtractionDetails{DatasetID: "ds1"})
	ledger := &jhMockLedger{
		job: &models.Job{
			ID:      uuid.New(),
			JobType: models.JobTypeExtraction,
			Status:  models.JobStatusRunning,
			Details: details,
		},
		resetErr: apperrors.ErrJobRunning,
	}
	handler, _ := newJobsHandlerFixture(ledger)

	rec := serveJobs(t, handler, http.MethodPost, "/api/jobs/"+ledger.job.ID.String()+"/retry", "")

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if resp := decodeError(t, rec); resp["error"] != "job_running" {
		t.Errorf("expected job_running code, got %q", resp["error"])
	}
}

func TestRetryJob_MissingDetails(t *testing.T) {
	ledger := &jhMockLedger{
		job: &models.Job{
			ID:      uuid.New(),
			JobType: models.JobTypeExtraction,
			Status:  models.JobStatusFailed,
		},
	}
	handler, _ := newJobsHandlerFixture(ledger)

	rec := serveJobs(t, handler, http.MethodPost, "/api/jobs/"+ledger.job.ID.String()+"/retry", "")

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	if resp := decodeError(t, rec); resp["error"] != "retry_context_missing" {
		t.Errorf("expected retry_context_missing code, got %q", resp["error"])
	}
}

func TestRetryJob_Accepted(t *testing.T) {
	details, _ := json.Marshal(models.SyncDetails{SourceID: "s1", DatasetID: "ds1"})
	ledger := &jhMockLedger{
		job: &models.Job{
			ID:      uuid.New(),
			JobType: models.JobTypeSync,
			Status:  models.JobStatusFailed,
			Details: details,
		},
	}
	handler, runner := newJobsHandlerFixture(ledger)

	rec := serveJobs(t, handler, http.MethodPost, "/api/jobs/"+ledger.job.ID.String()+"/retry", "")

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(runner.tasks) != 1 {
		t.Errorf("expected re-enqueued task, got %d", len(runner.tasks))
	}
}

func TestListQueue(t *testing.T) {
	handler, _ := newJobsHandlerFixture(&jhMockLedger{})

	if rec := serveJobs(t, handler, http.MethodPost, "/api/jobs/sync",
		`{"source_id":"s1","dataset_id":"ds1"}`); rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202 starting sync, got %d", rec.Code)
	}

	rec := serveJobs(t, handler, http.MethodGet, "/api/jobs/queue", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Tasks []workqueue.TaskSnapshot `json:"tasks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode queue response: %v", err)
	}
	if len(resp.Tasks) != 1 {
		t.Fatalf("expected 1 queued task, got %d", len(resp.Tasks))
	}
	if resp.Tasks[0].Name != "sync" {
		t.Errorf("expected sync task in the queue, got %s", resp.Tasks[0].Name)
	}
}

func TestListJobs(t *testing.T) {
	ledger := &jhMockLedger{jobs: []models.Job{
		{ID: uuid.New(), JobType: models.JobTypeExtraction, Status: models.JobStatusCompleted},
		{ID: uuid.New(), JobType: models.JobTypeSync, Status: models.JobStatusRunning},
	}}
	handler, _ := newJobsHandlerFixture(ledger)

	rec := serveJobs(t, handler, http.MethodGet, "/api/jobs", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp struct {
		Jobs []models.Job `json:"jobs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Jobs) != 2 {
		t.Errorf("expected 2 jobs, got %d", len(resp.Jobs))
	}
}

package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/insightloop/catalog-engine/pkg/models"
	"github.com/insightloop/catalog-engine/pkg/services"
	"github.com/insightloop/catalog-engine/pkg/workqueue"
)

const defaultJobListLimit = 50

// TaskSnapshotter is the read side of the workqueue runner: the live state
// of every task it has seen, in enqueue order.
type TaskSnapshotter interface {
	Snapshots() []workqueue.TaskSnapshot
}

// JobsHandler exposes the pipeline job API: triggering extraction,
// enrichment, and sync jobs, inspecting the ledger and the task queue, and
// retrying failures.
type JobsHandler struct {
	dispatcher *services.JobDispatcher
	ledger     services.JobLedger
	tasks      TaskSnapshotter
	logger     *zap.Logger
}

// NewJobsHandler creates a new JobsHandler.
func NewJobsHandler(dispatcher *services.JobDispatcher, ledger services.JobLedger, tasks TaskSnapshotter, logger *zap.Logger) *JobsHandler {
	return &JobsHandler{
		dispatcher: dispatcher,
		ledger:     ledger,
		tasks:      tasks,
		logger:     logger,
	}
}

// RegisterRoutes registers the job routes on the given mux.
func (h *JobsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/jobs/extract", h.StartExtraction)
	mux.HandleFunc("POST /api/jobs/enrich", h.StartEnrichment)
	mux.HandleFunc("POST /api/jobs/sync", h.StartSync)
	mux.HandleFunc("GET /api/jobs", h.ListJobs)
	mux.HandleFunc("GET /api/jobs/queue", h.ListQueue)
	mux.HandleFunc("GET /api/jobs/{id}", h.GetJob)
	mux.HandleFunc("POST /api/jobs/{id}/retry", h.RetryJob)
	mux.HandleFunc("GET /api/runs/{run_id}/jobs", h.ListRunJobs)
}

// StartExtraction handles POST /api/jobs/extract requests.
func (h *JobsHandler) StartExtraction(w http.ResponseWriter, r *http.Request) {
	var details models.ExtractionDetails
	if err := json.NewDecoder(r.Body).Decode(&details); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if details.DatasetID == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "dataset_id is required")
		return
	}

	job, err := h.dispatcher.StartExtraction(r.Context(), details)
	if err != nil {
		h.writeDomainError(w, err, "failed to start extraction")
		return
	}
	h.writeJob(w, http.StatusAccepted, job)
}

// StartEnrichment handles POST /api/jobs/enrich requests.
func (h *JobsHandler) StartEnrichment(w http.ResponseWriter, r *http.Request) {
	var details models.EnrichmentDetails
	if err := json.NewDecoder(r.Body).Decode(&details); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if details.DatasetID == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "dataset_id is required")
		return
	}
	if len(details.TableIDs) == 0 {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "table_ids must not be empty")
		return
	}

	job, err := h.dispatcher.StartEnrichment(r.Context(), details)
	if err != nil {
		h.writeDomainError(w, err, "failed to start enrichment")
		return
	}
	h.writeJob(w, http.StatusAccepted, job)
}

// StartSync handles POST /api/jobs/sync requests.
func (h *JobsHandler) StartSync(w http.ResponseWriter, r *http.Request) {
	var details models.SyncDetails
	if err := json.NewDecoder(r.Body).Decode(&details); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if details.SourceID == "" || details.DatasetID == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "source_id and dataset_id are required")
		return
	}

	job, err := h.dispatcher.StartSync(r.Context(), details)
	if err != nil {
		h.writeDomainError(w, err, "failed to start sync")
		return
	}
	h.writeJob(w, http.StatusAccepted, job)
}

// ListJobs handles GET /api/jobs requests, newest first.
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultJobListLimit)

	jobs, err := h.ledger.ListJobs(r.Context(), limit)
	if err != nil {
		h.writeDomainError(w, err, "failed to list jobs")
		return
	}
	if err := WriteJSON(w, http.StatusOK, map[string]any{"jobs": jobs}); err != nil {
		h.logger.Error("Failed to encode jobs response", zap.Error(err))
	}
}

// ListQueue handles GET /api/jobs/queue requests: the workqueue's view of
// every task in enqueue order, including attempts and execution errors the
// ledger rows do not carry.
func (h *JobsHandler) ListQueue(w http.ResponseWriter, r *http.Request) {
	if err := WriteJSON(w, http.StatusOK, map[string]any{"tasks": h.tasks.Snapshots()}); err != nil {
		h.logger.Error("Failed to encode queue response", zap.Error(err))
	}
}

// GetJob handles GET /api/jobs/{id} requests.
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	job, err := h.ledger.GetJob(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err, "failed to get job")
		return
	}
	h.writeJob(w, http.StatusOK, job)
}

// RetryJob handles POST /api/jobs/{id}/retry requests.
func (h *JobsHandler) RetryJob(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	job, err := h.dispatcher.Retry(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err, "failed to retry job")
		return
	}
	h.writeJob(w, http.StatusAccepted, job)
}

// ListRunJobs handles GET /api/runs/{run_id}/jobs requests.
func (h *JobsHandler) ListRunJobs(w http.ResponseWriter, r *http.Request) {
	runID, err := pathUUID(r, "run_id")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	jobs, err := h.ledger.ListJobsForRun(r.Context(), runID)
	if err != nil {
		h.writeDomainError(w, err, "failed to list run jobs")
		return
	}
	if err := WriteJSON(w, http.StatusOK, map[string]any{"jobs": jobs}); err != nil {
		h.logger.Error("Failed to encode run jobs response", zap.Error(err))
	}
}

func (h *JobsHandler) writeJob(w http.ResponseWriter, status int, job *models.Job) {
	if err := WriteJSON(w, status, job); err != nil {
		h.logger.Error("Failed to encode job response", zap.Error(err))
	}
}

func (h *JobsHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	if err := ErrorResponse(w, status, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}

func (h *JobsHandler) writeDomainError(w http.ResponseWriter, err error, message string) {
	status, code := errorStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(message, zap.Error(err))
	}
	h.writeError(w, status, code, message)
}

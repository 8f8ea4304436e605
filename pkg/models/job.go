package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Job Status
// ============================================================================

// JobStatus represents the execution status of a pipeline job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// ValidJobStatuses contains all valid job status values.
var ValidJobStatuses = []JobStatus{
	JobStatusPending,
	JobStatusRunning,
	JobStatusCompleted,
	JobStatusFailed,
}

// IsValidJobStatus checks if the given status is valid.
func IsValidJobStatus(s JobStatus) bool {
	for _, v := range ValidJobStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// IsTerminal returns true if the job status is terminal (completed or failed).
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ============================================================================
// Job Type
// ============================================================================

// JobType identifies which pipeline a job executes.
type JobType string

const (
	JobTypeExtraction JobType = "extraction"
	JobTypeEnrichment JobType = "enrichment"
	JobTypeSync       JobType = "sync"
)

// IsValidJobType checks if the given job type is valid.
func IsValidJobType(t JobType) bool {
	return t == JobTypeExtraction || t == JobTypeEnrichment || t == JobTypeSync
}

// ============================================================================
// Job Model
// ============================================================================

// Job is one pipeline execution (extraction, enrichment, or sync) with its
// own state machine. Jobs triggered by the same user action share a RunID.
type Job struct {
	ID      uuid.UUID `json:"id"`
	JobType JobType   `json:"job_type"`
	RunID   uuid.UUID `json:"run_id"`

	// Execution state
	Status       JobStatus `json:"status"`
	TotalSteps   int       `json:"total_steps"`
	CurrentStep  *string   `json:"current_step,omitempty"`
	StepIndex    *int      `json:"step_index,omitempty"`
	Progress     int       `json:"progress"`
	ErrorMessage *string   `json:"error_message,omitempty"`

	// Details holds job-type-specific trigger context (dataset id, table ids,
	// batch size) used to re-dispatch the job on retry.
	Details json.RawMessage `json:"details,omitempty"`

	// Result holds aggregate pipeline metrics (table/column/kpi counts).
	Result json.RawMessage `json:"result,omitempty"`

	// Timing
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// IsRunning returns true if the job is currently running.
func (j *Job) IsRunning() bool {
	return j.Status == JobStatusRunning
}

// IsTerminal returns true if the job has reached a terminal state.
func (j *Job) IsTerminal() bool {
	return j.Status.IsTerminal()
}

// ============================================================================
// Job Details / Result payloads
// ============================================================================

// ExtractionDetails is the trigger context stored on extraction jobs.
type ExtractionDetails struct {
	DatasetID string `json:"dataset_id"`
}

// EnrichmentDetails is the trigger context stored on enrichment jobs.
type EnrichmentDetails struct {
	DatasetID string      `json:"dataset_id"`
	TableIDs  []uuid.UUID `json:"table_ids"`
	BatchSize int         `json:"batch_size"`
}

// SyncDetails is the trigger context stored on sync jobs.
type SyncDetails struct {
	SourceID  string `json:"source_id"`
	DatasetID string `json:"dataset_id"`
}

// ExtractionResult holds counts written by a completed extraction job.
type ExtractionResult struct {
	Tables  int `json:"tables"`
	Columns int `json:"columns"`
}

// SyncResult holds counts written by a completed sync job.
type SyncResult struct {
	Tables  int `json:"tables"`
	Columns int `json:"columns"`
	Removed int `json:"removed"`
}

// EnrichmentResult holds aggregate metrics from a completed enrichment job.
// KPI and question generation are non-fatal: their error fields are set when
// the sub-stage failed while the job itself still completed.
type EnrichmentResult struct {
	Tables         int    `json:"tables"`
	Columns        int    `json:"columns"`
	Synonyms       int    `json:"synonyms"`
	Warnings       int    `json:"warnings"`
	KPIs           int    `json:"kpis"`
	Questions      int    `json:"questions"`
	KPIsError      string `json:"kpis_error,omitempty"`
	QuestionsError string `json:"questions_error,omitempty"`
}

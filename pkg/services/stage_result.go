package services

import "github.com/insightloop/catalog-engine/pkg/models"

// Stage statuses.
const (
	StageStatusOK    = "ok"
	StageStatusError = "error"
)

// Stage error types, the fixed vocabulary surfaced to callers.
const (
	// StageErrorSchemaTooComplex means the batch prompt cannot fit the
	// gateway's context window or token budget. Retrying the same selection
	// will not help.
	StageErrorSchemaTooComplex = "schema_too_complex"
	// StageErrorLLM covers every other gateway failure.
	StageErrorLLM = "llm_error"
)

// StageResult is the structured outcome of the enrichment stage. Gateway
// failures are converted into an error-status result at the stage boundary
// instead of propagating raw errors, so the caller always receives a
// classifiable outcome.
type StageResult struct {
	Status     string                  `json:"status"`
	ErrorType  string                  `json:"error_type,omitempty"`
	Suggestion string                  `json:"suggestion,omitempty"`
	Stats      models.EnrichmentResult `json:"stats"`
}

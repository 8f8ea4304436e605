package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TableMetadata is one catalogued dataset table. Descriptions are nil after
// extraction and filled in by enrichment.
type TableMetadata struct {
	ID          uuid.UUID `json:"id"`
	DatasetID   string    `json:"dataset_id"`
	Name        string    `json:"name"`
	RowCount    int64     `json:"row_count"`
	Description *string   `json:"description,omitempty"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ColumnMetadata is one catalogued column with profiling statistics gathered
// during extraction.
type ColumnMetadata struct {
	ID           uuid.UUID `json:"id"`
	TableID      uuid.UUID `json:"table_id"`
	Name         string    `json:"name"`
	DataType     string    `json:"data_type"`
	NullRate     float64   `json:"null_rate"`
	DistinctRate float64   `json:"distinct_rate"`
	ValuePattern *string   `json:"value_pattern,omitempty"`
	Description  *string   `json:"description,omitempty"`
	Synonyms     []string  `json:"synonyms,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// KPI is a generated key performance indicator suggestion for the catalog.
type KPI struct {
	ID          uuid.UUID `json:"id"`
	DatasetID   string    `json:"dataset_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Expression  string    `json:"expression"`
	CreatedAt   time.Time `json:"created_at"`
}

// SuggestedQuestion is a generated natural-language question the catalog can
// answer.
type SuggestedQuestion struct {
	ID        uuid.UUID `json:"id"`
	DatasetID string    `json:"dataset_id"`
	Question  string    `json:"question"`
	CreatedAt time.Time `json:"created_at"`
}

// WidgetCacheEntry caches a serialized widget/KPI result keyed by artifact id.
// Reads filter expired entries implicitly; catalog invalidation deletes all
// entries for a dataset.
type WidgetCacheEntry struct {
	ArtifactID string          `json:"artifact_id"`
	DatasetID  string          `json:"dataset_id"`
	Payload    json.RawMessage `json:"payload"`
	ComputedAt time.Time       `json:"computed_at"`
	ExpiresAt  *time.Time      `json:"expires_at,omitempty"`
}

// IsExpired reports whether the entry is past its expiry at the given time.
// Entries without an expiry never expire.
func (e *WidgetCacheEntry) IsExpired(now time.Time) bool {
	return e.ExpiresAt != nil && now.After(*e.ExpiresAt)
}

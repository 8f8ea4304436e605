package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/insightloop/catalog-engine/pkg/apperrors"
	"github.com/insightloop/catalog-engine/pkg/models"
)

// WidgetCacheRepository caches serialized widget/KPI results keyed by
// artifact id. Reads filter expired entries; a catalog invalidation deletes
// every entry for the dataset.
type WidgetCacheRepository interface {
	Get(ctx context.Context, artifactID string) (*models.WidgetCacheEntry, error)
	Put(ctx context.Context, entry *models.WidgetCacheEntry) error
	InvalidateDataset(ctx context.Context, datasetID string) error
}

type widgetCacheRepository struct {
	db DB
}

// NewWidgetCacheRepository creates a new WidgetCacheRepository.
func NewWidgetCacheRepository(db DB) WidgetCacheRepository {
	return &widgetCacheRepository{db: db}
}

var _ WidgetCacheRepository = (*widgetCacheRepository)(nil)

func (r *widgetCacheRepository) Get(ctx context.Context, artifactID string) (*models.WidgetCacheEntry, error) {
	query := `
		SELECT artifact_id, dataset_id, payload, computed_at, expires_at
		FROM catalog_widget_cache
		WHERE artifact_id = $1
		  AND (expires_at IS NULL OR expires_at > now())`

	var entry models.WidgetCacheEntry
	var payload []byte
	err := r.db.QueryRow(ctx, query, artifactID).Scan(
		&entry.ArtifactID, &entry.DatasetID, &payload, &entry.ComputedAt, &entry.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}
	entry.Payload = json.RawMessage(payload)
	return &entry, nil
}

func (r *widgetCacheRepository) Put(ctx context.Context, entry *models.WidgetCacheEntry) error {
	if entry.ComputedAt.IsZero() {
		entry.ComputedAt = time.Now()
	}

	query := `
		INSERT INTO catalog_widget_cache (artifact_id, dataset_id, payload, computed_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (artifact_id) DO UPDATE
		SET dataset_id = EXCLUDED.dataset_id,
		    payload = EXCLUDED.payload,
		    computed_at = EXCLUDED.computed_at,
		    expires_at = EXCLUDED.expires_at`

	_, err := r.db.Exec(ctx, query,
		entry.ArtifactID, entry.DatasetID, []byte(entry.Payload), entry.ComputedAt, entry.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to put cache entry: %w", err)
	}
	return nil
}

func (r *widgetCacheRepository) InvalidateDataset(ctx context.Context, datasetID string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM catalog_widget_cache WHERE dataset_id = $1`, datasetID); err != nil {
		return fmt.Errorf("failed to invalidate widget cache: %w", err)
	}
	return nil
}

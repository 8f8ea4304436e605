package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/insightloop/catalog-engine/pkg/apperrors"
	"github.com/insightloop/catalog-engine/pkg/models"
)

// CatalogRepository provides data access for catalogued tables and columns.
type CatalogRepository interface {
	UpsertTable(ctx context.Context, table *models.TableMetadata) error
	UpsertColumn(ctx context.Context, column *models.ColumnMetadata) error
	GetTable(ctx context.Context, id uuid.UUID) (*models.TableMetadata, error)
	ListTables(ctx context.Context, datasetID string) ([]models.TableMetadata, error)
	ListColumns(ctx context.Context, tableID uuid.UUID) ([]models.ColumnMetadata, error)

	// SetTablesEnabled marks the given tables enabled and every other table
	// of the dataset disabled, matching the enrichment selection.
	SetTablesEnabled(ctx context.Context, datasetID string, tableIDs []uuid.UUID) error

	UpdateTableDescription(ctx context.Context, tableID uuid.UUID, description string) error
	UpdateColumnEnrichment(ctx context.Context, columnID uuid.UUID, description string, synonyms []string) error

	// DeleteTablesNotIn removes catalog tables of the dataset whose names are
	// absent from the given list, returning how many were removed. Columns go
	// with their table via the foreign key cascade.
	DeleteTablesNotIn(ctx context.Context, datasetID string, names []string) (int, error)
}

type catalogRepository struct {
	db DB
}

// NewCatalogRepository creates a new CatalogRepository.
func NewCatalogRepository(db DB) CatalogRepository {
	return &catalogRepository{db: db}
}

var _ CatalogRepository = (*catalogRepository)(nil)

func (r *catalogRepository) UpsertTable(ctx context.Context, table *models.TableMetadata) error {
	if table.ID == uuid.Nil {
		table.ID = uuid.New()
	}
	now := time.Now()
	table.CreatedAt = now
	table.UpdatedAt = now

	query := `
		INSERT INTO catalog_tables (id, dataset_id, name, row_count, description, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (dataset_id, name) DO UPDATE
		SET row_count = EXCLUDED.row_count,
		    updated_at = EXCLUDED.updated_at
		RETURNING id`

	// On conflict the existing row keeps its id; scan it back so callers
	// always hold the canonical id for column writes.
	err := r.db.QueryRow(ctx, query,
		table.ID, table.DatasetID, table.Name, table.RowCount,
		table.Description, table.Enabled, table.CreatedAt, table.UpdatedAt,
	).Scan(&table.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert table: %w", err)
	}
	return nil
}

func (r *catalogRepository) UpsertColumn(ctx context.Context, column *models.ColumnMetadata) error {
	if column.ID == uuid.Nil {
		column.ID = uuid.New()
	}
	now := time.Now()
	column.CreatedAt = now
	column.UpdatedAt = now

	query := `
		INSERT INTO catalog_columns (id, table_id, name, data_type, null_rate, distinct_rate,
			value_pattern, description, synonyms, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (table_id, name) DO UPDATE
		SET data_type = EXCLUDED.data_type,
		    null_rate = EXCLUDED.null_rate,
		    distinct_rate = EXCLUDED.distinct_rate,
		    value_pattern = EXCLUDED.value_pattern,
		    updated_at = EXCLUDED.updated_at
		RETURNING id`

	err := r.db.QueryRow(ctx, query,
		column.ID, column.TableID, column.Name, column.DataType,
		column.NullRate, column.DistinctRate, column.ValuePattern,
		column.Description, column.Synonyms, column.CreatedAt, column.UpdatedAt,
	).Scan(&column.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert column: %w", err)
	}
	return nil
}

func (r *catalogRepository) GetTable(ctx context.Context, id uuid.UUID) (*models.TableMetadata, error) {
	query := `
		SELECT id, dataset_id, name, row_count, description, enabled, created_at, updated_at
		FROM catalog_tables
		WHERE id = $1`

	var t models.TableMetadata
	err := r.db.QueryRow(ctx, query, id).Scan(
		&t.ID, &t.DatasetID, &t.Name, &t.RowCount, &t.Description,
		&t.Enabled, &t.CreatedAt, &t.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get table: %w", err)
	}
	return &t, nil
}

func (r *catalogRepository) ListTables(ctx context.Context, datasetID string) ([]models.TableMetadata, error) {
	query := `
		SELECT id, dataset_id, name, row_count, description, enabled, created_at, updated_at
		FROM catalog_tables
		WHERE dataset_id = $1
		ORDER BY name ASC`

	rows, err := r.db.Query(ctx, query, datasetID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var tables []models.TableMetadata
	for rows.Next() {
		var t models.TableMetadata
		if err := rows.Scan(
			&t.ID, &t.DatasetID, &t.Name, &t.RowCount, &t.Description,
			&t.Enabled, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan table: %w", err)
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tables: %w", err)
	}
	return tables, nil
}

func (r *catalogRepository) ListColumns(ctx context.Context, tableID uuid.UUID) ([]models.ColumnMetadata, error) {
	query := `
		SELECT id, table_id, name, data_type, null_rate, distinct_rate,
		       value_pattern, description, synonyms, created_at, updated_at
		FROM catalog_columns
		WHERE table_id = $1
		ORDER BY name ASC`

	rows, err := r.db.Query(ctx, query, tableID)
	if err != nil {
		return nil, fmt.Errorf("failed to list columns: %w", err)
	}
	defer rows.Close()

	var columns []models.ColumnMetadata
	for rows.Next() {
		var c models.ColumnMetadata
		if err := rows.Scan(
			&c.ID, &c.TableID, &c.Name, &c.DataType, &c.NullRate, &c.DistinctRate,
			&c.ValuePattern, &c.Description, &c.Synonyms, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		columns = append(columns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate columns: %w", err)
	}
	return columns, nil
}

func (r *catalogRepository) SetTablesEnabled(ctx context.Context, datasetID string, tableIDs []uuid.UUID) error {
	query := `
		UPDATE catalog_tables
		SET enabled = (id = ANY($2)),
		    updated_at = now()
		WHERE dataset_id = $1`

	_, err := r.db.Exec(ctx, query, datasetID, tableIDs)
	if err != nil {
		return fmt.Errorf("failed to update table selection: %w", err)
	}
	return nil
}

func (r *catalogRepository) UpdateTableDescription(ctx context.Context, tableID uuid.UUID, description string) error {
	query := `
		UPDATE catalog_tables
		SET description = $2, updated_at = now()
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, tableID, description)
	if err != nil {
		return fmt.Errorf("failed to update table description: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *catalogRepository) DeleteTablesNotIn(ctx context.Context, datasetID string, names []string) (int, error) {
	query := `
		DELETE FROM catalog_tables
		WHERE dataset_id = $1
		  AND NOT (name = ANY($2))`

	tag, err := r.db.Exec(ctx, query, datasetID, names)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale tables: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *catalogRepository) UpdateColumnEnrichment(ctx context.Context, columnID uuid.UUID, description string, synonyms []string) error {
	query := `
		UPDATE catalog_columns
		SET description = $2, synonyms = $3, updated_at = now()
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, columnID, description, synonyms)
	if err != nil {
		return fmt.Errorf("failed to update column enrichment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

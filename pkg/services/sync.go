package services

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/insightloop/catalog-engine/pkg/models"
	"github.com/insightloop/catalog-engine/pkg/repositories"
)

// SyncTotalSteps is the step count of every sync job: pull, then apply.
const SyncTotalSteps = 2

// SyncTable is one upstream table definition delivered by a sync source.
type SyncTable struct {
	Name     string
	RowCount int64
	Columns  []SyncColumn
}

// SyncColumn is one upstream column definition.
type SyncColumn struct {
	Name     string
	DataType string
}

// SyncSource pulls the current table inventory from an upstream metadata
// provider. Implementations should return errors satisfying
// retry.RetryableError when they can classify transience themselves;
// otherwise the caller falls back to substring classification.
type SyncSource interface {
	Pull(ctx context.Context, sourceID string) ([]SyncTable, error)
}

// SyncService reconciles the catalog with an upstream source: upstream
// tables are upserted, tables that disappeared upstream are removed.
// Descriptions on surviving rows are preserved by the upserts.
type SyncService struct {
	source      SyncSource
	catalogRepo repositories.CatalogRepository
	cacheRepo   repositories.WidgetCacheRepository
	ledger      JobLedger
	logger      *zap.Logger
}

// NewSyncService creates a new SyncService.
func NewSyncService(
	source SyncSource,
	catalogRepo repositories.CatalogRepository,
	cacheRepo repositories.WidgetCacheRepository,
	ledger JobLedger,
	logger *zap.Logger,
) *SyncService {
	return &SyncService{
		source:      source,
		catalogRepo: catalogRepo,
		cacheRepo:   cacheRepo,
		ledger:      ledger,
		logger:      logger.Named("sync"),
	}
}

// Run executes one sync job. The returned error keeps its original type so
// the task layer can classify transience and decide on a re-run. Transient
// failures leave the ledger row running for the re-run; only permanent
// errors (or the runner's reporter after the last attempt) mark it failed,
// so completed_at is stamped once and observers never see a false terminal
// state while a re-run is still scheduled.
func (s *SyncService) Run(ctx context.Context, jobID uuid.UUID, details models.SyncDetails) error {
	scope := NewStepScope(s.ledger, jobID, s.logger)

	var upstream []SyncTable
	if err := scope.RunRetriable(ctx, "pull", func(ctx context.Context) error {
		var err error
		upstream, err = s.source.Pull(ctx, details.SourceID)
		return err
	}); err != nil {
		return err
	}

	result := models.SyncResult{}
	if err := scope.RunRetriable(ctx, "apply", func(ctx context.Context) error {
		names := make([]string, 0, len(upstream))
		for _, st := range upstream {
			if isInternalName(st.Name) {
				continue
			}
			names = append(names, st.Name)

			table := &models.TableMetadata{
				DatasetID: details.DatasetID,
				Name:      st.Name,
				RowCount:  st.RowCount,
				Enabled:   true,
			}
			if err := s.catalogRepo.UpsertTable(ctx, table); err != nil {
				return err
			}
			result.Tables++

			for _, sc := range st.Columns {
				if isInternalName(sc.Name) {
					continue
				}
				column := &models.ColumnMetadata{
					TableID:  table.ID,
					Name:     sc.Name,
					DataType: sc.DataType,
				}
				if err := s.catalogRepo.UpsertColumn(ctx, column); err != nil {
					return err
				}
				result.Columns++
			}
		}

		removed, err := s.catalogRepo.DeleteTablesNotIn(ctx, details.DatasetID, names)
		if err != nil {
			return err
		}
		result.Removed = removed

		return s.cacheRepo.InvalidateDataset(ctx, details.DatasetID)
	}); err != nil {
		return err
	}

	if err := s.ledger.UpdateResult(ctx, jobID, result); err != nil {
		return err
	}

	s.logger.Info("sync completed",
		zap.String("job_id", jobID.String()),
		zap.String("source_id", details.SourceID),
		zap.Int("tables", result.Tables),
		zap.Int("removed", result.Removed))

	return scope.Complete(ctx)
}

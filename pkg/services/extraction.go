package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/insightloop/catalog-engine/pkg/analytics"
	"github.com/insightloop/catalog-engine/pkg/models"
	"github.com/insightloop/catalog-engine/pkg/repositories"
)

// ExtractionTotalSteps is the step count of every extraction job:
// extract, then persist.
const ExtractionTotalSteps = 2

// internalPrefixes marks tables and columns that belong to internal systems
// and never enter the catalog.
var internalPrefixes = []string{"_", "sqlite_", "sys_", "pg_", "tmp_"}

func isInternalName(name string) bool {
	lower := strings.ToLower(name)
	for _, prefix := range internalPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// ExtractionService reads schema and statistics from the analytical engine
// and persists them as catalog rows. Extraction never calls the LLM;
// descriptions stay empty until enrichment.
type ExtractionService struct {
	inspector   *analytics.Inspector
	catalogRepo repositories.CatalogRepository
	cacheRepo   repositories.WidgetCacheRepository
	ledger      JobLedger
	logger      *zap.Logger
}

// NewExtractionService creates a new ExtractionService.
func NewExtractionService(
	inspector *analytics.Inspector,
	catalogRepo repositories.CatalogRepository,
	cacheRepo repositories.WidgetCacheRepository,
	ledger JobLedger,
	logger *zap.Logger,
) *ExtractionService {
	return &ExtractionService{
		inspector:   inspector,
		catalogRepo: catalogRepo,
		cacheRepo:   cacheRepo,
		ledger:      ledger,
		logger:      logger.Named("extraction"),
	}
}

// Run executes one extraction job. Failure of either step is fatal to the
// job; there is no partial-success continuation.
func (s *ExtractionService) Run(ctx context.Context, jobID uuid.UUID, details models.ExtractionDetails) error {
	scope := NewStepScope(s.ledger, jobID, s.logger)

	var profiles []*analytics.TableProfile
	if err := scope.Run(ctx, "extract", func(ctx context.Context) error {
		names, err := s.inspector.TableNames(ctx)
		if err != nil {
			return err
		}
		for _, name := range names {
			if isInternalName(name) {
				continue
			}
			profile, err := s.inspector.Profile(ctx, name)
			if err != nil {
				return err
			}
			profiles = append(profiles, profile)
		}
		return nil
	}); err != nil {
		return err
	}

	result := models.ExtractionResult{}
	if err := scope.Run(ctx, "persist", func(ctx context.Context) error {
		for _, profile := range profiles {
			table := &models.TableMetadata{
				DatasetID: details.DatasetID,
				Name:      profile.Name,
				RowCount:  profile.RowCount,
				Enabled:   true,
			}
			if err := s.catalogRepo.UpsertTable(ctx, table); err != nil {
				return err
			}
			result.Tables++

			for _, col := range profile.Columns {
				if isInternalName(col.Name) {
					continue
				}
				column := &models.ColumnMetadata{
					TableID:      table.ID,
					Name:         col.Name,
					DataType:     col.DataType,
					NullRate:     col.NullRate,
					DistinctRate: col.DistinctRate,
					ValuePattern: col.ValuePattern,
				}
				if err := s.catalogRepo.UpsertColumn(ctx, column); err != nil {
					return err
				}
				result.Columns++
			}
		}

		// A fresh extraction supersedes every cached widget result.
		return s.cacheRepo.InvalidateDataset(ctx, details.DatasetID)
	}); err != nil {
		return err
	}

	if err := s.ledger.UpdateResult(ctx, jobID, result); err != nil {
		return err
	}

	s.logger.Info("extraction completed",
		zap.String("job_id", jobID.String()),
		zap.Int("tables", result.Tables),
		zap.Int("columns", result.Columns))

	return scope.Complete(ctx)
}

package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/insightloop/catalog-engine/pkg/llm"
	"github.com/insightloop/catalog-engine/pkg/models"
	"github.com/insightloop/catalog-engine/pkg/prompts"
	"github.com/insightloop/catalog-engine/pkg/repositories"
)

// widgetCacheTTL bounds how long generated KPI payloads stay servable without
// recomputation.
const widgetCacheTTL = 24 * time.Hour

// KPIGenerationService asks the gateway for KPI suggestions over the enriched
// catalog and replaces the dataset's stored KPIs with the result.
type KPIGenerationService struct {
	caller      *GatewayCaller
	insightRepo repositories.InsightRepository
	cacheRepo   repositories.WidgetCacheRepository
	logger      *zap.Logger
}

// NewKPIGenerationService creates a new KPIGenerationService.
func NewKPIGenerationService(
	caller *GatewayCaller,
	insightRepo repositories.InsightRepository,
	cacheRepo repositories.WidgetCacheRepository,
	logger *zap.Logger,
) *KPIGenerationService {
	return &KPIGenerationService{
		caller:      caller,
		insightRepo: insightRepo,
		cacheRepo:   cacheRepo,
		logger:      logger.Named("kpi_generation"),
	}
}

type kpiResponse struct {
	KPIs []struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Expression  string `json:"expression"`
	} `json:"kpis"`
}

// Generate produces and stores KPI suggestions for the dataset, returning how
// many were kept. Suggestions without a name or expression are dropped.
func (s *KPIGenerationService) Generate(ctx context.Context, datasetID string, tables []prompts.TableContext) (int, error) {
	result, err := s.caller.Call(ctx, prompts.KPIGeneration(tables), prompts.EnrichmentSystem())
	if err != nil {
		return 0, err
	}

	var resp kpiResponse
	if err := json.Unmarshal([]byte(llm.ExtractJSON(result.Content)), &resp); err != nil {
		return 0, fmt.Errorf("failed to parse kpi response: %w", err)
	}

	var kpis []models.KPI
	for _, k := range resp.KPIs {
		if k.Name == "" || k.Expression == "" {
			continue
		}
		kpis = append(kpis, models.KPI{
			Name:        k.Name,
			Description: k.Description,
			Expression:  k.Expression,
		})
	}

	if err := s.insightRepo.ReplaceKPIs(ctx, datasetID, kpis); err != nil {
		return 0, err
	}
	if err := s.refreshCache(ctx, datasetID, kpis); err != nil {
		// The cache is an optimization; a write failure does not undo the
		// stored KPIs.
		s.logger.Warn("failed to refresh kpi widget cache",
			zap.String("dataset_id", datasetID), zap.Error(err))
	}

	s.logger.Info("kpi generation completed",
		zap.String("dataset_id", datasetID),
		zap.Int("kpis", len(kpis)))
	return len(kpis), nil
}

func (s *KPIGenerationService) refreshCache(ctx context.Context, datasetID string, kpis []models.KPI) error {
	payload, err := json.Marshal(kpis)
	if err != nil {
		return err
	}
	expires := time.Now().Add(widgetCacheTTL)
	return s.cacheRepo.Put(ctx, &models.WidgetCacheEntry{
		ArtifactID: "kpis:" + datasetID,
		DatasetID:  datasetID,
		Payload:    payload,
		ExpiresAt:  &expires,
	})
}

package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/insightloop/catalog-engine/pkg/apperrors"
	"github.com/insightloop/catalog-engine/pkg/llm"
	"github.com/insightloop/catalog-engine/pkg/models"
	"github.com/insightloop/catalog-engine/pkg/prompts"
	"github.com/insightloop/catalog-engine/pkg/repositories"
)

// DefaultBatchSize bounds the number of tables enriched per gateway call.
const DefaultBatchSize = 15

// minDescriptionLength is the completeness rule: shorter descriptions count
// as warnings rather than usable enrichment.
const minDescriptionLength = 10

// NumBatches returns how many gateway calls a table selection needs.
func NumBatches(tableCount, batchSize int) int {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	return (tableCount + batchSize - 1) / batchSize
}

// EnrichmentTotalSteps computes the step count of an enrichment job:
// update-enabled, fetch-context, N batches, save-descriptions,
// generate-kpis, generate-questions.
func EnrichmentTotalSteps(tableCount, batchSize int) int {
	return 2 + NumBatches(tableCount, batchSize) + 3
}

// EnrichmentService runs the batched LLM enrichment stage over a table
// selection. KPI and question generation are non-fatal sub-stages: their
// failures are recorded as stats while the job still completes.
type EnrichmentService struct {
	catalogRepo repositories.CatalogRepository
	ledger      JobLedger
	caller      *GatewayCaller
	kpis        *KPIGenerationService
	questions   *QuestionGenerationService
	logger      *zap.Logger
}

// NewEnrichmentService creates a new EnrichmentService.
func NewEnrichmentService(
	catalogRepo repositories.CatalogRepository,
	ledger JobLedger,
	caller *GatewayCaller,
	kpis *KPIGenerationService,
	questions *QuestionGenerationService,
	logger *zap.Logger,
) *EnrichmentService {
	return &EnrichmentService{
		catalogRepo: catalogRepo,
		ledger:      ledger,
		caller:      caller,
		kpis:        kpis,
		questions:   questions,
		logger:      logger.Named("enrichment"),
	}
}

// tableEnrichment is what one gateway response contributes for one table.
type tableEnrichment struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Columns     []struct {
		Name        string   `json:"name"`
		Description string   `json:"description"`
		Synonyms    []string `json:"synonyms"`
	} `json:"columns"`
}

type enrichmentResponse struct {
	Tables []tableEnrichment `json:"tables"`
}

// Run executes one enrichment job. Gateway failures surface as an
// error-status StageResult; the job's ledger row is already terminal either
// way when Run returns.
func (s *EnrichmentService) Run(ctx context.Context, jobID uuid.UUID, details models.EnrichmentDetails) *StageResult {
	scope := NewStepScope(s.ledger, jobID, s.logger)

	batchSize := details.BatchSize
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}

	if err := scope.Run(ctx, "update_enabled", func(ctx context.Context) error {
		return s.catalogRepo.SetTablesEnabled(ctx, details.DatasetID, details.TableIDs)
	}); err != nil {
		return s.errorResult(err)
	}

	var (
		contexts  []prompts.TableContext
		tableIDs  map[string]uuid.UUID
		columnIDs map[string]map[string]uuid.UUID
	)
	if err := scope.Run(ctx, "fetch_context", func(ctx context.Context) error {
		var err error
		contexts, tableIDs, columnIDs, err = s.fetchContext(ctx, details)
		return err
	}); err != nil {
		return s.errorResult(err)
	}

	numBatches := NumBatches(len(contexts), batchSize)
	enriched := make([]tableEnrichment, 0, len(contexts))

	for batch := 0; batch < numBatches; batch++ {
		lo := batch * batchSize
		hi := lo + batchSize
		if hi > len(contexts) {
			hi = len(contexts)
		}
		stepName := fmt.Sprintf("enrich_batch_%d", batch+1)

		if err := scope.Run(ctx, stepName, func(ctx context.Context) error {
			resp, err := s.enrichBatch(ctx, contexts[lo:hi])
			if err != nil {
				return err
			}
			enriched = append(enriched, resp.Tables...)
			return nil
		}); err != nil {
			return s.errorResult(err)
		}
	}

	stats := models.EnrichmentResult{}
	if err := scope.Run(ctx, "save_descriptions", func(ctx context.Context) error {
		return s.persist(ctx, enriched, tableIDs, columnIDs, &stats)
	}); err != nil {
		return s.errorResult(err)
	}

	// KPI and question generation are non-fatal: a failure after their own
	// retries becomes a warning stat and the job still completes.
	if err := scope.RunNonFatal(ctx, "generate_kpis", func(ctx context.Context) error {
		count, err := s.kpis.Generate(ctx, details.DatasetID, contexts)
		stats.KPIs = count
		return err
	}); err != nil {
		stats.KPIsError = llm.ClassifyError(err).Message
	}

	if err := scope.RunNonFatal(ctx, "generate_questions", func(ctx context.Context) error {
		count, err := s.questions.Generate(ctx, details.DatasetID, contexts)
		stats.Questions = count
		return err
	}); err != nil {
		stats.QuestionsError = llm.ClassifyError(err).Message
	}

	if err := s.ledger.UpdateResult(ctx, jobID, stats); err != nil {
		return s.errorResult(err)
	}
	if err := scope.Complete(ctx); err != nil {
		return s.errorResult(err)
	}

	s.logger.Info("enrichment completed",
		zap.String("job_id", jobID.String()),
		zap.Int("tables", stats.Tables),
		zap.Int("columns", stats.Columns),
		zap.Int("warnings", stats.Warnings))

	return &StageResult{Status: StageStatusOK, Stats: stats}
}

func (s *EnrichmentService) fetchContext(ctx context.Context, details models.EnrichmentDetails) (
	[]prompts.TableContext, map[string]uuid.UUID, map[string]map[string]uuid.UUID, error,
) {
	tables, err := s.catalogRepo.ListTables(ctx, details.DatasetID)
	if err != nil {
		return nil, nil, nil, err
	}

	selected := make(map[uuid.UUID]bool, len(details.TableIDs))
	for _, id := range details.TableIDs {
		selected[id] = true
	}

	var contexts []prompts.TableContext
	tableIDs := make(map[string]uuid.UUID)
	columnIDs := make(map[string]map[string]uuid.UUID)

	for _, table := range tables {
		if !selected[table.ID] {
			continue
		}

		columns, err := s.catalogRepo.ListColumns(ctx, table.ID)
		if err != nil {
			return nil, nil, nil, err
		}

		tc := prompts.TableContext{Name: table.Name, RowCount: table.RowCount}
		columnIDs[table.Name] = make(map[string]uuid.UUID, len(columns))
		for _, col := range columns {
			cc := prompts.ColumnContext{
				Name:         col.Name,
				DataType:     col.DataType,
				NullRate:     col.NullRate,
				DistinctRate: col.DistinctRate,
			}
			if col.ValuePattern != nil {
				cc.ValuePattern = *col.ValuePattern
			}
			tc.Columns = append(tc.Columns, cc)
			columnIDs[table.Name][col.Name] = col.ID
		}

		contexts = append(contexts, tc)
		tableIDs[table.Name] = table.ID
	}

	return contexts, tableIDs, columnIDs, nil
}

func (s *EnrichmentService) enrichBatch(ctx context.Context, batch []prompts.TableContext) (*enrichmentResponse, error) {
	result, err := s.caller.Call(ctx, prompts.EnrichmentBatch(batch), prompts.EnrichmentSystem())
	if err != nil {
		return nil, err
	}

	var resp enrichmentResponse
	if err := json.Unmarshal([]byte(llm.ExtractJSON(result.Content)), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse enrichment response: %w", err)
	}
	return &resp, nil
}

func (s *EnrichmentService) persist(
	ctx context.Context,
	enriched []tableEnrichment,
	tableIDs map[string]uuid.UUID,
	columnIDs map[string]map[string]uuid.UUID,
	stats *models.EnrichmentResult,
) error {
	for _, te := range enriched {
		tableID, ok := tableIDs[te.Name]
		if !ok {
			// The model hallucinated a table; count it as a warning.
			stats.Warnings++
			continue
		}

		if len(te.Description) >= minDescriptionLength {
			if err := s.catalogRepo.UpdateTableDescription(ctx, tableID, te.Description); err != nil {
				return err
			}
			stats.Tables++
		} else {
			stats.Warnings++
		}

		for _, ce := range te.Columns {
			columnID, ok := columnIDs[te.Name][ce.Name]
			if !ok {
				stats.Warnings++
				continue
			}
			if len(ce.Description) < minDescriptionLength {
				stats.Warnings++
				continue
			}
			if err := s.catalogRepo.UpdateColumnEnrichment(ctx, columnID, ce.Description, ce.Synonyms); err != nil {
				return err
			}
			stats.Columns++
			stats.Synonyms += len(ce.Synonyms)
		}
	}
	return nil
}

// errorResult classifies a stage failure into the fixed error vocabulary.
// The ledger row is already failed by the step scope when this runs.
func (s *EnrichmentService) errorResult(err error) *StageResult {
	result := &StageResult{Status: StageStatusError}

	switch {
	case errors.Is(err, apperrors.ErrTokenBudgetExceeded), llm.IsContextLength(err):
		result.ErrorType = StageErrorSchemaTooComplex
		result.Suggestion = "Select fewer tables or reduce the batch size."
	default:
		result.ErrorType = StageErrorLLM
		result.Suggestion = "Check the LLM gateway configuration and retry the job."
	}

	return result
}

package services

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/insightloop/catalog-engine/pkg/llm"
	"github.com/insightloop/catalog-engine/pkg/models"
	"github.com/insightloop/catalog-engine/pkg/prompts"
	"github.com/insightloop/catalog-engine/pkg/repositories"
)

// QuestionGenerationService asks the gateway for suggested analytical
// questions and replaces the dataset's stored questions with the result.
type QuestionGenerationService struct {
	caller      *GatewayCaller
	insightRepo repositories.InsightRepository
	logger      *zap.Logger
}

// NewQuestionGenerationService creates a new QuestionGenerationService.
func NewQuestionGenerationService(
	caller *GatewayCaller,
	insightRepo repositories.InsightRepository,
	logger *zap.Logger,
) *QuestionGenerationService {
	return &QuestionGenerationService{
		caller:      caller,
		insightRepo: insightRepo,
		logger:      logger.Named("question_generation"),
	}
}

type questionResponse struct {
	Questions []string `json:"questions"`
}

// Generate produces and stores suggested questions for the dataset, returning
// how many were kept. Empty suggestions are dropped.
func (s *QuestionGenerationService) Generate(ctx context.Context, datasetID string, tables []prompts.TableContext) (int, error) {
	result, err := s.caller.Call(ctx, prompts.QuestionGeneration(tables), prompts.EnrichmentSystem())
	if err != nil {
		return 0, err
	}

	var resp questionResponse
	if err := json.Unmarshal([]byte(llm.ExtractJSON(result.Content)), &resp); err != nil {
		return 0, fmt.Errorf("failed to parse question response: %w", err)
	}

	var questions []models.SuggestedQuestion
	for _, q := range resp.Questions {
		if q == "" {
			continue
		}
		questions = append(questions, models.SuggestedQuestion{Question: q})
	}

	if err := s.insightRepo.ReplaceQuestions(ctx, datasetID, questions); err != nil {
		return 0, err
	}

	s.logger.Info("question generation completed",
		zap.String("dataset_id", datasetID),
		zap.Int("questions", len(questions)))
	return len(questions), nil
}

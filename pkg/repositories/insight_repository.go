package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/insightloop/catalog-engine/pkg/models"
)

// InsightRepository provides data access for generated KPIs and suggested
// questions. Each generation pass replaces the previous suggestions for the
// dataset.
type InsightRepository interface {
	ReplaceKPIs(ctx context.Context, datasetID string, kpis []models.KPI) error
	ListKPIs(ctx context.Context, datasetID string) ([]models.KPI, error)
	ReplaceQuestions(ctx context.Context, datasetID string, questions []models.SuggestedQuestion) error
	ListQuestions(ctx context.Context, datasetID string) ([]models.SuggestedQuestion, error)
}

type insightRepository struct {
	db DB
}

// NewInsightRepository creates a new InsightRepository.
func NewInsightRepository(db DB) InsightRepository {
	return &insightRepository{db: db}
}

var _ InsightRepository = (*insightRepository)(nil)

func (r *insightRepository) ReplaceKPIs(ctx context.Context, datasetID string, kpis []models.KPI) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM catalog_kpis WHERE dataset_id = $1`, datasetID); err != nil {
		return fmt.Errorf("failed to clear kpis: %w", err)
	}

	query := `
		INSERT INTO catalog_kpis (id, dataset_id, name, description, expression, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	now := time.Now()
	for i := range kpis {
		kpi := &kpis[i]
		if kpi.ID == uuid.Nil {
			kpi.ID = uuid.New()
		}
		kpi.DatasetID = datasetID
		kpi.CreatedAt = now
		if _, err := r.db.Exec(ctx, query,
			kpi.ID, kpi.DatasetID, kpi.Name, kpi.Description, kpi.Expression, kpi.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert kpi: %w", err)
		}
	}
	return nil
}

func (r *insightRepository) ListKPIs(ctx context.Context, datasetID string) ([]models.KPI, error) {
	query := `
		SELECT id, dataset_id, name, description, expression, created_at
		FROM catalog_kpis
		WHERE dataset_id = $1
		ORDER BY name ASC`

	rows, err := r.db.Query(ctx, query, datasetID)
	if err != nil {
		return nil, fmt.Errorf("failed to list kpis: %w", err)
	}
	defer rows.Close()

	var kpis []models.KPI
	for rows.Next() {
		var k models.KPI
		if err := rows.Scan(&k.ID, &k.DatasetID, &k.Name, &k.Description, &k.Expression, &k.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan kpi: %w", err)
		}
		kpis = append(kpis, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate kpis: %w", err)
	}
	return kpis, nil
}

func (r *insightRepository) ReplaceQuestions(ctx context.Context, datasetID string, questions []models.SuggestedQuestion) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM catalog_questions WHERE dataset_id = $1`, datasetID); err != nil {
		return fmt.Errorf("failed to clear questions: %w", err)
	}

	query := `
		INSERT INTO catalog_questions (id, dataset_id, question, created_at)
		VALUES ($1, $2, $3, $4)`

	now := time.Now()
	for i := range questions {
		q := &questions[i]
		if q.ID == uuid.Nil {
			q.ID = uuid.New()
		}
		q.DatasetID = datasetID
		q.CreatedAt = now
		if _, err := r.db.Exec(ctx, query, q.ID, q.DatasetID, q.Question, q.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert question: %w", err)
		}
	}
	return nil
}

func (r *insightRepository) ListQuestions(ctx context.Context, datasetID string) ([]models.SuggestedQuestion, error) {
	query := `
		SELECT id, dataset_id, question, created_at
		FROM catalog_questions
		WHERE dataset_id = $1
		ORDER BY created_at ASC`

	rows, err := r.db.Query(ctx, query, datasetID)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	defer rows.Close()

	var questions []models.SuggestedQuestion
	for rows.Next() {
		var q models.SuggestedQuestion
		if err := rows.Scan(&q.ID, &q.DatasetID, &q.Question, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate questions: %w", err)
	}
	return questions, nil
}

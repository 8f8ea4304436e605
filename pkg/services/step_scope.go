package services

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/insightloop/catalog-engine/pkg/logging"
	"github.com/insightloop/catalog-engine/pkg/models"
	"github.com/insightloop/catalog-engine/pkg/repositories"
	"github.com/insightloop/catalog-engine/pkg/retry"
)

// StepScope wraps the pipeline steps of one job. On entry it marks the job
// running at the current step index; on success it advances the index; on
// failure it marks the job failed with a sanitized message before the error
// propagates. The ledger is therefore never left at "running" after a step
// fails, without each stage having to remember its own status writes.
//
// The step index is single-writer: a scope belongs to exactly one pipeline
// run and must not be shared across goroutines.
type StepScope struct {
	ledger JobLedger
	jobID  uuid.UUID
	index  int
	logger *zap.Logger
}

// NewStepScope creates a step scope for one job execution, starting at step 0.
func NewStepScope(ledger JobLedger, jobID uuid.UUID, logger *zap.Logger) *StepScope {
	return &StepScope{
		ledger: ledger,
		jobID:  jobID,
		logger: logger.Named("step"),
	}
}

// Index returns the current step index.
func (s *StepScope) Index() int {
	return s.index
}

// Run executes one named pipeline step. The returned error is the step's own
// error, already reflected in the ledger.
func (s *StepScope) Run(ctx context.Context, stepName string, fn func(ctx context.Context) error) error {
	idx := s.index
	if _, err := s.ledger.UpdateStatus(ctx, s.jobID, repositories.JobStatusUpdate{
		Status:      models.JobStatusRunning,
		CurrentStep: &stepName,
		StepIndex:   &idx,
	}); err != nil {
		return err
	}

	s.logger.Info("step started",
		zap.String("job_id", s.jobID.String()),
		zap.String("step", stepName),
		zap.Int("step_index", idx))

	if err := fn(ctx); err != nil {
		s.markFailed(ctx, stepName, err)
		return err
	}

	s.index = idx + 1
	return nil
}

// RunRetriable executes one named step whose transient failures are re-run
// by the task layer. A transient error leaves the job running so the
// scheduled re-run continues the same ledger row; only permanent errors
// drive it to failed here. Marking the job failed after the last attempt is
// the runner's failure reporter's responsibility.
func (s *StepScope) RunRetriable(ctx context.Context, stepName string, fn func(ctx context.Context) error) error {
	idx := s.index
	if _, err := s.ledger.UpdateStatus(ctx, s.jobID, repositories.JobStatusUpdate{
		Status:      models.JobStatusRunning,
		CurrentStep: &stepName,
		StepIndex:   &idx,
	}); err != nil {
		return err
	}

	s.logger.Info("step started",
		zap.String("job_id", s.jobID.String()),
		zap.String("step", stepName),
		zap.Int("step_index", idx))

	if err := fn(ctx); err != nil {
		if retry.IsRetryable(err) {
			s.logger.Warn("step failed, job left running for re-run",
				zap.String("job_id", s.jobID.String()),
				zap.String("step", stepName),
				zap.Error(err))
			return err
		}
		s.markFailed(ctx, stepName, err)
		return err
	}

	s.index = idx + 1
	return nil
}

// RunNonFatal executes one named step whose failure must not fail the job.
// The step index advances either way; the error is returned for the caller
// to record as a warning stat.
func (s *StepScope) RunNonFatal(ctx context.Context, stepName string, fn func(ctx context.Context) error) error {
	idx := s.index
	if _, err := s.ledger.UpdateStatus(ctx, s.jobID, repositories.JobStatusUpdate{
		Status:      models.JobStatusRunning,
		CurrentStep: &stepName,
		StepIndex:   &idx,
	}); err != nil {
		return err
	}

	s.logger.Info("step started",
		zap.String("job_id", s.jobID.String()),
		zap.String("step", stepName),
		zap.Int("step_index", idx))

	err := fn(ctx)
	if err != nil {
		s.logger.Warn("non-fatal step failed",
			zap.String("job_id", s.jobID.String()),
			zap.String("step", stepName),
			zap.Error(err))
	}

	s.index = idx + 1
	return err
}

// Complete marks the job completed. Call once after the last step succeeds.
func (s *StepScope) Complete(ctx context.Context) error {
	_, err := s.ledger.UpdateStatus(ctx, s.jobID, repositories.JobStatusUpdate{
		Status: models.JobStatusCompleted,
	})
	return err
}

// Fail marks the job failed outside of a step, for errors raised at the
// stage boundary.
func (s *StepScope) Fail(ctx context.Context, err error) {
	s.markFailed(ctx, "", err)
}

func (s *StepScope) markFailed(ctx context.Context, stepName string, cause error) {
	msg := logging.SanitizeError(cause)
	if _, err := s.ledger.UpdateStatus(ctx, s.jobID, repositories.JobStatusUpdate{
		Status:       models.JobStatusFailed,
		ErrorMessage: &msg,
	}); err != nil {
		s.logger.Error("failed to record step failure",
			zap.String("job_id", s.jobID.String()),
			zap.String("step", stepName),
			zap.Error(err))
	}
}

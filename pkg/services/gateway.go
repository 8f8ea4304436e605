package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/insightloop/catalog-engine/pkg/apperrors"
	"github.com/insightloop/catalog-engine/pkg/llm"
	"github.com/insightloop/catalog-engine/pkg/retry"
)

// GatewayCaller funnels every LLM call through the token budget check, the
// circuit breaker and bounded retry. All pipeline stages share one instance
// so failures accumulate on a single breaker per gateway.
type GatewayCaller struct {
	gateway     llm.Gateway
	breaker     *llm.CircuitBreaker
	retryConfig *retry.Config
	tokenBudget int
	maxTokens   int
	logger      *zap.Logger
}

// NewGatewayCaller creates a guarded caller for the given gateway.
func NewGatewayCaller(
	gateway llm.Gateway,
	breaker *llm.CircuitBreaker,
	retryConfig *retry.Config,
	tokenBudget int,
	maxTokens int,
	logger *zap.Logger,
) *GatewayCaller {
	return &GatewayCaller{
		gateway:     gateway,
		breaker:     breaker,
		retryConfig: retryConfig,
		tokenBudget: tokenBudget,
		maxTokens:   maxTokens,
		logger:      logger.Named("gateway"),
	}
}

// Call performs one guarded, budget-checked gateway call with bounded retry
// on transient failures.
func (g *GatewayCaller) Call(ctx context.Context, prompt, systemPrompt string) (*llm.CompletionResult, error) {
	estimated, check := llm.CheckBudget(prompt+systemPrompt, g.tokenBudget)
	switch check {
	case llm.BudgetExceeded:
		return nil, fmt.Errorf("%w: estimated %d tokens, budget %d",
			apperrors.ErrTokenBudgetExceeded, estimated, g.tokenBudget)
	case llm.BudgetWarn:
		g.logger.Warn("prompt approaching token budget",
			zap.Int("estimated_tokens", estimated),
			zap.Int("budget", g.tokenBudget))
	}

	var result *llm.CompletionResult
	err := retry.DoIfRetryable(ctx, g.retryConfig, func() error {
		allowed, allowErr := g.breaker.AllowRequest()
		if !allowed {
			// Breaker rejections are permanent from the retry loop's point
			// of view; the cooldown is much longer than any backoff.
			return llm.NewError(llm.ErrorTypeEndpoint, "circuit breaker rejected request", false, allowErr)
		}

		res, callErr := g.gateway.Complete(ctx, prompt, systemPrompt, g.maxTokens)
		if callErr != nil {
			classified := llm.ClassifyError(callErr)
			if classified.Retryable {
				g.breaker.RecordFailure()
			} else {
				// A permanent classification means the gateway answered;
				// the dependency itself is healthy.
				g.breaker.RecordSuccess()
			}
			return classified
		}

		g.breaker.RecordSuccess()
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// BreakerStatus exposes the breaker snapshot for the status endpoint.
func (g *GatewayCaller) BreakerStatus() llm.CircuitBreakerStatus {
	return g.breaker.GetStatus()
}

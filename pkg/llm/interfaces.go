// Package llm provides clients for the text-generation gateway used by the
// catalog enrichment pipeline, plus the circuit breaker that guards it.
package llm

import (
	"context"
)

// CompletionResult is the outcome of one gateway call.
type CompletionResult struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Gateway defines the interface for LLM gateway operations.
// Use this interface for dependency injection to enable mocking in tests.
type Gateway interface {
	// Complete generates a completion for the given prompt.
	Complete(ctx context.Context, prompt, systemPrompt string, maxTokens int) (*CompletionResult, error)

	// Model returns the configured model name.
	Model() string

	// Endpoint returns the configured endpoint.
	Endpoint() string
}

// Ensure clients implement Gateway at compile time.
var (
	_ Gateway = (*Client)(nil)
	_ Gateway = (*AnthropicClient)(nil)
	_ Gateway = (*MockGateway)(nil)
)

package llm

import (
	"context"
	"sync"
)

// MockGateway is a test double for the Gateway interface.
type MockGateway struct {
	mu sync.Mutex

	// CompleteFunc overrides Complete when set.
	CompleteFunc func(ctx context.Context, prompt, systemPrompt string, maxTokens int) (*CompletionResult, error)

	// Response is returned when CompleteFunc is nil.
	Response *CompletionResult
	// Err is returned when CompleteFunc is nil and Err is set.
	Err error

	// Calls records every prompt passed to Complete.
	Calls []string
}

// Complete implements Gateway.
func (m *MockGateway) Complete(ctx context.Context, prompt, systemPrompt string, maxTokens int) (*CompletionResult, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, prompt)
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, prompt, systemPrompt, maxTokens)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Response != nil {
		return m.Response, nil
	}
	return &CompletionResult{Content: "{}"}, nil
}

// CallCount returns the number of Complete invocations.
func (m *MockGateway) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// Model implements Gateway.
func (m *MockGateway) Model() string { return "mock" }

// Endpoint implements Gateway.
func (m *MockGateway) Endpoint() string { return "mock://" }

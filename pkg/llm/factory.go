package llm

import (
	"fmt"

	"go.uber.org/zap"
)

// NewGateway creates a gateway client for the configured provider.
// Supported providers: "openai" (any OpenAI-compatible endpoint), "anthropic".
func NewGateway(provider string, cfg *Config, logger *zap.Logger) (Gateway, error) {
	switch provider {
	case "", "openai":
		return NewClient(cfg, logger)
	case "anthropic":
		return NewAnthropicClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", provider)
	}
}

package llm

import (
	"context"
	"fmt"
	"strings"
)

// Supported providers.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Config selects and configures a backend.
type Config struct {
	Provider string
	BaseURL  string
	APIKey   string
}

// NewClient creates the raw backend named by cfg.Provider. Callers normally
// wrap it with NewResilient.
func NewClient(ctx context.Context, cfg Config) (Client, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderOllama:
		return NewOllama(cfg.BaseURL), nil
	case ProviderOpenAI:
		return NewOpenAICompatible(cfg.BaseURL, cfg.APIKey), nil
	case ProviderGemini:
		return NewGemini(ctx, cfg.APIKey)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}

package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// LangChain serves Generate through langchaingo models, one per distinct
// (name, num_ctx) pair, created lazily and reused across calls.
type LangChain struct {
	newModel func(m Model) (llms.Model, error)

	mu     sync.Mutex
	models map[Model]llms.Model
}

// NewOllama returns a backend for an Ollama server, e.g. http://localhost:11434.
func NewOllama(serverURL string) *LangChain {
	return &LangChain{
		newModel: func(m Model) (llms.Model, error) {
			opts := []ollama.Option{ollama.WithModel(m.Name)}
			if serverURL != "" {
				opts = append(opts, ollama.WithServerURL(serverURL))
			}
			if m.NumCtx > 0 {
				opts = append(opts, ollama.WithRunnerNumCtx(m.NumCtx))
			}
			return ollama.New(opts...)
		},
		models: make(map[Model]llms.Model),
	}
}

// NewOpenAICompatible returns a backend for any OpenAI-compatible endpoint.
// The context window is fixed server side, so Model.NumCtx is not sent.
func NewOpenAICompatible(baseURL, apiKey string) *LangChain {
	return &LangChain{
		newModel: func(m Model) (llms.Model, error) {
			opts := []openai.Option{openai.WithModel(m.Name), openai.WithToken(apiKey)}
			if baseURL != "" {
				opts = append(opts, openai.WithBaseURL(baseURL))
			}
			return openai.New(opts...)
		},
		models: make(map[Model]llms.Model),
	}
}

func (c *LangChain) Generate(ctx context.Context, model Model, prompt string) (string, error) {
	m, err := c.model(model)
	if err != nil {
		return "", err
	}

	out, err := llms.GenerateFromSinglePrompt(ctx, m, prompt)
	if err != nil {
		return "", fmt.Errorf("LangChain.Generate: %s: %w", model.Name, err)
	}
	return out, nil
}

func (c *LangChain) model(model Model) (llms.Model, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if m, ok := c.models[model]; ok {
		return m, nil
	}
	m, err := c.newModel(model)
	if err != nil {
		return nil, fmt.Errorf("LangChain.model: create %s: %w", model.Name, err)
	}
	c.models[model] = m
	return m, nil
}

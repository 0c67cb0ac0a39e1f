package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Gemini generates text with the Gemini API. Gemini manages the context
// window itself, so Model.NumCtx is ignored.
type Gemini struct {
	client *genai.Client
}

// NewGemini creates a Gemini backend. An empty apiKey falls back to the
// GOOGLE_API_KEY / Vertex settings genai reads from the environment.
func NewGemini(ctx context.Context, apiKey string) (*Gemini, error) {
	cfg := &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	}
	if apiKey != "" {
		cfg.APIKey = apiKey
		cfg.Backend = genai.BackendGeminiAPI
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("NewGemini: creating genai client: %w", err)
	}
	return &Gemini{client: client}, nil
}

// GenAI exposes the underlying client for callers sending non-text parts.
func (g *Gemini) GenAI() *genai.Client {
	return g.client
}

func (g *Gemini) Generate(ctx context.Context, model Model, prompt string) (string, error) {
	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: prompt}},
		},
	}

	resp, err := g.client.Models.GenerateContent(ctx, model.Name, contents, nil)
	if err != nil {
		return "", fmt.Errorf("Gemini.Generate: %s: %w", model.Name, err)
	}
	return resp.Text(), nil
}

package pipeline

import (
	"context"
	"strings"
	"sync"

	"github.com/dhruvdixit03/bank-statement-analyzer/internal/llm"
)

var testModels = Models{
	Summary:   llm.Model{Name: "summary", NumCtx: 4096},
	Reasoning: llm.Model{Name: "reasoning", NumCtx: 8192},
	Classify:  llm.Model{Name: "classify", NumCtx: 8192},
	Aggregate: llm.Model{Name: "aggregate", NumCtx: 8192},
	Chat:      llm.Model{Name: "chat", NumCtx: 8192},
}

type call struct {
	Model  string
	Prompt string
}

// mockClient answers by model name and records every call.
type mockClient struct {
	mu        sync.Mutex
	calls     []call
	responses map[string]func(prompt string) (string, error)
}

func newMockClient() *mockClient {
	return &mockClient{responses: make(map[string]func(string) (string, error))}
}

func (m *mockClient) on(model string, fn func(prompt string) (string, error)) *mockClient {
	m.responses[model] = fn
	return m
}

func (m *mockClient) reply(model, text string) *mockClient {
	return m.on(model, func(string) (string, error) { return text, nil })
}

func (m *mockClient) Generate(ctx context.Context, model llm.Model, prompt string) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, call{Model: model.Name, Prompt: prompt})
	fn := m.responses[model.Name]
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if fn == nil {
		return "ok from " + model.Name, nil
	}
	return fn(prompt)
}

func (m *mockClient) callsFor(model string) []call {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []call
	for _, c := range m.calls {
		if c.Model == model {
			out = append(out, c)
		}
	}
	return out
}

func (m *mockClient) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// tableOf returns the table embedded at the end of a per-table prompt.
func tableOf(prompt string) string {
	idx := strings.Index(prompt, "\n\n|")
	if idx == -1 {
		return ""
	}
	return prompt[idx+2:]
}

// Package llm is the boundary to the language-model inference backends.
//
// Every backend satisfies Client: a model identity and a prompt go in, text
// comes out. Backends are safe for concurrent use, so a single Client is
// shared by all pipeline workers. Resilient wraps any Client with per-call
// timeouts, bounded retries and rate limiting.
package llm

import (
	"context"
	"errors"
)

var (
	// ErrEmptyResponse is returned when a backend answers with no text.
	ErrEmptyResponse = errors.New("llm: empty response")

	// ErrRetriesExhausted wraps the last failure once every attempt failed.
	ErrRetriesExhausted = errors.New("llm: retries exhausted")
)

// Model identifies a model and the context window it runs with.
type Model struct {
	Name   string `mapstructure:"name" json:"name"`
	NumCtx int    `mapstructure:"num_ctx" json:"num_ctx"`
}

// Client generates text for a prompt.
type Client interface {
	Generate(ctx context.Context, model Model, prompt string) (string, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, model Model, prompt string) (string, error)

func (f ClientFunc) Generate(ctx context.Context, model Model, prompt string) (string, error) {
	return f(ctx, model, prompt)
}

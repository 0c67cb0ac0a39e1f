package pipeline

import (
	"context"
)

// RunRecorder keeps an audit trail of runs. The pipeline only writes to
// it, and a recorder failure never changes a run's outcome.
type RunRecorder interface {
	StartRun(ctx context.Context, runID, document string) error
	// RecordModelOutput stores a raw model answer before it is parsed.
	RecordModelOutput(ctx context.Context, runID, stage, model, output string) error
	MarkRunSucceeded(ctx context.Context, runID string, tables, summaries int) error
	// MarkRunFailed logs its own errors.
	MarkRunFailed(ctx context.Context, runID, stage string, runErr error)
}

// NopRecorder records nothing.
type NopRecorder struct{}

func (NopRecorder) StartRun(context.Context, string, string) error { return nil }

func (NopRecorder) RecordModelOutput(context.Context, string, string, string, string) error {
	return nil
}

func (NopRecorder) MarkRunSucceeded(context.Context, string, int, int) error { return nil }

func (NopRecorder) MarkRunFailed(context.Context, string, string, error) {}

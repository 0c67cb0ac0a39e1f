package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dhruvdixit03/bank-statement-analyzer/internal/converter"
	"github.com/dhruvdixit03/bank-statement-analyzer/internal/llm"
	"github.com/dhruvdixit03/bank-statement-analyzer/internal/logger"
	"github.com/dhruvdixit03/bank-statement-analyzer/internal/staging"
)

// Config tunes an Analyzer.
type Config struct {
	Models Models
	// Workers sizes the summarization pool; 0 means one per CPU.
	Workers             int
	OutputReserveTokens int
	// MaxCondenseRounds bounds re-summarization of an oversized digest;
	// 0 truncates it straight away.
	MaxCondenseRounds int
	// SkipCategories leaves Result.Categories empty.
	SkipCategories bool
}

// Deps are the collaborators an Analyzer talks to.
type Deps struct {
	Converter converter.Converter
	Client    llm.Client
	Areas     staging.Factory
	// Recorder is optional.
	Recorder RunRecorder
}

// Analyzer runs the statement analysis: conversion, table extraction,
// per-table summaries, the loan-worthiness analysis and expense totals.
// It holds no per-run state and is safe for concurrent runs.
type Analyzer struct {
	converter    converter.Converter
	areas        staging.Factory
	recorder     RunRecorder
	summarizer   *Summarizer
	aggregator   *Aggregator
	reclassifier *Reclassifier
	chat         *Chat
	cfg          Config
}

// NewAnalyzer wires an Analyzer.
func NewAnalyzer(deps Deps, cfg Config) *Analyzer {
	recorder := deps.Recorder
	if recorder == nil {
		recorder = NopRecorder{}
	}
	return &Analyzer{
		converter:    deps.Converter,
		areas:        deps.Areas,
		recorder:     recorder,
		summarizer:   NewSummarizer(deps.Client, cfg.Models.Summary, cfg.Workers),
		aggregator:   NewAggregator(deps.Client, cfg.Models).WithLimits(cfg.OutputReserveTokens, cfg.MaxCondenseRounds),
		reclassifier: NewReclassifier(deps.Client, cfg.Models),
		chat:         NewChat(deps.Client, cfg.Models),
		cfg:          cfg,
	}
}

// WithProgress reports summarization progress to fn.
func (a *Analyzer) WithProgress(fn ProgressFunc) *Analyzer {
	a.summarizer.WithProgress(fn)
	return a
}

// Chat returns the follow-up chat bound to the same backend.
func (a *Analyzer) Chat() *Chat {
	return a.chat
}

// Run analyzes doc. On failure it returns a *StageError together with a
// Result holding whatever stages completed. A document without tables is
// not an error: Result.NoTables is set and no model is called. The staging
// area is always cleaned up; cleanup errors are only logged.
func (a *Analyzer) Run(ctx context.Context, doc converter.Document) (*Result, error) {
	runID := uuid.NewString()
	log := logger.FromContext(ctx).With().
		Str("run_id", runID).
		Str("document", doc.Name).
		Logger()
	ctx = logger.WithContext(ctx, log)

	result := &Result{RunID: runID, Document: doc.Name, StartedAt: time.Now().UTC()}
	log.Info().Msg("analysis started")

	if err := a.recorder.StartRun(ctx, runID, doc.Name); err != nil {
		log.Warn().Err(err).Msg("failed to record run start")
	}

	area, err := a.areas(ctx, runID)
	if err != nil {
		return a.finish(ctx, result, &StageError{Stage: StageStage, Err: err})
	}
	defer func() {
		if err := area.Cleanup(ctx); err != nil {
			log.Error().Err(err).Str("area", area.Location()).Msg("staging cleanup failed")
		}
	}()

	steps := []PipelineStep{
		&ConvertStep{Converter: a.converter},
		&SegmentStep{},
		&StageTablesStep{},
		&SummarizeStep{Summarizer: a.summarizer},
		&AggregateStep{Aggregator: a.aggregator},
	}
	if !a.cfg.SkipCategories {
		steps = append(steps, &CategorizeStep{Reclassifier: a.reclassifier})
	}

	state := &RunState{RunID: runID, Document: doc, Area: area, Recorder: a.recorder, Result: result}
	return a.finish(ctx, result, NewPipeline(steps...).Execute(ctx, state))
}

// Tables converts doc and returns its tables without calling any model.
func (a *Analyzer) Tables(ctx context.Context, doc converter.Document) ([]string, error) {
	state := &RunState{Document: doc, Result: &Result{Document: doc.Name}}
	err := NewPipeline(&ConvertStep{Converter: a.converter}, &SegmentStep{}).Execute(ctx, state)
	if err != nil {
		return nil, err
	}
	if state.Result.NoTables {
		return nil, ErrNoTables
	}
	return state.Result.Tables, nil
}

// Categorize converts doc and computes expense totals only.
func (a *Analyzer) Categorize(ctx context.Context, doc converter.Document) (*Result, error) {
	runID := uuid.NewString()
	ctx = logger.WithContext(ctx, logger.FromContext(ctx).With().Str("run_id", runID).Logger())

	result := &Result{RunID: runID, Document: doc.Name, StartedAt: time.Now().UTC()}
	state := &RunState{RunID: runID, Document: doc, Recorder: a.recorder, Result: result}
	err := NewPipeline(
		&ConvertStep{Converter: a.converter},
		&SegmentStep{},
		&CategorizeStep{Reclassifier: a.reclassifier},
	).Execute(ctx, state)

	result.FinishedAt = time.Now().UTC()
	if err != nil {
		return result, err
	}
	if result.NoTables {
		return result, ErrNoTables
	}
	return result, nil
}

func (a *Analyzer) finish(ctx context.Context, result *Result, err error) (*Result, error) {
	log := logger.FromContext(ctx)
	result.FinishedAt = time.Now().UTC()
	elapsed := result.FinishedAt.Sub(result.StartedAt)

	if err != nil {
		stage := "unknown"
		var se *StageError
		if errors.As(err, &se) {
			stage = se.Stage
		}
		RunsTotal.WithLabelValues("failed").Inc()
		a.recorder.MarkRunFailed(ctx, result.RunID, stage, err)
		log.Error().Err(err).Str("stage", stage).Dur("elapsed", elapsed).Msg("analysis failed")
		return result, err
	}

	outcome := "succeeded"
	if result.NoTables {
		outcome = "no_tables"
	}
	RunsTotal.WithLabelValues(outcome).Inc()
	if err := a.recorder.MarkRunSucceeded(ctx, result.RunID, len(result.Tables), len(result.Summaries)); err != nil {
		log.Warn().Err(err).Msg("failed to record run success")
	}
	log.Info().
		Int("tables", len(result.Tables)).
		Int("failed_units", len(result.Failures())).
		Bool("no_tables", result.NoTables).
		Dur("elapsed", elapsed).
		Msg("analysis finished")
	return result, nil
}

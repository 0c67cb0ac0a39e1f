package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dhruvdixit03/bank-statement-analyzer/internal/converter"
	"github.com/dhruvdixit03/bank-statement-analyzer/internal/logger"
	"github.com/dhruvdixit03/bank-statement-analyzer/internal/markdown"
	"github.com/dhruvdixit03/bank-statement-analyzer/internal/staging"
)

// PipelineStep represents a single stage of an analysis run.
type PipelineStep interface {
	Name() string
	Execute(ctx context.Context, state *RunState) error
}

// RunState carries everything one run owns between steps. Nothing in the
// pipeline keeps state outside it.
type RunState struct {
	RunID    string
	Document converter.Document
	// Area may be nil for runs that stage nothing.
	Area     staging.Area
	Recorder RunRecorder
	Markdown string
	Result   *Result

	halted bool
}

// Halt ends the run successfully after the current step.
func (s *RunState) Halt() {
	s.halted = true
}

// recordOutput stores a raw model answer, logging rather than failing.
func (s *RunState) recordOutput(ctx context.Context, stage, model, output string) {
	if s.Recorder == nil {
		return
	}
	if err := s.Recorder.RecordModelOutput(ctx, s.RunID, stage, model, output); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("stage", stage).Msg("failed to record model output")
	}
}

// ConvertStep converts the document to markdown.
type ConvertStep struct {
	Converter converter.Converter
}

func (s *ConvertStep) Name() string { return StageConvert }

func (s *ConvertStep) Execute(ctx context.Context, state *RunState) error {
	pages, err := s.Converter.Convert(ctx, state.Document)
	if err != nil {
		return err
	}
	state.Markdown = converter.Join(pages)
	log := logger.FromContext(ctx)
	log.Info().
		Int("pages", len(pages)).
		Int("chars", len(state.Markdown)).
		Msg("document converted")
	return nil
}

// SegmentStep extracts the table blocks. With no tables it marks the
// result and halts the run before any model is called.
type SegmentStep struct{}

func (s *SegmentStep) Name() string { return StageSegment }

func (s *SegmentStep) Execute(ctx context.Context, state *RunState) error {
	tables := markdown.Segment(state.Markdown)
	state.Result.Tables = tables
	log := logger.FromContext(ctx)
	log.Info().Int("tables", len(tables)).Msg("tables extracted")

	if len(tables) == 0 {
		state.Result.NoTables = true
		state.Result.Summaries = []SummaryRecord{}
		state.Halt()
	}
	return nil
}

// StageTablesStep writes each table to the staging area as table{n}.md.
type StageTablesStep struct{}

func (s *StageTablesStep) Name() string { return StageStage }

func (s *StageTablesStep) Execute(ctx context.Context, state *RunState) error {
	for i, table := range state.Result.Tables {
		if err := state.Area.Put(ctx, staging.TableName(i), []byte(table)); err != nil {
			return err
		}
	}
	log := logger.FromContext(ctx)
	log.Debug().
		Str("area", state.Area.Location()).
		Int("tables", len(state.Result.Tables)).
		Msg("tables staged")
	return nil
}

// SummarizeStep reads the staged tables back in natural name order and
// summarizes them.
type SummarizeStep struct {
	Summarizer *Summarizer
}

func (s *SummarizeStep) Name() string { return StageSummarize }

func (s *SummarizeStep) Execute(ctx context.Context, state *RunState) error {
	units, err := loadUnits(ctx, state.Area)
	if err != nil {
		return err
	}

	records, err := s.Summarizer.Summarize(ctx, units)
	state.Result.Summaries = records
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("no staged tables in %s", state.Area.Location())
	}
	if len(state.Result.Failures()) == len(records) {
		return ErrAllUnitsFailed
	}
	return nil
}

func loadUnits(ctx context.Context, area staging.Area) ([]TableUnit, error) {
	names, err := area.List(ctx)
	if err != nil {
		return nil, err
	}

	var tableNames []string
	for _, n := range names {
		if staging.IsTableName(n) {
			tableNames = append(tableNames, n)
		}
	}

	units := make([]TableUnit, 0, len(tableNames))
	for _, name := range staging.SortNames(tableNames) {
		data, err := area.Get(ctx, name)
		if err != nil {
			return nil, err
		}
		units = append(units, TableUnit{Source: name, Markdown: string(data)})
	}
	return units, nil
}

// AggregateStep stages the digest and runs the loan analysis over it.
type AggregateStep struct {
	Aggregator *Aggregator
}

func (s *AggregateStep) Name() string { return StageAggregate }

func (s *AggregateStep) Execute(ctx context.Context, state *RunState) error {
	digest, err := s.Aggregator.Compose(ctx, state.Result.Summaries)
	if err != nil {
		return err
	}
	if err := state.Area.Put(ctx, staging.SummariesName, []byte(digest)); err != nil {
		return err
	}
	staged, err := state.Area.Get(ctx, staging.SummariesName)
	if err != nil {
		return err
	}
	state.Result.Digest = string(staged)

	final, err := s.Aggregator.Reason(ctx, state.Result.Digest)
	if err != nil {
		return err
	}
	state.Result.FinalSummary = final
	state.recordOutput(ctx, StageAggregate, s.Aggregator.reasoning.Name, string(final))
	return nil
}

// CategorizeStep computes expense totals from the extracted tables.
type CategorizeStep struct {
	Reclassifier *Reclassifier
}

func (s *CategorizeStep) Name() string { return StageCategorize }

func (s *CategorizeStep) Execute(ctx context.Context, state *RunState) error {
	classified, err := s.Reclassifier.ClassifyTables(ctx, state.Result.Tables)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := s.Reclassifier.AggregateCategories(ctx, classified)
	if err != nil {
		return err
	}
	state.recordOutput(ctx, StageCategorize, s.Reclassifier.aggregate.Name, raw)

	totals, err := ParseCategoryTotals(ctx, raw)
	if err != nil {
		return err
	}
	state.Result.Categories = totals
	log := logger.FromContext(ctx)
	log.Info().
		Int("categories", len(totals.Amounts)).
		Int("anomalies", len(totals.Anomalies)).
		Str("total", totals.Total().StringFixed(2)).
		Msg("expenses categorized")
	return nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs the steps in order until one fails or the state is halted.
// A failure is returned as a *StageError naming the step.
func (p *Pipeline) Execute(ctx context.Context, state *RunState) error {
	for _, step := range p.steps {
		if state.halted {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return &StageError{Stage: step.Name(), Err: err}
		}

		start := time.Now()
		err := step.Execute(ctx, state)
		StageDuration.WithLabelValues(step.Name()).Observe(time.Since(start).Seconds())
		if err != nil {
			return &StageError{Stage: step.Name(), Err: fmt.Errorf("%s: %w", state.Document.Name, err)}
		}
	}
	return nil
}

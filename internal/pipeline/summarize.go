package pipeline

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/dhruvdixit03/bank-statement-analyzer/internal/llm"
	"github.com/dhruvdixit03/bank-statement-analyzer/internal/logger"
)

// ProgressFunc is called after each unit finishes with the number done so
// far. Calls are serialized.
type ProgressFunc func(done, total int)

// Summarizer summarizes table units concurrently on a fixed pool of
// workers. Results come back in input order whatever order the workers
// finish in.
type Summarizer struct {
	client   llm.Client
	model    llm.Model
	workers  int
	progress ProgressFunc
}

// NewSummarizer creates a Summarizer. workers <= 0 uses one worker per CPU.
func NewSummarizer(client llm.Client, model llm.Model, workers int) *Summarizer {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Summarizer{client: client, model: model, workers: workers}
}

// WithProgress sets a progress callback.
func (s *Summarizer) WithProgress(fn ProgressFunc) *Summarizer {
	s.progress = fn
	return s
}

type indexedRecord struct {
	index  int
	record SummaryRecord
}

// Summarize returns one record per unit, in the order of units. A unit
// whose model call fails gets a record with Err set. When ctx is cancelled,
// undispatched units are not started, their records carry the context
// error, and Summarize returns that error as well.
func (s *Summarizer) Summarize(ctx context.Context, units []TableUnit) ([]SummaryRecord, error) {
	log := logger.FromContext(ctx)
	if len(units) == 0 {
		return []SummaryRecord{}, nil
	}

	workers := s.workers
	if workers > len(units) {
		workers = len(units)
	}

	jobs := make(chan int)
	results := make(chan indexedRecord, len(units))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results <- indexedRecord{index: i, record: s.summarizeUnit(ctx, units[i])}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := range units {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	collected := make([]indexedRecord, 0, len(units))
	for r := range results {
		collected = append(collected, r)
		if s.progress != nil {
			s.progress(len(collected), len(units))
		}
	}

	sort.Slice(collected, func(i, j int) bool {
		return collected[i].index < collected[j].index
	})

	records := make([]SummaryRecord, len(units))
	done := make([]bool, len(units))
	for _, r := range collected {
		records[r.index] = r.record
		done[r.index] = true
	}
	for i, ok := range done {
		if !ok {
			records[i] = SummaryRecord{
				Source: units[i].Source,
				Err:    &UnitError{Source: units[i].Source, Err: context.Cause(ctx)},
			}
		}
	}

	failed := 0
	for _, r := range records {
		if r.Failed() {
			failed++
		}
	}
	log.Info().
		Int("units", len(units)).
		Int("failed", failed).
		Int("workers", workers).
		Msg("summarization finished")

	if err := ctx.Err(); err != nil {
		return records, err
	}
	return records, nil
}

func (s *Summarizer) summarizeUnit(ctx context.Context, unit TableUnit) SummaryRecord {
	log := logger.FromContext(ctx)

	if err := ctx.Err(); err != nil {
		UnitsTotal.WithLabelValues("cancelled").Inc()
		return SummaryRecord{Source: unit.Source, Err: &UnitError{Source: unit.Source, Err: err}}
	}

	start := time.Now()
	text, err := s.client.Generate(ctx, s.model, buildTableSummaryPrompt(unit.Markdown))
	if err != nil {
		UnitsTotal.WithLabelValues("failed").Inc()
		log.Warn().Err(err).Str("source", unit.Source).Msg("table summary failed")
		return SummaryRecord{Source: unit.Source, Err: &UnitError{Source: unit.Source, Err: err}}
	}

	UnitsTotal.WithLabelValues("succeeded").Inc()
	log.Debug().
		Str("source", unit.Source).
		Dur("elapsed", time.Since(start)).
		Msg("table summarized")
	return SummaryRecord{Source: unit.Source, Text: text}
}

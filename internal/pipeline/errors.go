package pipeline

import (
	"errors"
	"fmt"
)

// Stage names reported in StageError and logs.
const (
	StageConvert    = "convert"
	StageSegment    = "segment"
	StageStage      = "stage"
	StageSummarize  = "summarize"
	StageAggregate  = "aggregate"
	StageCategorize = "categorize"
)

var (
	// ErrNoTables is returned by operations that need at least one table.
	ErrNoTables = errors.New("no tables found")

	// ErrNoCategoryTable is returned when the aggregation model's answer
	// contains no markdown table.
	ErrNoCategoryTable = errors.New("category aggregation returned no table")

	// ErrAllUnitsFailed is returned when no table could be summarized.
	ErrAllUnitsFailed = errors.New("every table failed to summarize")
)

// StageError is the terminal error of a run and names the failed stage.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// UnitError records why a single table could not be summarized.
type UnitError struct {
	Source string
	Err    error
}

func (e *UnitError) Error() string {
	return fmt.Sprintf("summarize %s: %v", e.Source, e.Err)
}

func (e *UnitError) Unwrap() error {
	return e.Err
}

// RowParseError reports a category total row whose amount is missing or
// not a number. It means the aggregation model broke its output contract.
type RowParseError struct {
	Row   string
	Value string
	Err   error
}

func (e *RowParseError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("malformed row: %s: %v", e.Row, e.Err)
	}
	return fmt.Sprintf("invalid number %q in row: %s", e.Value, e.Row)
}

func (e *RowParseError) Unwrap() error {
	return e.Err
}

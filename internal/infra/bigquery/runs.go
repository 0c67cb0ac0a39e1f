package bigquery

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/dhruvdixit03/bank-statement-analyzer/internal/logger"
)

// Run statuses.
const (
	RunStatusRunning = "RUNNING"
	RunStatusSuccess = "SUCCESS"
	RunStatusFailed  = "FAILED"
)

const maxErrorMessageLen = 2000

type RunRow struct {
	RunID    string `bigquery:"run_id"`   // REQUIRED
	Document string `bigquery:"document"` // REQUIRED

	StartedTS  time.Time              `bigquery:"started_ts"`  // REQUIRED
	FinishedTS bigquery.NullTimestamp `bigquery:"finished_ts"` // NULLABLE

	Status       string              `bigquery:"status"`        // REQUIRED
	FailedStage  bigquery.NullString `bigquery:"failed_stage"`  // NULLABLE
	ErrorMessage bigquery.NullString `bigquery:"error_message"` // NULLABLE

	TableCount   bigquery.NullInt64 `bigquery:"table_count"`   // NULLABLE
	SummaryCount bigquery.NullInt64 `bigquery:"summary_count"` // NULLABLE
}

var runsSchema = bigquery.Schema{
	{Name: "run_id", Type: bigquery.StringFieldType, Required: true},
	{Name: "document", Type: bigquery.StringFieldType, Required: true},
	{Name: "started_ts", Type: bigquery.TimestampFieldType, Required: true},
	{Name: "finished_ts", Type: bigquery.TimestampFieldType},
	{Name: "status", Type: bigquery.StringFieldType, Required: true},
	{Name: "failed_stage", Type: bigquery.StringFieldType},
	{Name: "error_message", Type: bigquery.StringFieldType},
	{Name: "table_count", Type: bigquery.IntegerFieldType},
	{Name: "summary_count", Type: bigquery.IntegerFieldType},
}

// StartRun inserts a run row with status=RUNNING.
func (l *Ledger) StartRun(ctx context.Context, runID, document string) error {
	sql := fmt.Sprintf(`
		INSERT %s (run_id, document, started_ts, status)
		VALUES (@run_id, @document, @started_ts, @status)
	`, l.table(runsTable))

	err := l.exec(ctx, sql, []bigquery.QueryParameter{
		{Name: "run_id", Value: runID},
		{Name: "document", Value: document},
		{Name: "started_ts", Value: time.Now()},
		{Name: "status", Value: RunStatusRunning},
	})
	if err != nil {
		return fmt.Errorf("StartRun: %w", err)
	}
	return nil
}

// MarkRunSucceeded sets status=SUCCESS, finished_ts and the unit counts.
func (l *Ledger) MarkRunSucceeded(ctx context.Context, runID string, tables, summaries int) error {
	sql := fmt.Sprintf(`
		UPDATE %s
		SET status = @status,
		    finished_ts = @finished_ts,
		    table_count = @table_count,
		    summary_count = @summary_count,
		    error_message = NULL
		WHERE run_id = @run_id
	`, l.table(runsTable))

	err := l.exec(ctx, sql, []bigquery.QueryParameter{
		{Name: "status", Value: RunStatusSuccess},
		{Name: "finished_ts", Value: time.Now()},
		{Name: "table_count", Value: tables},
		{Name: "summary_count", Value: summaries},
		{Name: "run_id", Value: runID},
	})
	if err != nil {
		return fmt.Errorf("MarkRunSucceeded: %w", err)
	}
	return nil
}

// MarkRunFailed sets status=FAILED, finished_ts, the failed stage and the
// error message. Failures are logged, not returned.
func (l *Ledger) MarkRunFailed(ctx context.Context, runID, stage string, runErr error) {
	log := logger.FromContext(ctx)

	sql := fmt.Sprintf(`
		UPDATE %s
		SET status = @status,
		    finished_ts = @finished_ts,
		    failed_stage = @failed_stage,
		    error_message = @error_message
		WHERE run_id = @run_id
	`, l.table(runsTable))

	err := l.exec(ctx, sql, []bigquery.QueryParameter{
		{Name: "status", Value: RunStatusFailed},
		{Name: "finished_ts", Value: time.Now()},
		{Name: "failed_stage", Value: stage},
		{Name: "error_message", Value: errorMessage(runErr)},
		{Name: "run_id", Value: runID},
	})
	if err != nil {
		log.Error().
			Err(err).
			Str("run_id", runID).
			Str("stage", stage).
			Msg("MarkRunFailed: updating run")
	}
}

// ListRecentRuns returns up to limit runs, newest first.
func (l *Ledger) ListRecentRuns(ctx context.Context, limit int) ([]*RunRow, error) {
	if limit <= 0 {
		limit = 20
	}

	q := l.client.Query(fmt.Sprintf(`
		SELECT
			run_id,
			document,
			started_ts,
			finished_ts,
			status,
			failed_stage,
			error_message,
			table_count,
			summary_count
		FROM %s
		ORDER BY started_ts DESC
		LIMIT @limit
	`, l.table(runsTable)))
	q.Parameters = []bigquery.QueryParameter{{Name: "limit", Value: limit}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListRecentRuns: reading query: %w", err)
	}

	var runs []*RunRow
	for {
		var row RunRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListRecentRuns: iterating: %w", err)
		}
		runs = append(runs, &row)
	}
	return runs, nil
}

// errorMessage flattens err to at most maxErrorMessageLen bytes without
// splitting a UTF-8 sequence.
func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) <= maxErrorMessageLen {
		return msg
	}
	cut := maxErrorMessageLen
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}

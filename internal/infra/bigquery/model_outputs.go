package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
)

type ModelOutputRow struct {
	OutputID  string    `bigquery:"output_id"`  // REQUIRED
	RunID     string    `bigquery:"run_id"`     // REQUIRED
	Stage     string    `bigquery:"stage"`      // REQUIRED
	ModelName string    `bigquery:"model_name"` // REQUIRED
	Output    string    `bigquery:"output"`     // REQUIRED
	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED
}

var modelOutputsSchema = bigquery.Schema{
	{Name: "output_id", Type: bigquery.StringFieldType, Required: true},
	{Name: "run_id", Type: bigquery.StringFieldType, Required: true},
	{Name: "stage", Type: bigquery.StringFieldType, Required: true},
	{Name: "model_name", Type: bigquery.StringFieldType, Required: true},
	{Name: "output", Type: bigquery.StringFieldType, Required: true},
	{Name: "created_ts", Type: bigquery.TimestampFieldType, Required: true},
}

// RecordModelOutput stores one raw model answer for a run.
func (l *Ledger) RecordModelOutput(ctx context.Context, runID, stage, model, output string) error {
	row := &ModelOutputRow{
		OutputID:  uuid.NewString(),
		RunID:     runID,
		Stage:     stage,
		ModelName: model,
		Output:    output,
		CreatedTS: time.Now(),
	}

	sql := fmt.Sprintf(`
		INSERT INTO %s (output_id, run_id, stage, model_name, output, created_ts)
		VALUES (@output_id, @run_id, @stage, @model_name, @output, @created_ts)
	`, l.table(modelOutputsTable))

	err := l.exec(ctx, sql, []bigquery.QueryParameter{
		{Name: "output_id", Value: row.OutputID},
		{Name: "run_id", Value: row.RunID},
		{Name: "stage", Value: row.Stage},
		{Name: "model_name", Value: row.ModelName},
		{Name: "output", Value: row.Output},
		{Name: "created_ts", Value: row.CreatedTS},
	})
	if err != nil {
		return fmt.Errorf("RecordModelOutput: %w", err)
	}
	return nil
}

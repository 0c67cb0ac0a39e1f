// Package bigquery keeps the audit ledger of analysis runs in BigQuery.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"

	"github.com/dhruvdixit03/bank-statement-analyzer/internal/pipeline"
)

const (
	runsTable         = "runs"
	modelOutputsTable = "model_outputs"
)

// Ledger records runs and raw model outputs. It satisfies
// pipeline.RunRecorder and holds one shared client for its lifetime.
type Ledger struct {
	client  *bigquery.Client
	dataset string
}

var _ pipeline.RunRecorder = (*Ledger)(nil)

// NewLedger opens a BigQuery client for projectID and writes into dataset.
func NewLedger(ctx context.Context, projectID, dataset string) (*Ledger, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewLedger: creating client: %w", err)
	}
	return &Ledger{client: client, dataset: dataset}, nil
}

// Close closes the BigQuery client connection.
func (l *Ledger) Close() error {
	if l.client != nil {
		return l.client.Close()
	}
	return nil
}

// EnsureTables creates the dataset and tables when they are missing.
func (l *Ledger) EnsureTables(ctx context.Context) error {
	ds := l.client.Dataset(l.dataset)
	if err := ds.Create(ctx, &bigquery.DatasetMetadata{}); err != nil && !alreadyExists(err) {
		return fmt.Errorf("EnsureTables: creating dataset %s: %w", l.dataset, err)
	}

	tables := map[string]bigquery.Schema{
		runsTable:         runsSchema,
		modelOutputsTable: modelOutputsSchema,
	}
	for name, schema := range tables {
		err := ds.Table(name).Create(ctx, &bigquery.TableMetadata{Schema: schema})
		if err != nil && !alreadyExists(err) {
			return fmt.Errorf("EnsureTables: creating table %s: %w", name, err)
		}
	}
	return nil
}

func alreadyExists(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict
}

func (l *Ledger) table(name string) string {
	return tableRef(l.client.Project(), l.dataset, name)
}

func tableRef(project, dataset, table string) string {
	return fmt.Sprintf("`%s.%s.%s`", project, dataset, table)
}

// exec runs a DML statement and waits for it. DML is used instead of the
// streaming inserter so rows can be updated right after they are written.
func (l *Ledger) exec(ctx context.Context, sql string, params []bigquery.QueryParameter) error {
	q := l.client.Query(sql)
	q.Parameters = params

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}

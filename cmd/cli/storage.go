package main

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"cloud.google.com/go/storage"
	"github.com/spf13/cobra"

	infraBQ "github.com/dhruvdixit03/bank-statement-analyzer/internal/infra/bigquery"
	"github.com/dhruvdixit03/bank-statement-analyzer/internal/staging"
)

func uploadCmd() *cobra.Command {
	var bucket, object, file string

	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload a statement to GCS",
		Long:  `Copy a local statement into a GCS bucket so it can be analyzed by gs:// URI.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if object == "" {
				object = filepath.Base(file)
			}

			ctx := cmd.Context()
			client, err := storage.NewClient(ctx)
			if err != nil {
				return fmt.Errorf("creating storage client: %w", err)
			}
			defer client.Close()

			if err := staging.UploadFile(ctx, client, bucket, object, file); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s to gs://%s/%s\n", file, bucket, object)
			return nil
		},
	}

	cmd.Flags().StringVar(&bucket, "bucket", "", "GCS bucket name")
	cmd.Flags().StringVar(&object, "object", "", "object name (defaults to the file name)")
	cmd.Flags().StringVar(&file, "file", "", "path to the local statement")
	_ = cmd.MarkFlagRequired("bucket")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent analysis runs from the audit ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, ctx, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if !cfg.Audit.Enabled() {
				return fmt.Errorf("audit ledger is disabled; set audit.project_id")
			}

			ledger, err := infraBQ.NewLedger(ctx, cfg.Audit.ProjectID, cfg.Audit.Dataset)
			if err != nil {
				return err
			}
			defer ledger.Close()

			runs, err := ledger.ListRecentRuns(ctx, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, subtleStyle.Render("No runs recorded."))
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			defer w.Flush()
			fmt.Fprintln(w, "RUN\tDOCUMENT\tSTARTED\tSTATUS\tTABLES\tSTAGE\tERROR")
			for _, r := range runs {
				tables := ""
				if r.TableCount.Valid {
					tables = fmt.Sprint(r.TableCount.Int64)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					r.RunID,
					r.Document,
					r.StartedTS.Local().Format("2006-01-02 15:04"),
					r.Status,
					tables,
					r.FailedStage.StringVal,
					r.ErrorMessage.StringVal,
				)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to list")
	return cmd
}

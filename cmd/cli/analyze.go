package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dhruvdixit03/bank-statement-analyzer/internal/pipeline"
)

func analyzeCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "analyze <file|gs://bucket/object>",
		Short: "Analyze a bank statement",
		Long: `Convert the statement, summarize each table, assess loan-worthiness and
total expenses by category.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ctx, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			doc, err := a.Document(ctx, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !asJSON {
				ctx = quiet(ctx)
				a.Analyzer.WithProgress(newProgress(cmd.ErrOrStderr()))
			}

			result, err := a.Analyzer.Run(ctx, doc)
			return reportRun(out, result, err, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	return cmd
}

func tablesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tables <file|gs://bucket/object>",
		Short: "Print the tables found in a statement",
		Long:  `Convert the statement and print its tables without calling any model.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ctx, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			doc, err := a.Document(ctx, args[0])
			if err != nil {
				return err
			}

			tables, err := a.Analyzer.Tables(ctx, doc)
			if errors.Is(err, pipeline.ErrNoTables) {
				fmt.Fprintln(cmd.OutOrStdout(), warningStyle.Render("No tables found."))
				return nil
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for i, table := range tables {
				fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("Table %d", i+1)))
				fmt.Fprintln(out, table)
			}
			return nil
		},
	}
}

func categorizeCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "categorize <file|gs://bucket/object>",
		Short: "Total a statement's expenses by category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, ctx, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			doc, err := a.Document(ctx, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			result, err := a.Analyzer.Categorize(ctx, doc)
			if errors.Is(err, pipeline.ErrNoTables) {
				fmt.Fprintln(out, warningStyle.Render("No tables found."))
				return nil
			}
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(out, result.Categories)
			}
			printCategories(out, result.Categories)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the totals as JSON")
	return cmd
}

// reportRun prints whatever a run produced. A failed run still shows the
// stages that completed before its error is returned.
func reportRun(out io.Writer, result *pipeline.Result, runErr error, asJSON bool) error {
	if result != nil {
		if asJSON {
			if err := writeJSON(out, result); err != nil {
				return err
			}
		} else {
			printResult(out, result)
		}
	}
	if runErr != nil {
		return fmt.Errorf("analysis failed: %w", runErr)
	}
	return nil
}

func printResult(out io.Writer, result *pipeline.Result) {
	if result.NoTables {
		fmt.Fprintln(out, warningStyle.Render("No tables found in "+result.Document+"; nothing to analyze."))
		return
	}

	fmt.Fprintln(out, titleStyle.Render(result.Document))
	fmt.Fprintf(out, "Tables: %d\n", len(result.Tables))
	for _, rec := range result.Failures() {
		fmt.Fprintln(out, warningStyle.Render(fmt.Sprintf("  %s could not be summarized: %v", rec.Source, rec.Err)))
	}
	fmt.Fprintln(out)

	// Without a loan assessment the table summaries are all there is.
	if result.FinalSummary == "" {
		for _, rec := range result.Summaries {
			if rec.Failed() {
				continue
			}
			fmt.Fprintln(out, titleStyle.Render(rec.Source))
			fmt.Fprintln(out, rec.Text)
			fmt.Fprintln(out)
		}
	} else {
		fmt.Fprintln(out, titleStyle.Render("Loan assessment"))
		fmt.Fprintln(out, renderSummary(result.FinalSummary))
		fmt.Fprintln(out)
	}

	if result.Categories != nil {
		printCategories(out, result.Categories)
	}
}

func printCategories(out io.Writer, totals *pipeline.CategoryTotals) {
	fmt.Fprintln(out, titleStyle.Render("Expenses by category"))
	if totals == nil {
		fmt.Fprintln(out, subtleStyle.Render("No expenses found."))
		return
	}
	fmt.Fprintln(out, renderChart(totals.Series(), chartWidth))
	fmt.Fprintf(out, "\nTotal: %s\n", totals.Total().StringFixed(2))
	if len(totals.Anomalies) > 0 {
		fmt.Fprintln(out, subtleStyle.Render(fmt.Sprintf("Unrecognized categories counted as Other: %v", totals.Anomalies)))
	}
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

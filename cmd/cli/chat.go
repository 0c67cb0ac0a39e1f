package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dhruvdixit03/bank-statement-analyzer/internal/pipeline"
)

type asker interface {
	Ask(ctx context.Context, history pipeline.Conversation, question, digest string) (pipeline.Conversation, error)
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat <file|gs://bucket/object>",
		Short: "Analyze a statement, then ask questions about it",
		Long: `Run the full analysis and start an interactive chat using the table
summaries as context. Type "exit" or press Ctrl-D to leave.`,
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

			ctx = quiet(ctx)
			out := cmd.OutOrStdout()
			result, err := a.Analyzer.WithProgress(newProgress(cmd.ErrOrStderr())).Run(ctx, doc)
			if err != nil {
				return reportRun(out, result, err, false)
			}

			if result.NoTables {
				fmt.Fprintln(out, warningStyle.Render("No tables found; there is nothing to chat about."))
				return nil
			}
			printResult(out, result)

			_, err = chatLoop(ctx, cmd.InOrStdin(), out, a.Analyzer.Chat(), result.Digest)
			return err
		},
	}
}

// chatLoop reads one question per line until EOF, "exit" or "quit" and
// returns the final history. Backend errors are printed and the loop goes
// on; only cancellation ends it with an error.
func chatLoop(ctx context.Context, in io.Reader, out io.Writer, chat asker, digest string) (pipeline.Conversation, error) {
	history := pipeline.NewConversation()
	fmt.Fprintln(out, history[0].Content)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, promptStyle.Render("you> "))
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return history, scanner.Err()
		}

		question := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(question) {
		case "":
			continue
		case "exit", "quit":
			return history, nil
		}

		next, err := chat.Ask(ctx, history, question, digest)
		if err != nil {
			if ctx.Err() != nil {
				return history, ctx.Err()
			}
			if errors.Is(err, pipeline.ErrEmptyQuestion) {
				continue
			}
			fmt.Fprintln(out, errorStyle.Render("error: "+err.Error()))
			continue
		}
		history = next
		fmt.Fprintf(out, "%s %s\n", promptStyle.Render("bot>"), history[len(history)-1].Content)
	}
}

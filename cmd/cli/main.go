package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dhruvdixit03/bank-statement-analyzer/internal/app"
	"github.com/dhruvdixit03/bank-statement-analyzer/internal/config"
	"github.com/dhruvdixit03/bank-statement-analyzer/internal/logger"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "bsa",
		Short: "Bank statement analyzer",
		Long: `bsa converts a bank statement into markdown, summarizes every table with a
local or hosted language model, judges loan-worthiness and totals expenses
by category.`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./bsa.yaml or $HOME/.bsa/bsa.yaml)")

	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(tablesCmd())
	rootCmd.AddCommand(categorizeCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(uploadCmd())
	rootCmd.AddCommand(runsCmd())
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, warningStyle.Render("Interrupted, stopping..."))
		cancel()
	}()

	err := rootCmd.ExecuteContext(ctx)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render(err.Error()))
		os.Exit(1)
	}
}

// loadConfig reads the config and returns a context carrying its logger.
func loadConfig(cmd *cobra.Command) (*config.Config, context.Context, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	log := logger.NewWithLevel(cfg.Log.Level, cfg.Log.JSON)
	return cfg, logger.WithContext(cmd.Context(), log), nil
}

// loadApp wires the analyzer. Callers must Close the App.
func loadApp(cmd *cobra.Command) (*app.App, context.Context, error) {
	cfg, ctx, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return a, ctx, nil
}

// quiet drops logs below warn so they do not tear the progress bar.
func quiet(ctx context.Context) context.Context {
	log := logger.FromContext(ctx)
	if log.GetLevel() < zerolog.WarnLevel {
		log = log.Level(zerolog.WarnLevel)
	}
	return logger.WithContext(ctx, log)
}

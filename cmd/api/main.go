package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dhruvdixit03/bank-statement-analyzer/internal/api/handlers"
	"github.com/dhruvdixit03/bank-statement-analyzer/internal/app"
	"github.com/dhruvdixit03/bank-statement-analyzer/internal/config"
	"github.com/dhruvdixit03/bank-statement-analyzer/internal/jobs/inmemory"
	"github.com/dhruvdixit03/bank-statement-analyzer/internal/logger"
)

func main() {
	configPath := flag.String("config", "", "path to a config file (default: ./bsa.yaml or ~/.bsa/bsa.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fallback := logger.New()
		fallback.Fatal().Err(err).Msg("Failed to load config")
	}

	log := logger.NewWithLevel(cfg.Log.Level, cfg.Log.JSON)
	ctx := logger.WithContext(context.Background(), log)

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize analyzer")
	}
	defer application.Close()

	// Initialize job infrastructure
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(cfg.Server.QueueSize, jobStore,
		inmemory.WithWorkers(cfg.Server.Workers),
	)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	if err := jobQueue.Start(workerCtx, application.AnalyzeJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job workers")
	}

	router := handlers.NewRouter(
		handlers.NewStatementsHandler(jobQueue, handlers.DefaultMaxUploadBytes, log),
		handlers.NewJobsHandler(jobStore, log),
		handlers.NewChatHandler(jobStore, application.Analyzer.Chat(), log),
		log,
	)

	port := strconv.Itoa(cfg.Server.Port)
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: cfg.LLM.Timeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop accepting jobs, then let in-flight analyses finish or time out.
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	log.Info().Msg("Server exited")
}

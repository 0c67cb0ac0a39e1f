package handlers

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/dhruvdixit03/bank-statement-analyzer/internal/api/middleware"
)

// NewRouter registers every endpoint and wraps them in the middleware chain.
func NewRouter(statements *StatementsHandler, jobsHandler *JobsHandler, chat *ChatHandler, log zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/statements", statements.CreateStatement)

	mux.HandleFunc("GET /api/jobs", jobsHandler.ListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		jobsHandler.GetJob(w, r, r.PathValue("id"))
	})
	mux.HandleFunc("POST /api/jobs/{id}/chat", func(w http.ResponseWriter, r *http.Request) {
		chat.Ask(w, r, r.PathValue("id"))
	})

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	return middleware.Chain(mux,
		middleware.Recovery(log),
		middleware.RequestID,
		middleware.Logger(log),
		middleware.CORS,
	)
}

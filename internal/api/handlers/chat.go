package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dhruvdixit03/bank-statement-analyzer/internal/api/middleware"
	"github.com/dhruvdixit03/bank-statement-analyzer/internal/jobs"
	"github.com/dhruvdixit03/bank-statement-analyzer/internal/pipeline"
)

// Asker answers a question about an analyzed statement.
type Asker interface {
	Ask(ctx context.Context, history pipeline.Conversation, question, digest string) (pipeline.Conversation, error)
}

// ChatHandler answers follow-up questions about a completed job. The
// client owns the history and sends it with every question.
type ChatHandler struct {
	store jobs.JobStore
	chat  Asker
	log   zerolog.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(store jobs.JobStore, chat Asker, log zerolog.Logger) *ChatHandler {
	return &ChatHandler{
		store: store,
		chat:  chat,
		log:   log,
	}
}

type chatRequest struct {
	Question string                `json:"question"`
	History  pipeline.Conversation `json:"history"`
}

type chatResponse struct {
	JobID   string                `json:"job_id"`
	Answer  string                `json:"answer"`
	History pipeline.Conversation `json:"history"`
}

// Ask handles POST /api/jobs/{id}/chat
func (h *ChatHandler) Ask(w http.ResponseWriter, r *http.Request, jobID string) {
	var req chatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	job, err := h.store.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Job not found")
			return
		}
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}
	if job.Status != jobs.JobStatusCompleted || job.Result == nil || job.Result.Digest == "" {
		middleware.WriteError(w, http.StatusConflict, "Job has no completed analysis to chat about")
		return
	}

	history := req.History
	if len(history) == 0 {
		history = pipeline.NewConversation()
	}

	updated, err := h.chat.Ask(r.Context(), history, req.Question, job.Result.Digest)
	if err != nil {
		if errors.Is(err, pipeline.ErrEmptyQuestion) {
			middleware.WriteError(w, http.StatusBadRequest, "question is required")
			return
		}
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Chat failed")
		middleware.WriteError(w, http.StatusBadGateway, "Failed to answer question")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, chatResponse{
		JobID:   jobID,
		Answer:  updated[len(updated)-1].Content,
		History: updated,
	})
}

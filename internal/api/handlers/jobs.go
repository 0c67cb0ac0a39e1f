package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/dhruvdixit03/bank-statement-analyzer/internal/api/middleware"
	"github.com/dhruvdixit03/bank-statement-analyzer/internal/jobs"
)

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// unitFailure reports a table that could not be summarized.
type unitFailure struct {
	Source string `json:"source"`
	Error  string `json:"error"`
}

// jobView is the JSON shape of a job.
type jobView struct {
	*jobs.AnalyzeStatementJob
	Type        jobs.JobType  `json:"type"`
	FailedUnits []unitFailure `json:"failed_units,omitempty"`
}

func newJobView(job *jobs.AnalyzeStatementJob) jobView {
	v := jobView{AnalyzeStatementJob: job, Type: job.GetType()}
	if job.Result != nil {
		for _, rec := range job.Result.Failures() {
			v.FailedUnits = append(v.FailedUnits, unitFailure{Source: rec.Source, Error: rec.Err.Error()})
		}
	}
	return v
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
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

	middleware.WriteJSON(w, http.StatusOK, newJobView(job))
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.JobFilter{
		Document: query.Get("document"),
		Status:   jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	views := make([]jobView, 0, len(jobsList))
	for _, j := range jobsList {
		views = append(views, newJobView(j))
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  views,
		"count": len(views),
	})
}

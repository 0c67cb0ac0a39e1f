package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/dhruvdixit03/bank-statement-analyzer/internal/api/middleware"
	"github.com/dhruvdixit03/bank-statement-analyzer/internal/jobs"
	"github.com/dhruvdixit03/bank-statement-analyzer/internal/staging"
)

// DefaultMaxUploadBytes bounds statement uploads.
const DefaultMaxUploadBytes = 32 << 20

// StatementsHandler accepts statements and enqueues their analysis.
type StatementsHandler struct {
	publisher jobs.Publisher
	maxBytes  int64
	log       zerolog.Logger
}

// NewStatementsHandler creates a new statements handler.
func NewStatementsHandler(publisher jobs.Publisher, maxBytes int64, log zerolog.Logger) *StatementsHandler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &StatementsHandler{
		publisher: publisher,
		maxBytes:  maxBytes,
		log:       log,
	}
}

// CreateStatement handles POST /api/statements. It takes either a multipart
// form with a "file" field or a JSON body {"gcs_uri": "gs://..."}.
func (h *StatementsHandler) CreateStatement(w http.ResponseWriter, r *http.Request) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var (
		job *jobs.AnalyzeStatementJob
		msg string
	)
	switch mediaType {
	case "application/json":
		job, msg = h.jobFromJSON(r)
	case "multipart/form-data":
		job, msg = h.jobFromUpload(w, r)
	default:
		msg = "Content-Type must be multipart/form-data or application/json"
	}
	if job == nil {
		middleware.WriteError(w, http.StatusBadRequest, msg)
		return
	}

	if err := h.publisher.PublishAnalyzeStatement(r.Context(), job); err != nil {
		h.log.Error().Err(err).Str("document", job.Document).Msg("Failed to enqueue analysis job")
		middleware.WriteError(w, http.StatusServiceUnavailable, "Failed to enqueue analysis job")
		return
	}

	h.log.Info().
		Str("job_id", job.JobID).
		Str("document", job.Document).
		Str("request_id", middleware.RequestIDFromContext(r.Context())).
		Msg("Analysis job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id":   job.JobID,
		"document": job.Document,
		"status":   string(job.Status),
	})
}

func (h *StatementsHandler) jobFromJSON(r *http.Request) (*jobs.AnalyzeStatementJob, string) {
	var req struct {
		GCSURI string `json:"gcs_uri"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		return nil, "Invalid request body"
	}
	if _, _, err := staging.ParseGCSURI(req.GCSURI); err != nil {
		return nil, "gcs_uri must look like gs://bucket/object"
	}
	return &jobs.AnalyzeStatementJob{
		Document: staging.FilenameFromRef(req.GCSURI),
		Source:   req.GCSURI,
	}, ""
}

func (h *StatementsHandler) jobFromUpload(w http.ResponseWriter, r *http.Request) (*jobs.AnalyzeStatementJob, string) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, "File is too large"
		}
		return nil, "Invalid multipart form"
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "file is required"
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "Failed to read file"
	}
	if len(data) == 0 {
		return nil, "file is empty"
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/pdf"
	}

	return &jobs.AnalyzeStatementJob{
		Document: filepath.Base(header.Filename),
		MIMEType: contentType,
		Data:     data,
	}, ""
}

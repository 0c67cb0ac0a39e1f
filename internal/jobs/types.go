package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/dhruvdixit03/bank-statement-analyzer/internal/pipeline"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeAnalyzeStatement represents a full statement analysis job.
	JobTypeAnalyzeStatement JobType = "analyze_statement"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and is being retried.
	JobStatusRetrying JobStatus = "retrying"
)

// ErrJobNotFound is returned by stores for unknown job IDs.
var ErrJobNotFound = errors.New("job not found")

// AnalyzeStatementJob represents a job to analyze one uploaded statement.
type AnalyzeStatementJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// Document is the statement's file name.
	Document string `json:"document"`

	// Source is the gs:// URI the statement was read from, if any.
	Source string `json:"source,omitempty"`

	// MIMEType of the uploaded statement.
	MIMEType string `json:"mime_type,omitempty"`

	// Data holds the statement bytes until the job finishes.
	Data []byte `json:"-"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the job started processing.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the job completed (success or failure).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`

	// FailedStage names the pipeline stage of the last failure.
	FailedStage string `json:"failed_stage,omitempty"`

	// RetryCount is the number of times this job has been retried.
	RetryCount int `json:"retry_count"`

	// MaxRetries is the maximum number of retries allowed.
	MaxRetries int `json:"max_retries"`

	// Result holds the run's artifacts. A failed run keeps whatever stages
	// completed.
	Result *pipeline.Result `json:"result,omitempty"`
}

// Job is a generic interface for all job types.
type Job interface {
	// GetID returns the unique job identifier.
	GetID() string

	// GetType returns the job type.
	GetType() JobType

	// GetStatus returns the current job status.
	GetStatus() JobStatus
}

// GetID implements the Job interface.
func (j *AnalyzeStatementJob) GetID() string {
	return j.JobID
}

// GetType implements the Job interface.
func (j *AnalyzeStatementJob) GetType() JobType {
	return JobTypeAnalyzeStatement
}

// GetStatus implements the Job interface.
func (j *AnalyzeStatementJob) GetStatus() JobStatus {
	return j.Status
}

// Publisher defines the interface for publishing jobs to a queue.
type Publisher interface {
	// PublishAnalyzeStatement enqueues a statement analysis job.
	PublishAnalyzeStatement(ctx context.Context, job *AnalyzeStatementJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler processes a job. It stores its output on the job and returns
// an error if the job failed; see IsRetryable for which failures are retried.
type JobHandler func(ctx context.Context, job *AnalyzeStatementJob) error

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *AnalyzeStatementJob) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*AnalyzeStatementJob, error)

	// ListJobs retrieves jobs with optional filtering, newest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*AnalyzeStatementJob, error)

	// UpdateJobStatus updates the status of a job.
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// Document filters jobs by document name.
	Document string

	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}

// IsRetryable reports whether a failed run is worth running again. A
// document that could not be converted fails the same way every time, and a
// cancelled run was stopped on purpose.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var stageErr *pipeline.StageError
	if errors.As(err, &stageErr) && stageErr.Stage == pipeline.StageConvert {
		return false
	}
	return true
}

// FailedStage returns the stage named by err, or "".
func FailedStage(err error) string {
	var stageErr *pipeline.StageError
	if errors.As(err, &stageErr) {
		return stageErr.Stage
	}
	return ""
}

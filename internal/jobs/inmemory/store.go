package inmemory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/dhruvdixit03/bank-statement-analyzer/internal/jobs"
)

// Store keeps job snapshots in memory. It is safe for concurrent use and
// backs both the queue's status updates and the API's job views.
type Store struct {
	mu   sync.RWMutex
	byID map[string]*jobs.AnalyzeStatementJob
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{byID: make(map[string]*jobs.AnalyzeStatementJob)}
}

// snapshot copies job together with its result, so neither the caller nor
// a reader can change what the store holds. The uploaded bytes are shared;
// nothing writes to them after the job is published.
func snapshot(job *jobs.AnalyzeStatementJob) *jobs.AnalyzeStatementJob {
	c := *job
	c.Result = job.Result.Clone()
	if job.StartedAt != nil {
		t := *job.StartedAt
		c.StartedAt = &t
	}
	if job.CompletedAt != nil {
		t := *job.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// SaveJob inserts or replaces the job with job.JobID.
func (s *Store) SaveJob(ctx context.Context, job *jobs.AnalyzeStatementJob) error {
	if job.JobID == "" {
		return fmt.Errorf("SaveJob: job ID is required")
	}

	snap := snapshot(job)

	s.mu.Lock()
	s.byID[job.JobID] = snap
	s.mu.Unlock()
	return nil
}

// GetJob returns a snapshot of the job or jobs.ErrJobNotFound.
func (s *Store) GetJob(ctx context.Context, jobID string) (*jobs.AnalyzeStatementJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.byID[jobID]
	if !ok {
		return nil, fmt.Errorf("GetJob: %w: %s", jobs.ErrJobNotFound, jobID)
	}
	return snapshot(job), nil
}

// ListJobs returns the jobs matching filter, newest first, with ties
// broken by ID.
func (s *Store) ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.AnalyzeStatementJob, error) {
	s.mu.RLock()
	matched := make([]*jobs.AnalyzeStatementJob, 0, len(s.byID))
	for _, job := range s.byID {
		if filter.Document != "" && job.Document != filter.Document {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		matched = append(matched, snapshot(job))
	}
	s.mu.RUnlock()

	slices.SortFunc(matched, func(a, b *jobs.AnalyzeStatementJob) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.JobID, b.JobID)
	})

	start := min(max(filter.Offset, 0), len(matched))
	end := len(matched)
	if filter.Limit > 0 {
		end = min(start+filter.Limit, end)
	}

	return matched[start:end], nil
}

// UpdateJobStatus sets the status of a stored job. A non-empty errorMsg
// replaces the recorded error.
func (s *Store) UpdateJobStatus(ctx context.Context, jobID string, status jobs.JobStatus, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.byID[jobID]
	if !ok {
		return fmt.Errorf("UpdateJobStatus: %w: %s", jobs.ErrJobNotFound, jobID)
	}
	job.Status = status
	if errorMsg != "" {
		job.Error = errorMsg
	}
	return nil
}

var _ jobs.JobStore = (*Store)(nil)

package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dhruvdixit03/bank-statement-analyzer/internal/jobs"
	"github.com/dhruvdixit03/bank-statement-analyzer/internal/logger"
)

// ErrQueueClosed is returned when publishing to a stopped queue.
var ErrQueueClosed = errors.New("queue is closed")

const (
	defaultWorkers    = 2
	defaultMaxRetries = 2
	defaultRetryDelay = time.Second
)

// Queue is an in-memory implementation of job publisher and consumer.
// It uses Go channels for job distribution and is safe for concurrent use.
// Jobs are lost on restart.
type Queue struct {
	jobChan    chan *jobs.AnalyzeStatementJob
	closeChan  chan struct{}
	wg         sync.WaitGroup
	mu         sync.RWMutex
	store      jobs.JobStore
	closed     bool
	workers    int
	maxRetries int
	retryDelay time.Duration
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithWorkers sets how many jobs run at once.
func WithWorkers(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

// WithMaxRetries sets the default retry budget for jobs that don't set one.
func WithMaxRetries(n int) QueueOption {
	return func(q *Queue) {
		if n >= 0 {
			q.maxRetries = n
		}
	}
}

// WithRetryDelay sets the base delay before a failed job is re-enqueued.
// The n-th retry waits n times this delay.
func WithRetryDelay(d time.Duration) QueueOption {
	return func(q *Queue) {
		if d > 0 {
			q.retryDelay = d
		}
	}
}

// NewQueue creates a new in-memory job queue.
// bufferSize determines how many jobs can be queued before PublishAnalyzeStatement blocks.
func NewQueue(bufferSize int, store jobs.JobStore, opts ...QueueOption) *Queue {
	q := &Queue{
		jobChan:    make(chan *jobs.AnalyzeStatementJob, bufferSize),
		closeChan:  make(chan struct{}),
		store:      store,
		workers:    defaultWorkers,
		maxRetries: defaultMaxRetries,
		retryDelay: defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// PublishAnalyzeStatement implements the Publisher interface.
// It enqueues a statement analysis job for asynchronous processing.
func (q *Queue) PublishAnalyzeStatement(ctx context.Context, job *jobs.AnalyzeStatementJob) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = jobs.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = q.maxRetries
	}

	if q.store != nil {
		if err := q.store.SaveJob(ctx, job); err != nil {
			return fmt.Errorf("failed to save job: %w", err)
		}
	}

	select {
	case q.jobChan <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return ErrQueueClosed
	}
}

// Start implements the Consumer interface.
// It starts the workers, each handling one job at a time.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return ErrQueueClosed
	}
	q.mu.RUnlock()

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}

	log := logger.FromContext(ctx)
	log.Info().Int("workers", q.workers).Msg("job queue started")
	return nil
}

// worker processes jobs from the queue.
func (q *Queue) worker(ctx context.Context, handler jobs.JobHandler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case job := <-q.jobChan:
			if job == nil {
				return
			}

			q.processJob(ctx, job, handler)
		}
	}
}

// processJob executes a single job and schedules a retry when the failure
// is retryable and the job has budget left.
func (q *Queue) processJob(ctx context.Context, job *jobs.AnalyzeStatementJob, handler jobs.JobHandler) {
	log := logger.FromContext(ctx).With().
		Str("job_id", job.GetID()).
		Str("job_type", string(job.GetType())).
		Str("document", job.Document).
		Logger()

	job.Status = jobs.JobStatusRunning
	now := time.Now().UTC()
	job.StartedAt = &now
	q.save(ctx, job)

	err := handler(logger.WithContext(ctx, log), job)

	completedAt := time.Now().UTC()
	job.CompletedAt = &completedAt

	if err == nil {
		job.Status = jobs.JobStatusCompleted
		job.Error = ""
		job.FailedStage = ""
		job.Data = nil
		q.save(ctx, job)
		log.Info().Dur("elapsed", completedAt.Sub(now)).Msg("job completed")
		return
	}

	job.Error = err.Error()
	job.FailedStage = jobs.FailedStage(err)

	if !jobs.IsRetryable(err) || job.RetryCount >= job.MaxRetries {
		job.Status = jobs.JobStatusFailed
		job.Data = nil
		q.save(ctx, job)
		log.Error().Err(err).Int("retries", job.RetryCount).Msg("job failed")
		return
	}

	job.RetryCount++
	job.Status = jobs.JobStatusRetrying
	q.save(ctx, job)

	delay := time.Duration(job.RetryCount) * q.retryDelay
	log.Warn().Err(err).Int("retry", job.RetryCount).Dur("delay", delay).Msg("job failed, retrying")

	time.AfterFunc(delay, func() {
		job.Status = jobs.JobStatusPending
		job.StartedAt = nil
		job.CompletedAt = nil
		if err := q.PublishAnalyzeStatement(ctx, job); err != nil {
			log.Error().Err(err).Msg("failed to re-enqueue job")
			if q.store != nil {
				_ = q.store.UpdateJobStatus(context.WithoutCancel(ctx), job.JobID, jobs.JobStatusFailed, err.Error())
			}
		}
	})
}

func (q *Queue) save(ctx context.Context, job *jobs.AnalyzeStatementJob) {
	if q.store == nil {
		return
	}
	if err := q.store.SaveJob(context.WithoutCancel(ctx), job); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("job_id", job.JobID).Msg("failed to save job")
	}
}

// Stop implements the Consumer interface.
// It stops the queue and waits for all in-flight jobs to complete.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements the Publisher interface.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

// Ensure Queue implements both Publisher and Consumer interfaces.
var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)

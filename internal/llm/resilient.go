package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	"github.com/dhruvdixit03/bank-statement-analyzer/internal/logger"
)

const (
	defaultTimeout         = 3 * time.Minute
	defaultMaxTries        = 3
	defaultInitialInterval = time.Second
	defaultMaxInterval     = 30 * time.Second
)

// Options tunes a Resilient client. Zero values select defaults.
type Options struct {
	// Timeout bounds each attempt.
	Timeout time.Duration
	// MaxTries is the total number of attempts per call, including the first.
	MaxTries int
	// RequestsPerMinute limits attempts across all callers; 0 disables it.
	RequestsPerMinute int
	// InitialInterval and MaxInterval shape the exponential backoff.
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Resilient wraps a Client with a per-attempt timeout, bounded exponential
// backoff and an optional shared rate limit. Failures, timeouts and empty
// responses are retried; cancellation of the caller's context is not.
type Resilient struct {
	next    Client
	opts    Options
	limiter *rate.Limiter
}

// NewResilient wraps next.
func NewResilient(next Client, opts Options) *Resilient {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxTries <= 0 {
		opts.MaxTries = defaultMaxTries
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = defaultInitialInterval
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = defaultMaxInterval
	}

	r := &Resilient{next: next, opts: opts}
	if opts.RequestsPerMinute > 0 {
		r.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1)
	}
	return r
}

func (r *Resilient) Generate(ctx context.Context, model Model, prompt string) (string, error) {
	log := logger.FromContext(ctx)
	attempt := 0

	op := func() (string, error) {
		attempt++
		if attempt > 1 {
			RetriesTotal.WithLabelValues(model.Name).Inc()
		}

		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return "", backoff.Permanent(fmt.Errorf("rate limiter: %w", err))
			}
		}

		out, err := r.attempt(ctx, model, prompt)
		if err != nil {
			if ctx.Err() != nil {
				return "", backoff.Permanent(ctx.Err())
			}
			log.Warn().Err(err).
				Str("model", model.Name).
				Int("attempt", attempt).
				Int("max_tries", r.opts.MaxTries).
				Msg("model call failed")
			return "", err
		}
		return out, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.opts.InitialInterval
	b.MaxInterval = r.opts.MaxInterval

	out, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(r.opts.MaxTries)),
		backoff.WithMaxElapsedTime(0),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("Resilient.Generate: %s: %w", model.Name, ctxErr)
		}
		return "", fmt.Errorf("Resilient.Generate: %s after %d attempts: %w: %w", model.Name, attempt, ErrRetriesExhausted, err)
	}
	return out, nil
}

// attempt makes one timed call and records its outcome.
func (r *Resilient) attempt(ctx context.Context, model Model, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	start := time.Now()
	out, err := r.next.Generate(callCtx, model, prompt)
	RequestDuration.WithLabelValues(model.Name).Observe(time.Since(start).Seconds())

	switch {
	case err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		RequestsTotal.WithLabelValues(model.Name, "timeout").Inc()
		return "", fmt.Errorf("timed out after %s: %w", r.opts.Timeout, err)
	case err != nil:
		RequestsTotal.WithLabelValues(model.Name, "error").Inc()
		return "", err
	case strings.TrimSpace(out) == "":
		RequestsTotal.WithLabelValues(model.Name, "empty").Inc()
		return "", ErrEmptyResponse
	}

	RequestsTotal.WithLabelValues(model.Name, "success").Inc()
	return out, nil
}

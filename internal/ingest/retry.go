package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ragchat/internal/domain"
)

// RetryPolicy retries a batch up to MaxAttempts times in total, waiting
// attempt × BaseDelay after the n-th failed attempt. A provider hint that
// asks for a longer wait wins.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// ExhaustedError is returned once every attempt failed with a transient error.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// retryDelayer is implemented by provider errors carrying a Retry-After hint.
type retryDelayer interface {
	RetryDelay() time.Duration
}

// Delay is the wait after failed attempt number attempt (1-based).
func (p RetryPolicy) Delay(attempt int, err error) time.Duration {
	d := time.Duration(attempt) * p.BaseDelay
	var rd retryDelayer
	if errors.As(err, &rd) && rd.RetryDelay() > d {
		d = rd.RetryDelay()
	}
	return d
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do runs fn until it succeeds, fails fatally, or runs out of attempts.
// Fatal errors and context cancellation are returned as-is; running out of
// attempts yields *ExhaustedError. onRetry is called before each wait.
func (p RetryPolicy) Do(ctx context.Context, sleep SleepFunc, fn func(attempt int) error, onRetry func(attempt int, wait time.Duration, err error)) (int, error) {
	limit := p.MaxAttempts
	if limit <= 0 {
		limit = 1
	}
	var last error
	for attempt := 1; attempt <= limit; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}
		last = fn(attempt)
		if last == nil {
			return attempt, nil
		}
		if domain.IsFatal(last) || errors.Is(last, context.Canceled) {
			return attempt, last
		}
		if attempt == limit {
			break
		}
		wait := p.Delay(attempt, last)
		if onRetry != nil {
			onRetry(attempt, wait, last)
		}
		if err := sleep(ctx, wait); err != nil {
			return attempt, err
		}
	}
	return limit, &ExhaustedError{Attempts: limit, Last: last}
}

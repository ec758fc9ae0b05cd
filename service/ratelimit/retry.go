package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy describes a bounded retry.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first one.
	MaxAttempts int

	// Retryable reports whether a failed attempt may be retried.
	// A nil Retryable retries every error.
	Retryable func(error) bool

	// BeforeRetry runs before each retry with the attempt number that just failed.
	// Fetchers use it to acquire the rate limiter again.
	BeforeRetry func(attempt int, err error)
}

// ExhaustedError is returned when every attempt failed with a retryable error.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Retry runs op until it succeeds, fails with a non-retryable error, or the
// policy runs out of attempts. There is no delay between attempts; pacing is
// left to the limiter acquired by the caller.
func Retry[T any](ctx context.Context, p Policy, op func(attempt int) (T, error)) (T, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	attempt := 0
	permanent := false
	wrapped := func() (T, error) {
		attempt++
		res, err := op(attempt)
		if err == nil {
			return res, nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			permanent = true
			return res, backoff.Permanent(err)
		}
		return res, err
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uint64(maxAttempts-1)),
		ctx,
	)

	res, err := backoff.RetryNotifyWithData(wrapped, b, func(err error, _ time.Duration) {
		if p.BeforeRetry != nil {
			p.BeforeRetry(attempt, err)
		}
	})
	if err == nil {
		return res, nil
	}

	// Context cancellation and permanent errors come back unchanged.
	if permanent || ctx.Err() != nil {
		return res, err
	}
	return res, &ExhaustedError{Attempts: attempt, Err: err}
}

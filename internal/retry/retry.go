// Package retry runs an operation in a bounded attempt loop.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

const (
	defaultMaxAttempts = 3
	defaultMaxDelay    = 30 * time.Second
)

// Policy bounds a retry loop by attempt count. BaseDelay of zero retries
// immediately; otherwise the delay grows exponentially with ±25% jitter and is
// capped at MaxDelay. AttemptTimeout, when positive, caps the wall-clock time
// of a single attempt.
type Policy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	AttemptTimeout time.Duration
	Retryable      func(error) bool
}

// ExhaustedError is returned when every attempt failed with a retryable error.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("max retries exceeded after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as retryable for IsTransient.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err (or anything it wraps) was marked with
// Transient.
func IsTransient(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}

// Do calls fn until it succeeds, returns a non-retryable error, the attempt
// bound is reached, or ctx is done. It returns the number of attempts made.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTransient
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := p.attempt(ctx, fn)
		if err == nil {
			return attempt, nil
		}
		if ctx.Err() != nil {
			return attempt, ctx.Err()
		}
		if !retryable(err) && !p.timedOut(err) {
			return attempt, err
		}

		lastErr = err
		if attempt < maxAttempts {
			if delay := p.delay(attempt - 1); delay > 0 {
				select {
				case <-ctx.Done():
					return attempt, ctx.Err()
				case <-time.After(delay):
				}
			}
		}
	}
	return maxAttempts, &ExhaustedError{Attempts: maxAttempts, Err: lastErr}
}

func (p Policy) attempt(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.AttemptTimeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, p.AttemptTimeout)
	defer cancel()
	return fn(attemptCtx)
}

// An attempt that ran into its own timeout is retried like any transient
// failure.
func (p Policy) timedOut(err error) bool {
	return p.AttemptTimeout > 0 && errors.Is(err, context.DeadlineExceeded)
}

func (p Policy) delay(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultMaxDelay
	}

	base := float64(p.BaseDelay)
	delay := base * math.Pow(2.0, float64(attempt))

	jitter := delay * 0.25 * (2*rand.Float64() - 1)
	delay += jitter

	if delay > float64(maxDelay) {
		delay = float64(maxDelay)
	}
	return time.Duration(delay)
}

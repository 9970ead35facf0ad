// Package retry wraps remote oracle calls (entitlement checks, reply
// generation) with bounded exponential-backoff retries.
//
// Every error is retried uniformly: the executor deliberately distinguishes
// no error classes, leaving it to callers to decide what is worth retrying by
// how they construct the operation. A future refinement could stop retrying
// permission-denied style failures, but the current contract retries
// unconditionally until the attempt budget is spent.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrExhausted marks an operation that failed every attempt. The last
// underlying error is wrapped alongside it and remains reachable through
// errors.Is / errors.As.
var ErrExhausted = errors.New("retries exhausted")

// Executor runs operations with exponential backoff between attempts and a
// per-attempt timeout. The zero value is not usable; construct with New.
type Executor struct {
	maxAttempts    int
	baseDelay      time.Duration
	attemptTimeout time.Duration
}

// New constructs an Executor performing up to maxAttempts tries per call
// (always at least one), backing off exponentially from baseDelay with
// jitter, and bounding each attempt by attemptTimeout.
func New(maxAttempts int, baseDelay, attemptTimeout time.Duration) *Executor {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 2 * time.Second
	}
	if attemptTimeout <= 0 {
		attemptTimeout = 8 * time.Second
	}
	return &Executor{
		maxAttempts:    maxAttempts,
		baseDelay:      baseDelay,
		attemptTimeout: attemptTimeout,
	}
}

// Do runs op under the executor's retry policy and returns its result.
//
// Each attempt receives a child context bounded by the per-attempt timeout.
// On exhaustion the returned error wraps both ErrExhausted and the last
// error from op. Cancelling ctx stops the backoff wait between attempts.
func Do[T any](ctx context.Context, e *Executor, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	var lastErr error

	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(e.baseDelay),
		backoff.WithMultiplier(2),
		backoff.WithRandomizationFactor(0.2),
		backoff.WithMaxElapsedTime(0), // attempt count is the only budget
	), uint64(e.maxAttempts-1))

	attempt := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, e.attemptTimeout)
		defer cancel()

		var err error
		result, err = op(attemptCtx)
		lastErr = err
		return err
	}

	if err := backoff.Retry(attempt, backoff.WithContext(b, ctx)); err != nil {
		var zero T
		return zero, fmt.Errorf("%w: %w", ErrExhausted, lastErr)
	}
	return result, nil
}

// Package resilience wraps command execution with deadlines and retries.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/sagaflow/pkg/domain"
	"github.com/cenkalti/backoff/v5"
)

var (
	// ErrTimeout is returned when an action does not finish before its deadline.
	ErrTimeout = errors.New("operation timed out")

	// ErrRetriesExhausted matches every *RetriesExhaustedError.
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// RetriesExhaustedError carries the last attempt's error once every attempt failed.
type RetriesExhaustedError struct {
	Attempts int
	Err      error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("%s after %d attempts: %v", ErrRetriesExhausted, e.Attempts, e.Err)
}

func (e *RetriesExhaustedError) Unwrap() []error {
	return []error{ErrRetriesExhausted, e.Err}
}

// LastError returns the error of the final attempt, or err itself when no retries ran.
func LastError(err error) error {
	var exhausted *RetriesExhaustedError
	if errors.As(err, &exhausted) {
		return exhausted.Err
	}
	return err
}

// Attempts reports how many attempts produced err. Errors that did not come from an
// exhausted retry count as one.
func Attempts(err error) int {
	var exhausted *RetriesExhaustedError
	if errors.As(err, &exhausted) {
		return exhausted.Attempts
	}
	return 1
}

// Action is a unit of work that can be retried or bounded in time.
type Action[T any] func(ctx context.Context) (T, error)

// WithTimeout runs action with a deadline of d. A non-positive d runs it unbounded.
// The action receives a context that is canceled at the deadline; if it ignores the
// context, WithTimeout still returns ErrTimeout on time and the result is discarded.
func WithTimeout[T any](ctx context.Context, d time.Duration, action Action[T]) (T, error) {
	if d <= 0 {
		return action(ctx)
	}

	ctx, cancel := context.WithTimeoutCause(ctx, d, ErrTimeout)
	defer cancel()

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		val, err := action(ctx)
		done <- result{val, err}
	}()

	var zero T
	select {
	case r := <-done:
		if r.err != nil && errors.Is(context.Cause(ctx), ErrTimeout) {
			return zero, fmt.Errorf("%w after %s", ErrTimeout, d)
		}
		return r.val, r.err
	case <-ctx.Done():
		if errors.Is(context.Cause(ctx), ErrTimeout) {
			return zero, fmt.Errorf("%w after %s", ErrTimeout, d)
		}
		return zero, ctx.Err()
	}
}

// RetryOption configures WithRetry.
type RetryOption func(*retryConfig)

type retryConfig struct {
	retryable func(error) bool
	notify    func(err error, attempt int, wait time.Duration)
	jitter    float64
}

// WithRetryIf overrides which errors are retried.
// By default everything except context cancellation and domain.ErrDeferred is retried.
func WithRetryIf(fn func(error) bool) RetryOption {
	return func(c *retryConfig) {
		c.retryable = fn
	}
}

// WithNotify registers a callback invoked before each wait.
func WithNotify(fn func(err error, attempt int, wait time.Duration)) RetryOption {
	return func(c *retryConfig) {
		c.notify = fn
	}
}

// WithJitter randomizes each wait by +/- factor. Zero, the default, keeps waits exact.
func WithJitter(factor float64) RetryOption {
	return func(c *retryConfig) {
		c.jitter = factor
	}
}

func defaultRetryable(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, domain.ErrDeferred)
}

// WithRetry runs action up to policy.MaxRetries+1 times with exponential backoff.
// A single-attempt policy returns the action's error untouched. Otherwise the last
// error is wrapped in a *RetriesExhaustedError. Non-retryable errors return immediately.
func WithRetry[T any](ctx context.Context, policy domain.RetryPolicy, action Action[T], opts ...RetryOption) (T, error) {
	cfg := retryConfig{retryable: defaultRetryable}
	for _, opt := range opts {
		opt(&cfg)
	}

	attempts := 0
	op := func() (T, error) {
		attempts++
		val, err := action(ctx)
		if err != nil && !cfg.retryable(err) {
			return val, backoff.Permanent(err)
		}
		return val, err
	}

	retryOpts := []backoff.RetryOption{
		backoff.WithBackOff(newBackOff(policy, cfg.jitter)),
		backoff.WithMaxTries(uint(policy.MaxRetries) + 1),
	}
	if cfg.notify != nil {
		retryOpts = append(retryOpts, backoff.WithNotify(func(err error, wait time.Duration) {
			cfg.notify(err, attempts, wait)
		}))
	}

	val, err := backoff.Retry(ctx, op, retryOpts...)
	if err == nil {
		return val, nil
	}

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return val, permanent.Unwrap()
	}
	if attempts <= 1 || !cfg.retryable(err) {
		return val, err
	}
	return val, &RetriesExhaustedError{Attempts: attempts, Err: err}
}

// newBackOff translates a RetryPolicy into an exponential backoff.
// A zero MaxBackoffMs caps waits at the initial interval.
func newBackOff(policy domain.RetryPolicy, jitter float64) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = policy.InitialBackoff()
	b.RandomizationFactor = jitter
	b.Multiplier = policy.Multiplier
	if b.Multiplier < 1 {
		b.Multiplier = 1
	}
	b.MaxInterval = policy.MaxBackoff()
	if b.MaxInterval < b.InitialInterval {
		b.MaxInterval = b.InitialInterval
	}
	b.Reset()
	return b
}

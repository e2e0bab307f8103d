package util

import (
	"context"
	"errors"
	"time"
)

// BackoffFunc returns the pause before the given retry (1 = first retry).
type BackoffFunc func(retry int) time.Duration

// NoBackoff retries immediately.
func NoBackoff(int) time.Duration { return 0 }

// ExponentialBackoff doubles base on every retry, capped at max.
func ExponentialBackoff(base, max time.Duration) BackoffFunc {
	return func(retry int) time.Duration {
		d := base
		for i := 1; i < retry; i++ {
			d *= 2
			if d >= max {
				return max
			}
		}
		if d > max {
			return max
		}
		return d
	}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. The retry helpers return the
// wrapped error unchanged.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// RetryWithContext calls fn up to maxTries times until it returns a nil error,
// sleeping backoff(n) between attempts. It stops early when ctx is done, when
// fn returns a context error, or when fn returns a Permanent error.
// If maxTries <= 0, it defaults to 1. Returns the last error if all attempts fail.
func RetryWithContext[T any](
	ctx context.Context,
	maxTries int,
	backoff BackoffFunc,
	fn func(context.Context) (T, error),
) (T, error) {
	if maxTries <= 0 {
		maxTries = 1
	}
	if backoff == nil {
		backoff = NoBackoff
	}

	var lastErr error
	var zero T
	for i := 0; i < maxTries; i++ {
		if i > 0 {
			if err := sleepContext(ctx, backoff(i)); err != nil {
				return zero, err
			}
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return zero, err
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return zero, perm.err
		}
		lastErr = err
	}
	return zero, lastErr
}

// RetryErrWithContext is RetryWithContext for functions without a result.
func RetryErrWithContext(
	ctx context.Context,
	maxTries int,
	backoff BackoffFunc,
	fn func(context.Context) error,
) error {
	_, err := RetryWithContext(ctx, maxTries, backoff, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

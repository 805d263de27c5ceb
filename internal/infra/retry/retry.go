// Package retry runs a single outbound call under a bounded retry policy.
package retry

import (
	"context"
	"time"
)

// Policy describes how many times a call is attempted and when it is retried.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first. Values < 1 mean 1.
	MaxAttempts int
	// Backoff is the fixed wait between attempts.
	Backoff time.Duration
	// Retryable decides whether a failed attempt may be retried. nil retries every error.
	Retryable func(error) bool
}

// Default is the chat completion policy: two attempts, one second apart.
func Default(retryable func(error) bool) Policy {
	return Policy{MaxAttempts: 2, Backoff: time.Second, Retryable: retryable}
}

// OnRetry is an optional hook invoked before each wait, with the 1-based attempt that failed.
type OnRetry func(attempt int, err error)

// Do calls fn until it succeeds, the policy is exhausted, or ctx is done.
// The last error from fn is returned unchanged.
func Do[T any](ctx context.Context, p Policy, hook OnRetry, fn func(context.Context) (T, error)) (T, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var (
		out T
		err error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		out, err = fn(ctx)
		if err == nil {
			return out, nil
		}
		if attempt == attempts || !p.retryable(err) {
			return out, err
		}
		if hook != nil {
			hook(attempt, err)
		}
		if waitErr := wait(ctx, p.Backoff); waitErr != nil {
			return out, err
		}
	}
	return out, err
}

func (p Policy) retryable(err error) bool {
	if p.Retryable == nil {
		return true
	}
	return p.Retryable(err)
}

// wait blocks for d or until ctx is done.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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

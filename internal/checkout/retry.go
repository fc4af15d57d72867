package checkout

import (
	"context"
	"time"
)

type retryPolicy struct {
	attempts int
	backoff  time.Duration
	timeout  time.Duration
}

// retry runs fn with a fresh per-attempt timeout until it succeeds, returns a
// non-transient error, or runs out of attempts. Backoff doubles per attempt.
func retry[T any](ctx context.Context, p retryPolicy, transient func(error) bool, fn func(context.Context) (T, error)) (T, int, error) {
	var (
		out T
		err error
	)
	wait := p.backoff
	for attempt := 1; ; attempt++ {
		out, err = callWithTimeout(ctx, p.timeout, fn)
		if err == nil || !transient(err) || attempt >= p.attempts {
			return out, attempt, err
		}
		select {
		case <-ctx.Done():
			return out, attempt, err
		case <-time.After(wait):
		}
		wait *= 2
	}
}

func callWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(ctx)
}

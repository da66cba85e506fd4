package retry

import (
	"context"
	"math/rand"
	"time"

	"github.com/pkg/errors"

	"github.com/code-payments/vote-provisioner/pkg/retry/backoff"
)

// Strategy decides whether an action that failed with err, after attempts
// tries, should run again. Strategies may block, for example to back off.
type Strategy func(attempts uint, err error) bool

// Limit allows at most maxAttempts runs of the action, including the first.
func Limit(maxAttempts uint) Strategy {
	return func(attempts uint, _ error) bool {
		return attempts < maxAttempts
	}
}

// RetriableErrors only retries errors that match one of retriable, as
// determined by errors.Is.
func RetriableErrors(retriable ...error) Strategy {
	return func(_ uint, err error) bool {
		for _, target := range retriable {
			if errors.Is(err, target) {
				return true
			}
		}
		return false
	}
}

// Context stops retrying once ctx is done.
func Context(ctx context.Context) Strategy {
	return func(uint, error) bool {
		return ctx.Err() == nil
	}
}

// Backoff waits for the delay given by strategy, capped at maxBackoff, before
// every retry.
func Backoff(strategy backoff.Strategy, maxBackoff time.Duration) Strategy {
	return BackoffContext(context.Background(), strategy, maxBackoff)
}

// BackoffContext is like Backoff, but stops retrying as soon as ctx is done,
// including while waiting.
func BackoffContext(ctx context.Context, strategy backoff.Strategy, maxBackoff time.Duration) Strategy {
	return func(attempts uint, _ error) bool {
		return wait(ctx, capped(strategy(attempts), maxBackoff))
	}
}

// BackoffWithJitter is like Backoff, but varies each delay by up to jitter
// (a fraction of the capped delay) in either direction.
func BackoffWithJitter(strategy backoff.Strategy, maxBackoff time.Duration, jitter float64) Strategy {
	return func(attempts uint, _ error) bool {
		delay := capped(strategy(attempts), maxBackoff)
		offset := (rand.Float64()*2 - 1) * jitter
		return wait(context.Background(), time.Duration(float64(delay)*(1+offset)))
	}
}

func capped(delay, max time.Duration) time.Duration {
	if delay > max {
		return max
	}
	return delay
}

// wait blocks for d, returning false if ctx finished first. Tests replace it
// to observe delays without sleeping.
var wait = func(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

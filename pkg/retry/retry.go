// Package retry implements bounded retries with jittered exponential backoff.
package retry

import (
	"context"
	"math/rand"
	"time"
)

// Policy defines how an operation is retried.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultPolicy is a sensible default for transient network failures.
var DefaultPolicy = Policy{
	MaxAttempts:    3,
	InitialBackoff: 100 * time.Millisecond,
	MaxBackoff:     2 * time.Second,
}

// IsTransientFunc reports whether an error is transient and worth retrying.
type IsTransientFunc func(error) bool

// Always treats every error as transient.
func Always(error) bool { return true }

// Do executes fn with retries according to the policy. The delay after each
// failed attempt is backoff plus up to 50% random jitter, doubling per attempt
// up to MaxBackoff. Returns the last error when attempts are exhausted.
func Do(ctx context.Context, policy Policy, isTransient IsTransientFunc, fn func() error) error {
	var err error
	backoff := policy.InitialBackoff

	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}

		if !isTransient(err) {
			return err
		}

		if attempt == policy.MaxAttempts-1 {
			break
		}

		sleep := backoff
		if backoff > 1 {
			sleep += time.Duration(rand.Int63n(int64(backoff / 2)))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
			backoff = min(backoff*2, policy.MaxBackoff)
		}
	}

	return err
}

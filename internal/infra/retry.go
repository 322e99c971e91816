package infra

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	connectAttempts = 5
	connectBackoff  = 500 * time.Millisecond
)

// retry runs fn until it succeeds, attempts are exhausted or ctx ends,
// backing off exponentially from initial between attempts.
func retry(ctx context.Context, attempts int, initial time.Duration, fn func(ctx context.Context) error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = initial
	if attempts < 1 {
		attempts = 1
	}
	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(attempts-1)), ctx)
	return backoff.Retry(func() error {
		return fn(ctx)
	}, b)
}

// Package retry bounds startup connection attempts with exponential backoff.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy configures how often and how patiently an operation is retried.
type Policy struct {
	// Retries is the number of attempts after the first one. Zero means a
	// single attempt.
	Retries         int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Do runs op until it succeeds, the retries are used up or ctx is done.
// notify, when non-nil, is called before every wait with the failed attempt's
// error and the upcoming delay. The last error from op is returned.
func Do(ctx context.Context, p Policy, op func() error, notify func(err error, next time.Duration)) error {
	if p.Retries <= 0 {
		return op()
	}

	bo := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		bo.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		bo.MaxInterval = p.MaxInterval
	}
	// Attempts are bounded by count, not elapsed time.
	bo.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(p.Retries)), ctx)
	if notify == nil {
		return backoff.Retry(op, policy)
	}
	return backoff.RetryNotify(op, policy, notify)
}

package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/ledgerflow/internal/contracts"
)

// Manager grants time-bounded mutually-exclusive leases keyed by a
// destination resource identifier. Any store offering atomic
// check-and-set with TTL can back it; exclusivity plus TTL expiry is the
// contract, not the technology.
type Manager interface {
	// Acquire grants the lease or fails with ErrLockContention after
	// bounded retries. Contention is retryable, not fatal.
	Acquire(ctx context.Context, resource string, ttl time.Duration) (*contracts.Lease, error)

	// Renew extends a held lease or fails with ErrLeaseExpired
	Renew(ctx context.Context, lease *contracts.Lease, ttl time.Duration) (*contracts.Lease, error)

	// Release frees the lease. Releasing an already-expired lease is
	// not an error.
	Release(ctx context.Context, lease *contracts.Lease) error
}

// Options tune the bounded acquire backoff
type Options struct {
	MaxRetries int           // attempts before LockContention
	RetryBase  time.Duration // initial backoff, doubled per attempt
}

// DefaultOptions matches the engine config defaults
func DefaultOptions() Options {
	return Options{
		MaxRetries: 5,
		RetryBase:  200 * time.Millisecond,
	}
}

func (o Options) normalized() Options {
	if o.MaxRetries <= 0 {
		o.MaxRetries = 1
	}
	if o.RetryBase <= 0 {
		o.RetryBase = 200 * time.Millisecond
	}
	return o
}

// backoffCap bounds a single sleep between acquire attempts
const backoffCap = 5 * time.Second

// acquireLoop retries a single-shot acquire with bounded exponential
// backoff. try returns (lease, held-by-other, error).
func acquireLoop(ctx context.Context, resource string, opts Options,
	try func(context.Context) (*contracts.Lease, bool, error)) (*contracts.Lease, error) {

	opts = opts.normalized()
	delay := opts.RetryBase

	for attempt := 1; ; attempt++ {
		lease, held, err := try(ctx)
		if err != nil {
			return nil, err
		}
		if !held {
			return lease, nil
		}
		if attempt >= opts.MaxRetries {
			return nil, fmt.Errorf("resource %s after %d attempts: %w",
				resource, attempt, contracts.ErrLockContention)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > backoffCap {
			delay = backoffCap
		}
	}
}

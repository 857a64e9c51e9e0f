package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/ledgerflow/internal/contracts"
)

// fastOpts keeps backoff negligible so contention tests stay quick
var fastOpts = Options{MaxRetries: 2, RetryBase: time.Millisecond}

func TestMemoryManager_AcquireRelease(t *testing.T) {
	m := NewMemoryManager(fastOpts)
	ctx := context.Background()

	lease, err := m.Acquire(ctx, "warehouse.daily_prices", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "warehouse.daily_prices", lease.Resource)
	assert.NotEmpty(t, lease.Token)

	// Held: a second acquire exhausts its retries
	_, err = m.Acquire(ctx, "warehouse.daily_prices", time.Minute)
	require.Error(t, err)
	assert.True(t, errors.Is(err, contracts.ErrLockContention))

	// A different resource is unaffected
	other, err := m.Acquire(ctx, "warehouse.financials", time.Minute)
	require.NoError(t, err)
	require.NoError(t, m.Release(ctx, other))

	// Released: reacquire succeeds
	require.NoError(t, m.Release(ctx, lease))
	again, err := m.Acquire(ctx, "warehouse.daily_prices", time.Minute)
	require.NoError(t, err)
	assert.NotEqual(t, lease.Token, again.Token)
}

func TestMemoryManager_TTLExpiry(t *testing.T) {
	m := NewMemoryManager(fastOpts)
	ctx := context.Background()

	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	lease, err := m.Acquire(ctx, "warehouse.daily_prices", time.Minute)
	require.NoError(t, err)

	// Lease lapses without an explicit release
	now = now.Add(61 * time.Second)

	taken, err := m.Acquire(ctx, "warehouse.daily_prices", time.Minute)
	require.NoError(t, err, "expired lease must not block a new holder")

	// The old holder can no longer renew or steal the release
	_, err = m.Renew(ctx, lease, time.Minute)
	assert.True(t, errors.Is(err, contracts.ErrLeaseExpired))

	require.NoError(t, m.Release(ctx, lease), "releasing a lapsed lease is a no-op")
	_, err = m.Renew(ctx, taken, time.Minute)
	assert.NoError(t, err, "stale release must not free the new holder's lease")
}

func TestMemoryManager_Renew(t *testing.T) {
	m := NewMemoryManager(fastOpts)
	ctx := context.Background()

	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	lease, err := m.Acquire(ctx, "warehouse.daily_prices", time.Minute)
	require.NoError(t, err)

	// Renew at the half-life pushes expiry forward
	now = now.Add(30 * time.Second)
	renewed, err := m.Renew(ctx, lease, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, lease.Token, renewed.Token)

	// 59s after renewal the original TTL would have lapsed twice over
	now = now.Add(59 * time.Second)
	_, err = m.Renew(ctx, renewed, time.Minute)
	assert.NoError(t, err)
}

func TestMemoryManager_ContextCancelDuringBackoff(t *testing.T) {
	m := NewMemoryManager(Options{MaxRetries: 10, RetryBase: 50 * time.Millisecond})
	ctx := context.Background()

	lease, err := m.Acquire(ctx, "warehouse.daily_prices", time.Minute)
	require.NoError(t, err)
	defer m.Release(ctx, lease)

	cancelCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()

	_, err = m.Acquire(cancelCtx, "warehouse.daily_prices", time.Minute)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestMemoryManager_MutualExclusion(t *testing.T) {
	m := NewMemoryManager(Options{MaxRetries: 200, RetryBase: time.Millisecond})
	ctx := context.Background()

	var mu sync.Mutex
	holders := 0
	maxHolders := 0

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			lease, err := m.Acquire(ctx, "warehouse.daily_prices", time.Minute)
			if !assert.NoError(t, err) {
				return
			}

			mu.Lock()
			holders++
			if holders > maxHolders {
				maxHolders = holders
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			holders--
			mu.Unlock()

			assert.NoError(t, m.Release(ctx, lease))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxHolders, "at most one holder at any instant")
}

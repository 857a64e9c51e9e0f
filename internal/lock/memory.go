package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/ledgerflow/internal/contracts"
)

// MemoryManager keeps lease state in process memory. It honors the same
// exclusivity and TTL contract as the Redis backend and exists for
// deterministic tests and single-process runs; it cannot coordinate
// across processes.
type MemoryManager struct {
	mu     sync.Mutex
	leases map[string]memLease
	opts   Options

	// now is swappable so TTL expiry is testable without sleeping
	now func() time.Time
}

type memLease struct {
	token     string
	expiresAt time.Time
}

// NewMemoryManager creates an in-memory lock manager
func NewMemoryManager(opts Options) *MemoryManager {
	return &MemoryManager{
		leases: make(map[string]memLease),
		opts:   opts,
		now:    time.Now,
	}
}

// Acquire grants a lease on the resource, retrying with bounded backoff
func (m *MemoryManager) Acquire(ctx context.Context, resource string, ttl time.Duration) (*contracts.Lease, error) {
	token := uuid.NewString()

	return acquireLoop(ctx, resource, m.opts, func(ctx context.Context) (*contracts.Lease, bool, error) {
		m.mu.Lock()
		defer m.mu.Unlock()

		now := m.now()
		if cur, ok := m.leases[resource]; ok && now.Before(cur.expiresAt) {
			return nil, true, nil
		}

		m.leases[resource] = memLease{token: token, expiresAt: now.Add(ttl)}
		return &contracts.Lease{
			Resource:   resource,
			Token:      token,
			AcquiredAt: now,
			TTL:        ttl,
		}, false, nil
	})
}

// Renew extends the lease TTL if this holder still owns it
func (m *MemoryManager) Renew(ctx context.Context, lease *contracts.Lease, ttl time.Duration) (*contracts.Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cur, ok := m.leases[lease.Resource]
	if !ok || cur.token != lease.Token || !now.Before(cur.expiresAt) {
		return nil, fmt.Errorf("resource %s: %w", lease.Resource, contracts.ErrLeaseExpired)
	}

	m.leases[lease.Resource] = memLease{token: lease.Token, expiresAt: now.Add(ttl)}
	return &contracts.Lease{
		Resource:   lease.Resource,
		Token:      lease.Token,
		AcquiredAt: now,
		TTL:        ttl,
	}, nil
}

// Release frees the lease if this holder still owns it
func (m *MemoryManager) Release(_ context.Context, lease *contracts.Lease) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.leases[lease.Resource]; ok && cur.token == lease.Token {
		delete(m.leases, lease.Resource)
	}
	return nil
}

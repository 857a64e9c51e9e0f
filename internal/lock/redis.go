package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/wonny/ledgerflow/internal/contracts"
	"github.com/wonny/ledgerflow/pkg/logger"
	"github.com/wonny/ledgerflow/pkg/redis"
)

// keyPrefix namespaces lease keys in the shared store
const keyPrefix = "etl:lock:"

// releaseScript deletes the key only if this holder still owns it
var releaseScript = goredis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// renewScript extends the TTL only if this holder still owns the key
var renewScript = goredis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// RedisManager backs leases with Redis SET NX PX. The store is shared by
// every ETL worker and is the sole source of truth for mutual exclusion.
// ⭐ SSOT: 분산 락은 여기서만
type RedisManager struct {
	client *redis.Client
	logger *logger.Logger
	opts   Options
}

// NewRedisManager creates a Redis-backed lock manager
func NewRedisManager(client *redis.Client, log *logger.Logger, opts Options) *RedisManager {
	return &RedisManager{
		client: client,
		logger: log,
		opts:   opts,
	}
}

// Acquire grants a lease on the resource, retrying with bounded backoff
func (m *RedisManager) Acquire(ctx context.Context, resource string, ttl time.Duration) (*contracts.Lease, error) {
	token := uuid.NewString()
	key := keyPrefix + resource

	lease, err := acquireLoop(ctx, resource, m.opts, func(ctx context.Context) (*contracts.Lease, bool, error) {
		ok, err := m.client.Redis().SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return nil, false, fmt.Errorf("lease store set: %w", err)
		}
		if !ok {
			return nil, true, nil
		}
		return &contracts.Lease{
			Resource:   resource,
			Token:      token,
			AcquiredAt: time.Now(),
			TTL:        ttl,
		}, false, nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.WithFields(map[string]interface{}{
		"resource": resource,
		"token":    token,
		"ttl":      ttl.String(),
	}).Debug("Lease acquired")

	return lease, nil
}

// Renew extends the lease TTL if this holder still owns it
func (m *RedisManager) Renew(ctx context.Context, lease *contracts.Lease, ttl time.Duration) (*contracts.Lease, error) {
	key := keyPrefix + lease.Resource

	n, err := renewScript.Run(ctx, m.client.Redis(), []string{key}, lease.Token, ttl.Milliseconds()).Int()
	if err != nil {
		return nil, fmt.Errorf("lease store renew: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("resource %s: %w", lease.Resource, contracts.ErrLeaseExpired)
	}

	return &contracts.Lease{
		Resource:   lease.Resource,
		Token:      lease.Token,
		AcquiredAt: time.Now(),
		TTL:        ttl,
	}, nil
}

// Release frees the lease if this holder still owns it. A lapsed lease
// releases to a no-op.
func (m *RedisManager) Release(ctx context.Context, lease *contracts.Lease) error {
	key := keyPrefix + lease.Resource

	n, err := releaseScript.Run(ctx, m.client.Redis(), []string{key}, lease.Token).Int()
	if err != nil {
		return fmt.Errorf("lease store release: %w", err)
	}

	m.logger.WithFields(map[string]interface{}{
		"resource": lease.Resource,
		"released": n == 1,
	}).Debug("Lease released")

	return nil
}

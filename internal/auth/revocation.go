package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/redis/go-redis/v9"
)

// Revocations is the set of sessions logged out or invalidated before their natural expiry.
// Entries only need to live until the session would have expired anyway.
type Revocations interface {
	Revoke(ctx context.Context, sessionID string, until time.Time) error
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
}

// MemoryRevocations keeps the set in process. It is correct for a single instance only.
type MemoryRevocations struct {
	cache *ttlcache.Cache[string, time.Time]
	now   func() time.Time
}

// NewMemoryRevocations starts the expiry loop; call Close to stop it.
func NewMemoryRevocations() *MemoryRevocations {
	cache := ttlcache.New(
		ttlcache.WithDisableTouchOnHit[string, time.Time](),
	)
	go cache.Start()
	return &MemoryRevocations{cache: cache, now: time.Now}
}

func (m *MemoryRevocations) Revoke(_ context.Context, sessionID string, until time.Time) error {
	ttl := until.Sub(m.now())
	if strings.TrimSpace(sessionID) == "" || ttl <= 0 {
		return nil
	}
	m.cache.Set(sessionID, until, ttl)
	return nil
}

func (m *MemoryRevocations) IsRevoked(_ context.Context, sessionID string) (bool, error) {
	return m.cache.Get(sessionID) != nil, nil
}

// Len returns the number of live entries.
func (m *MemoryRevocations) Len() int { return m.cache.Len() }

// Close stops the expiry loop.
func (m *MemoryRevocations) Close() { m.cache.Stop() }

const revokedKeyPrefix = "sitegate:revoked:"

// RedisRevocations shares the set between instances. Keys expire with the session.
type RedisRevocations struct {
	rdb redis.UniversalClient
	now func() time.Time
}

func NewRedisRevocations(rdb redis.UniversalClient) *RedisRevocations {
	return &RedisRevocations{rdb: rdb, now: time.Now}
}

func (r *RedisRevocations) Revoke(ctx context.Context, sessionID string, until time.Time) error {
	ttl := until.Sub(r.now())
	if strings.TrimSpace(sessionID) == "" || ttl <= 0 {
		return nil
	}
	return r.rdb.Set(ctx, revokedKeyPrefix+sessionID, until.Unix(), ttl).Err()
}

func (r *RedisRevocations) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	err := r.rdb.Get(ctx, revokedKeyPrefix+sessionID).Err()
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, redis.Nil):
		return false, nil
	default:
		return false, err
	}
}

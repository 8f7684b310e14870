package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestMemoryRevocations(t *testing.T) {
	revs := NewMemoryRevocations()
	defer revs.Close()
	ctx := context.Background()

	require.NoError(t, revs.Revoke(ctx, "sid-1", time.Now().Add(time.Hour)))
	require.NoError(t, revs.Revoke(ctx, "sid-past", time.Now().Add(-time.Minute)))
	require.NoError(t, revs.Revoke(ctx, "", time.Now().Add(time.Hour)))

	ok, err := revs.IsRevoked(ctx, "sid-1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = revs.IsRevoked(ctx, "sid-past")
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 1, revs.Len())
}

func TestRedisRevocationsExpireWithSession(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	revs := NewRedisRevocations(rdb)
	ctx := context.Background()

	require.NoError(t, revs.Revoke(ctx, "sid-1", time.Now().Add(time.Hour)))
	ok, err := revs.IsRevoked(ctx, "sid-1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = revs.IsRevoked(ctx, "sid-2")
	require.NoError(t, err)
	require.False(t, ok)

	mr.FastForward(2 * time.Hour)
	ok, err = revs.IsRevoked(ctx, "sid-1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisRevocationsReportsStoreErrors(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	_, err := NewRedisRevocations(rdb).IsRevoked(context.Background(), "sid-1")
	require.Error(t, err)
}

func TestRevokeCoversRefreshedSiblings(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	clock := newClock()
	revs := NewRedisRevocations(rdb)
	revs.now = clock.Now
	codec := mustCodec(t, clientAudience(), WithClock(clock.Now), WithRevocations(revs))
	ctx := context.Background()

	_, first, err := codec.Issue(clientIdentity())
	require.NoError(t, err)

	clock.Advance(7*time.Hour + 30*time.Minute)
	mr.FastForward(7*time.Hour + 30*time.Minute)
	refreshed, _, err := codec.Reissue(first)
	require.NoError(t, err)

	// revoked with the older token, which expires 30 minutes from now
	require.NoError(t, codec.Revoke(ctx, first))
	_, err = codec.Verify(ctx, refreshed)
	require.ErrorIs(t, err, ErrInvalidToken)

	clock.Advance(31 * time.Minute)
	mr.FastForward(31 * time.Minute)
	_, err = codec.Verify(ctx, refreshed)
	require.ErrorIs(t, err, ErrInvalidToken)

	clock.Advance(7 * time.Hour)
	mr.FastForward(7 * time.Hour)
	_, err = codec.Verify(ctx, refreshed)
	require.ErrorIs(t, err, ErrInvalidToken)
}

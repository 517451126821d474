package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/bundleworks/internal/config"
)

func newTestClient(t *testing.T) *redis.Client {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestTokenBucketExhaustsBurst(t *testing.T) {
	ctx := context.Background()
	bucket := NewTokenBucket(newTestClient(t))

	// Slow refill so back-to-back calls see the burst only.
	for i := 0; i < 2; i++ {
		res, err := bucket.Allow(ctx, "bucket:test", 0.5, 2)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}

	res, err := bucket.Allow(ctx, "bucket:test", 0.5, 2)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfter, time.Duration(0))
}

func TestTokenBucketKeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	bucket := NewTokenBucket(newTestClient(t))

	res, err := bucket.Allow(ctx, "bucket:ws-a", 0.5, 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = bucket.Allow(ctx, "bucket:ws-a", 0.5, 1)
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	res, err = bucket.Allow(ctx, "bucket:ws-b", 0.5, 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestTokenBucketRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	bucket := NewTokenBucket(newTestClient(t))

	_, err := bucket.Allow(ctx, "", 1, 1)
	assert.Error(t, err)

	_, err = bucket.Allow(ctx, "bucket:test", 0, 1)
	assert.Error(t, err)

	_, err = bucket.Allow(ctx, "bucket:test", 1, 0)
	assert.Error(t, err)
}

func TestLockerMutualExclusion(t *testing.T) {
	ctx := context.Background()
	locker := NewLocker(newTestClient(t))

	token, ok, err := locker.TryLock(ctx, "lock:test", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, token)

	_, ok, err = locker.TryLock(ctx, "lock:test", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// A stale token must not release someone else's lock.
	require.NoError(t, locker.Release(ctx, "lock:test", "not-the-token"))
	_, ok, err = locker.TryLock(ctx, "lock:test", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, locker.Release(ctx, "lock:test", token))
	_, ok, err = locker.TryLock(ctx, "lock:test", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConsumeLimiterDisabledAllowsEverything(t *testing.T) {
	ctx := context.Background()

	var limiter *ConsumeLimiter
	assert.False(t, limiter.Enabled())

	res, err := limiter.AllowWorkspace(ctx, "ws_1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = limiter.AllowEndpoint(ctx)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	_, ok, err := limiter.TryLockSweep(ctx, "enterprise_billing")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNewConsumeLimiterValidatesConfig(t *testing.T) {
	cfg := config.Config{}
	cfg.RateLimit = config.RateLimitConfig{Enabled: true}

	_, err := NewConsumeLimiter(cfg)
	assert.Error(t, err)

	cfg.RedisAddr = "localhost:6379"
	_, err = NewConsumeLimiter(cfg)
	assert.Error(t, err)

	cfg.RateLimit.WorkspaceRate = 10
	cfg.RateLimit.WorkspaceBurst = 20
	cfg.RateLimit.EndpointRate = 100
	cfg.RateLimit.EndpointBurst = 200
	cfg.RateLimit.LockTTLSeconds = 30

	limiter, err := NewConsumeLimiter(cfg)
	require.NoError(t, err)
	assert.True(t, limiter.Enabled())
}

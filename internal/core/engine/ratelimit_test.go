package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestLimiter(clock *fakeClock) *RateLimiter {
	limiter := NewRateLimiter(nil)
	limiter.Clock = clock.Now
	return limiter
}

func TestRateLimiterWindow(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	limiter := newTestLimiter(clock)
	limiter.MaxRequests = 3
	limiter.Window = time.Minute

	key := Key("mastodon.social", "GET", "/api/v1/timelines/home")
	for i := 0; i < 3; i++ {
		allowed, _, err := limiter.Allow(ctx, key)
		require.NoError(t, err)
		require.True(t, allowed)
		require.NoError(t, limiter.Record(ctx, key))
	}

	allowed, wait, err := limiter.Allow(ctx, key)
	require.NoError(t, err)
	require.False(t, allowed)
	require.Equal(t, time.Minute, wait)

	clock.Advance(59 * time.Second)
	allowed, wait, err = limiter.Allow(ctx, key)
	require.NoError(t, err)
	require.False(t, allowed)
	require.Equal(t, time.Second, wait)

	clock.Advance(time.Second)
	allowed, _, err = limiter.Allow(ctx, key)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestRateLimiterDefaultQuota(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	limiter := newTestLimiter(clock)

	key := "a:GET:/x"
	for i := 0; i < DefaultMaxRequests; i++ {
		require.NoError(t, limiter.Record(ctx, key))
	}
	allowed, _, err := limiter.Allow(ctx, key)
	require.NoError(t, err)
	require.False(t, allowed)

	clock.Advance(DefaultWindow)
	allowed, _, err = limiter.Allow(ctx, key)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestRateLimiterKeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	limiter := newTestLimiter(clock)
	limiter.MaxRequests = 1

	require.NoError(t, limiter.Record(ctx, "a:GET:/x"))

	allowed, _, err := limiter.Allow(ctx, "a:GET:/x")
	require.NoError(t, err)
	require.False(t, allowed)

	allowed, _, err = limiter.Allow(ctx, "a:POST:/x")
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestRateLimiterRetryAfter(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	limiter := newTestLimiter(clock)

	wait, err := limiter.Record429(ctx, "a:GET:/x", 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, 5*time.Second, wait)

	allowed, remaining, err := limiter.Allow(ctx, "a:GET:/x")
	require.NoError(t, err)
	require.False(t, allowed)
	require.Equal(t, 5*time.Second, remaining)

	clock.Advance(4999 * time.Millisecond)
	allowed, _, err = limiter.Allow(ctx, "a:GET:/x")
	require.NoError(t, err)
	require.False(t, allowed)

	clock.Advance(time.Millisecond)
	allowed, _, err = limiter.Allow(ctx, "a:GET:/x")
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestRateLimiterZeroRetryAfterIsImmediate(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	limiter := newTestLimiter(clock)

	wait, err := limiter.Record429(ctx, "a:GET:/x", 0)
	require.NoError(t, err)
	require.Zero(t, wait)

	allowed, remaining, err := limiter.Allow(ctx, "a:GET:/x")
	require.NoError(t, err)
	require.True(t, allowed)
	require.Zero(t, remaining)
}

func TestRateLimiterExponentialBackoff(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	limiter := newTestLimiter(clock)
	limiter.MaxBackoff = 5 * time.Second

	var waits []time.Duration
	for i := 0; i < 5; i++ {
		wait, err := limiter.Record429(ctx, "a:GET:/x", NoRetryAfter)
		require.NoError(t, err)
		waits = append(waits, wait)
	}

	require.Equal(t, []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		5 * time.Second,
		5 * time.Second,
	}, waits)

	remaining, err := limiter.ResetTime(ctx, "a:GET:/x")
	require.NoError(t, err)
	require.Equal(t, 5*time.Second, remaining)
}

func TestRateLimiterWindowResetClearsBackoff(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	limiter := newTestLimiter(clock)
	limiter.Window = time.Second

	_, err := limiter.Record429(ctx, "a:GET:/x", time.Hour)
	require.NoError(t, err)

	clock.Advance(time.Second)
	allowed, _, err := limiter.Allow(ctx, "a:GET:/x")
	require.NoError(t, err)
	require.True(t, allowed)

	wait, err := limiter.Record429(ctx, "a:GET:/x", NoRetryAfter)
	require.NoError(t, err)
	require.Equal(t, time.Second, wait)
}

func TestRateLimiterClear(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	limiter := newTestLimiter(clock)
	limiter.MaxRequests = 1

	require.NoError(t, limiter.Record(ctx, "a:GET:/x"))
	require.NoError(t, limiter.Record(ctx, "a:GET:/y"))

	require.NoError(t, limiter.Clear(ctx, "a:GET:/x"))
	allowed, _, err := limiter.Allow(ctx, "a:GET:/x")
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, _, err = limiter.Allow(ctx, "a:GET:/y")
	require.NoError(t, err)
	require.False(t, allowed)

	require.NoError(t, limiter.ClearAll(ctx))
	allowed, _, err = limiter.Allow(ctx, "a:GET:/y")
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestKey(t *testing.T) {
	require.Equal(t, "mastodon.social:GET:/api/v1/statuses/1", Key("Mastodon.Social", "get", "/api/v1/statuses/1?foo=bar"))
}

func TestNilLimiterAllows(t *testing.T) {
	var limiter *RateLimiter
	allowed, wait, err := limiter.Allow(context.Background(), "x")
	require.NoError(t, err)
	require.True(t, allowed)
	require.Zero(t, wait)
}

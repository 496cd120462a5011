package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type stepClock struct{ now time.Time }

func (c *stepClock) Now() time.Time { return c.now }

func newTestLimiter(t *testing.T, clock *stepClock) (Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return Limiter{Client: client, Prefix: "test:", Now: clock.Now}, mr
}

func TestLimiterSlidingWindow(t *testing.T) {
	clock := &stepClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	limiter, _ := newTestLimiter(t, clock)
	ctx := context.Background()
	window := 10 * time.Second

	allowed, remaining, reset, err := limiter.Allow(ctx, "key", window, 2)
	require.NoError(t, err)
	require.True(t, allowed)
	require.Equal(t, 1, remaining)
	require.True(t, reset.Equal(clock.now.Add(window)))

	clock.now = clock.now.Add(4 * time.Second)
	allowed, remaining, _, err = limiter.Allow(ctx, "key", window, 2)
	require.NoError(t, err)
	require.True(t, allowed)
	require.Equal(t, 0, remaining)

	clock.now = clock.now.Add(time.Second)
	allowed, remaining, reset, err = limiter.Allow(ctx, "key", window, 2)
	require.NoError(t, err)
	require.False(t, allowed)
	require.Equal(t, 0, remaining)
	require.Equal(t, time.Date(2024, 6, 1, 12, 0, 10, 0, time.UTC), reset.UTC(), "slot frees when the first call ages out")

	clock.now = time.Date(2024, 6, 1, 12, 0, 10, 0, time.UTC)
	allowed, _, _, err = limiter.Allow(ctx, "key", window, 2)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestLimiterDoesNotRecordRejectedCalls(t *testing.T) {
	clock := &stepClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	limiter, mr := newTestLimiter(t, clock)
	ctx := context.Background()

	allowed, _, _, err := limiter.Allow(ctx, "quotes:203.0.113.1", time.Minute, 1)
	require.NoError(t, err)
	require.True(t, allowed)

	for i := 0; i < 5; i++ {
		clock.now = clock.now.Add(10 * time.Second)
		allowed, _, _, err = limiter.Allow(ctx, "quotes:203.0.113.1", time.Minute, 1)
		require.NoError(t, err)
		require.False(t, allowed)
	}
	members, err := mr.ZMembers("test:quotes:203.0.113.1")
	require.NoError(t, err)
	require.Len(t, members, 1)

	clock.now = time.Date(2024, 6, 1, 12, 1, 0, 0, time.UTC)
	allowed, _, _, err = limiter.Allow(ctx, "quotes:203.0.113.1", time.Minute, 1)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestLimiterDisabled(t *testing.T) {
	allowed, remaining, _, err := Limiter{}.Allow(context.Background(), "k", time.Minute, 3)
	require.NoError(t, err)
	require.True(t, allowed)
	require.Equal(t, 3, remaining)
}

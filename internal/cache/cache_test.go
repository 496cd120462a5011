package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-sdeal/internal/cache"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func newCache(t *testing.T, ttl time.Duration) (*cache.JSON, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return cache.New(client, ttl), mr
}

func TestJSONRoundTripAndExpiry(t *testing.T) {
	ctx := context.Background()
	c, mr := newCache(t, time.Minute)

	var got payload
	ok, err := c.Get(ctx, "k", &got)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", payload{Name: "garden", Count: 3}))
	ok, err = c.Get(ctx, "k", &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, payload{Name: "garden", Count: 3}, got)

	mr.FastForward(2 * time.Minute)
	ok, err = c.Get(ctx, "k", &got)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDeletePrefix(t *testing.T) {
	ctx := context.Background()
	c, mr := newCache(t, 0)

	require.NoError(t, c.Set(ctx, cache.ProductListKey, []string{"a"}))
	require.NoError(t, c.Set(ctx, cache.ProductDetailKey("garden-room"), payload{Name: "x"}))
	require.NoError(t, c.Set(ctx, cache.PriceListKey, payload{Name: "prices"}))

	require.NoError(t, c.DeletePrefix(ctx, cache.ProductsPrefix))
	require.False(t, mr.Exists(cache.ProductListKey))
	require.False(t, mr.Exists(cache.ProductDetailKey("garden-room")))
	require.True(t, mr.Exists(cache.PriceListKey))
}

func TestNilCacheIsEmpty(t *testing.T) {
	var c *cache.JSON
	ok, err := c.Get(context.Background(), "k", &payload{})
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, c.Set(context.Background(), "k", payload{}))
	require.NoError(t, c.Delete(context.Background(), "k"))
}

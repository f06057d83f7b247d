package reporting

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func testCache(t *testing.T) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute)
}

func TestFetchJSONPopulatesOnce(t *testing.T) {
	cache := testCache(t)
	ctx := context.Background()

	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return map[string]int{"value": 42}, nil
	}

	key, err := cache.BuildKey(ctx, "reports", "test")
	require.NoError(t, err)

	var first map[string]int
	require.NoError(t, cache.FetchJSON(ctx, key, &first, loader))
	require.Equal(t, 42, first["value"])
	require.Equal(t, 1, calls)

	var second map[string]int
	require.NoError(t, cache.FetchJSON(ctx, key, &second, loader))
	require.Equal(t, 42, second["value"])
	require.Equal(t, 1, calls)
}

func TestBumpInvalidates(t *testing.T) {
	cache := testCache(t)
	ctx := context.Background()

	before, err := cache.BuildKey(ctx, "reports", "test")
	require.NoError(t, err)
	require.NoError(t, cache.Bump(ctx))
	after, err := cache.BuildKey(ctx, "reports", "test")
	require.NoError(t, err)
	require.NotEqual(t, before, after)
}

func TestNilCachePassesThrough(t *testing.T) {
	var cache *Cache
	ctx := context.Background()

	key, err := cache.BuildKey(ctx, "reports", "test")
	require.NoError(t, err)
	require.Equal(t, "reports:test", key)

	calls := 0
	var out map[string]int
	loader := func(context.Context) (any, error) {
		calls++
		return map[string]int{"value": 7}, nil
	}
	require.NoError(t, cache.FetchJSON(ctx, key, &out, loader))
	require.NoError(t, cache.FetchJSON(ctx, key, &out, loader))
	require.Equal(t, 2, calls)
	require.Equal(t, 7, out["value"])
	require.NoError(t, cache.Bump(ctx))
}

package cache

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestCacheTier2PromotesOnTier1Miss(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()

	writer := New(client, nil, nil)
	writer.Set(ctx, "k", json.RawMessage(`{"a":1}`), ShortTerm)

	reader := New(client, nil, nil)
	payload, ok := reader.Get(ctx, "k")
	require.True(t, ok)
	require.JSONEq(t, `{"a":1}`, string(payload))

	payload, ok = reader.getTier1("k")
	require.True(t, ok, "tier-2 hit must be promoted to tier-1")
	require.JSONEq(t, `{"a":1}`, string(payload))
}

func TestCacheDegradesToTier1OnRedisUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mr.Close()

	c := New(client, nil, nil)
	ctx := context.Background()

	// Set must not panic or error out to the caller despite tier-2 being down.
	c.Set(ctx, "k", json.RawMessage(`{"a":1}`), RealTime)

	payload, ok := c.getTier1("k")
	require.True(t, ok)
	require.JSONEq(t, `{"a":1}`, string(payload))
}

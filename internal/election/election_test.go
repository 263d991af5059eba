package election

import (
	"context"
	"sync/atomic"
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

func TestTryAcquireIsExclusive(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()

	a := New(client, "node-a", nil, nil)
	b := New(client, "node-b", nil, nil)

	acquiredA, err := a.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, acquiredA)

	acquiredB, err := b.TryAcquire(ctx)
	require.NoError(t, err)
	require.False(t, acquiredB, "a second node must not acquire an already-held lease")

	leaderA, err := a.IsLeader(ctx)
	require.NoError(t, err)
	require.True(t, leaderA)

	leaderB, err := b.IsLeader(ctx)
	require.NoError(t, err)
	require.False(t, leaderB)
}

func TestRenewOnlySucceedsForOwner(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()

	a := New(client, "node-a", nil, nil)
	b := New(client, "node-b", nil, nil)

	_, err := a.TryAcquire(ctx)
	require.NoError(t, err)

	renewedA, err := a.Renew(ctx)
	require.NoError(t, err)
	require.True(t, renewedA)

	renewedB, err := b.Renew(ctx)
	require.NoError(t, err)
	require.False(t, renewedB, "a non-owner must not be able to renew")
}

func TestReleaseIsIdempotentAndOwnerOnly(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()

	a := New(client, "node-a", nil, nil)
	b := New(client, "node-b", nil, nil)

	_, err := a.TryAcquire(ctx)
	require.NoError(t, err)

	require.NoError(t, b.Release(ctx))
	leader, err := a.IsLeader(ctx)
	require.NoError(t, err)
	require.True(t, leader, "a non-owner's release must be a no-op")

	require.NoError(t, a.Release(ctx))
	leader, err = a.IsLeader(ctx)
	require.NoError(t, err)
	require.False(t, leader)

	require.NoError(t, a.Release(ctx), "releasing an already-released lease must not error")
}

func TestMonitorAcquiresLeadership(t *testing.T) {
	client := newTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := New(client, "node-a", nil, nil)
	var flag atomic.Bool

	a.tick(ctx, &flag)
	require.True(t, flag.Load())

	a.tick(ctx, &flag)
	require.True(t, flag.Load(), "a leader renewing its own lease must remain leader")
}

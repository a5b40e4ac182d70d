package chain

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestMemoryGuard(t *testing.T) {
	g := NewMemoryGuard(time.Minute)
	now := time.Unix(1_700_000_000, 0)
	g.nowFn = func() time.Time { return now }
	ctx := context.Background()

	release, err := g.Acquire(ctx, "1:fund")
	require.NoError(t, err)
	_, err = g.Acquire(ctx, "1:fund")
	require.ErrorIs(t, err, ErrOperationInFlight)

	other, err := g.Acquire(ctx, "1:repay")
	require.NoError(t, err)
	other()

	release()
	release()
	again, err := g.Acquire(ctx, "1:fund")
	require.NoError(t, err)

	// an expired lease is taken over, and the stale release leaves it alone
	now = now.Add(2 * time.Minute)
	successor, err := g.Acquire(ctx, "1:fund")
	require.NoError(t, err)
	again()
	_, err = g.Acquire(ctx, "1:fund")
	require.ErrorIs(t, err, ErrOperationInFlight)
	successor()
}

func TestRedisGuard(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	g := NewRedisGuard(rdb, "", time.Minute)
	ctx := context.Background()

	release, err := g.Acquire(ctx, "3:repay")
	require.NoError(t, err)
	require.True(t, mr.Exists("microloan:inflight:3:repay"))
	require.Equal(t, time.Minute, mr.TTL("microloan:inflight:3:repay"))

	_, err = g.Acquire(ctx, "3:repay")
	require.ErrorIs(t, err, ErrOperationInFlight)

	release()
	require.False(t, mr.Exists("microloan:inflight:3:repay"))

	stale, err := g.Acquire(ctx, "3:repay")
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)
	successor, err := g.Acquire(ctx, "3:repay")
	require.NoError(t, err)
	stale()
	require.True(t, mr.Exists("microloan:inflight:3:repay"), "stale release must not drop the successor")
	successor()
	require.False(t, mr.Exists("microloan:inflight:3:repay"))
}

func TestRedisGuard_ConnectionError(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	_, err := NewRedisGuard(rdb, "x:", time.Minute).Acquire(context.Background(), "k")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrOperationInFlight)
}

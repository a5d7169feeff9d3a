package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLedger(t *testing.T, start time.Time) (*Ledger, *miniredis.Miniredis, *clock) {
	t.Helper()
	mr := miniredis.RunT(t)
	mr.SetTime(start)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clk := &clock{t: start}
	return New(NewRedisStore(client, ""), time.UTC).WithClock(clk.now), mr, clk
}

func TestRedisStoreLimit(t *testing.T) {
	ctx := context.Background()
	l, mr, _ := newRedisLedger(t, time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC))

	for i := 0; i < 2; i++ {
		ok, err := l.TryConsume(ctx, "dev-r", 2)
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, err := l.TryConsume(ctx, "dev-r", 2)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, "2", mr.HGet("usage:dev-r", "count"))
	assert.Equal(t, "2024-03-10", mr.HGet("usage:dev-r", "date"))
	assert.Equal(t, 6*time.Hour, mr.TTL("usage:dev-r"))
}

func TestRedisStoreExpiresAtMidnight(t *testing.T) {
	ctx := context.Background()
	l, mr, clk := newRedisLedger(t, time.Date(2024, 3, 10, 23, 0, 0, 0, time.UTC))

	ok, _ := l.TryConsume(ctx, "dev-r", 1)
	require.True(t, ok)
	ok, _ = l.TryConsume(ctx, "dev-r", 1)
	require.False(t, ok)

	mr.FastForward(61 * time.Minute)
	clk.t = clk.t.Add(61 * time.Minute)
	assert.False(t, mr.Exists("usage:dev-r"))

	ok, err := l.TryConsume(ctx, "dev-r", 1)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisStoreError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	mr.SetError("down")

	l := New(NewRedisStore(client, "q"), time.UTC)
	_, err := l.TryConsume(context.Background(), "dev", 3)
	assert.ErrorIs(t, err, ErrStore)
}

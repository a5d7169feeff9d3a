package ledger

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newMemoryLedger(t *testing.T, start time.Time) (*Ledger, *MemoryStore, *clock) {
	t.Helper()
	store, err := NewMemoryStore(16)
	require.NoError(t, err)
	clk := &clock{t: start}
	return New(store, time.UTC).WithClock(clk.now), store, clk
}

func TestTryConsumeAllowsUpToLimit(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newMemoryLedger(t, time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC))

	for i := 0; i < 5; i++ {
		ok, err := l.TryConsume(ctx, "dev-a", 5)
		require.NoError(t, err)
		assert.True(t, ok, "call %d should be allowed", i+1)
	}
	ok, err := l.TryConsume(ctx, "dev-a", 5)
	require.NoError(t, err)
	assert.False(t, ok, "sixth call should be denied")

	used, err := l.Used(ctx, "dev-a")
	require.NoError(t, err)
	assert.Equal(t, 5, used, "denied call must not increment")
}

func TestTryConsumeResetsOnNewDay(t *testing.T) {
	ctx := context.Background()
	l, _, clk := newMemoryLedger(t, time.Date(2024, 3, 10, 23, 59, 0, 0, time.UTC))

	for i := 0; i < 3; i++ {
		_, err := l.TryConsume(ctx, "dev-a", 3)
		require.NoError(t, err)
	}
	ok, _ := l.TryConsume(ctx, "dev-a", 3)
	require.False(t, ok)

	clk.t = clk.t.Add(2 * time.Minute)
	ok, err := l.TryConsume(ctx, "dev-a", 3)
	require.NoError(t, err)
	assert.True(t, ok)

	remaining, err := l.Remaining(ctx, "dev-a", 3)
	require.NoError(t, err)
	assert.Equal(t, 2, remaining)
}

func TestDevicesAreIndependent(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newMemoryLedger(t, time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC))

	ok, _ := l.TryConsume(ctx, "dev-a", 1)
	require.True(t, ok)
	ok, _ = l.TryConsume(ctx, "dev-a", 1)
	require.False(t, ok)

	ok, _ = l.TryConsume(ctx, "dev-b", 1)
	assert.True(t, ok)
	ok, _ = l.TryConsume(ctx, "", 1)
	assert.True(t, ok, "empty id is its own bucket")
}

func TestDayKeyUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	ts := time.Date(2024, 3, 11, 2, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024-03-10", DayKey(ts, loc))
	assert.Equal(t, "2024-03-11", DayKey(ts, time.UTC))

	next := NextMidnight(ts, loc)
	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, loc), next)
}

func TestMemoryStorePrune(t *testing.T) {
	ctx := context.Background()
	l, store, clk := newMemoryLedger(t, time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC))

	_, _ = l.TryConsume(ctx, "old", 5)
	clk.t = clk.t.Add(24 * time.Hour)
	_, _ = l.TryConsume(ctx, "new", 5)

	removed := store.Prune(l.Today())
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStoreEvictsOldest(t *testing.T) {
	ctx := context.Background()
	store, err := NewMemoryStore(2)
	require.NoError(t, err)
	exp := time.Now().Add(time.Hour)

	require.NoError(t, store.Put(ctx, "a", Record{Date: "2024-01-01", Count: 1}, exp))
	require.NoError(t, store.Put(ctx, "b", Record{Date: "2024-01-01", Count: 1}, exp))
	require.NoError(t, store.Put(ctx, "c", Record{Date: "2024-01-01", Count: 1}, exp))

	_, ok, _ := store.Get(ctx, "a")
	assert.False(t, ok)
	assert.Equal(t, 2, store.Len())
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) (Record, bool, error) {
	return Record{}, false, errors.New("boom")
}
func (failingStore) Put(context.Context, string, Record, time.Time) error { return nil }
func (failingStore) Increment(context.Context, string, time.Time) (int, error) {
	return 0, nil
}

func TestTryConsumeStoreError(t *testing.T) {
	l := New(failingStore{}, time.UTC)
	ok, err := l.TryConsume(context.Background(), "dev", 5)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrStore)
}

func TestNormalizeDeviceID(t *testing.T) {
	assert.Equal(t, "abc", NormalizeDeviceID("  abc ", 128))
	assert.Equal(t, "", NormalizeDeviceID("", 128))

	long := strings.Repeat("x", 200)
	assert.Len(t, NormalizeDeviceID(long, 128), 128)

	// "é" is two bytes; truncation must not split it
	got := NormalizeDeviceID("aé", 2)
	assert.Equal(t, "a", got)
}

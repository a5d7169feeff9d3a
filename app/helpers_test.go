package app

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePositiveInt(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		got, err := parsePositiveInt("42")
		require.NoError(t, err)
		assert.Equal(t, 42, got)
	})
	t.Run("invalid", func(t *testing.T) {
		_, err := parsePositiveInt("not-an-int")
		assert.Error(t, err)
	})
	t.Run("zero", func(t *testing.T) {
		_, err := parsePositiveInt("0")
		assert.Error(t, err)
	})
}

func TestGetWorkerCount(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		t.Setenv("WORKERS", "")
		assert.Equal(t, runtime.NumCPU(), GetWorkerCount(0))
	})

	t.Run("env override", func(t *testing.T) {
		t.Setenv("WORKERS", "5")
		assert.Equal(t, 5, GetWorkerCount(0))
	})

	t.Run("configured wins", func(t *testing.T) {
		t.Setenv("WORKERS", "5")
		assert.Equal(t, 3, GetWorkerCount(3))
	})

	t.Run("invalid", func(t *testing.T) {
		t.Setenv("WORKERS", "not-a-number")
		assert.Equal(t, runtime.NumCPU(), GetWorkerCount(0))
	})
}

func TestParseBound(t *testing.T) {
	loc := time.FixedZone("EST", -5*3600)

	got, err := parseBound("2024-03-10", loc)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, 3, 10, 0, 0, 0, 0, loc)))

	got, err = parseBound("2024-03-10T12:00:00Z", loc)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)))

	got, err = parseBound("  ", loc)
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	_, err = parseBound("yesterday", loc)
	assert.Error(t, err)
}

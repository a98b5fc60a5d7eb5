package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFallbackReserveWithoutCommitBurnsNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "serial_state.json")
	feb := time.Date(2026, 2, 14, 10, 0, 0, 0, time.UTC)

	alloc := NewFallbackAllocator(path)
	serial, _, err := alloc.Reserve(feb)
	require.NoError(t, err)
	assert.Equal(t, "INW-26-0001", serial)

	// Nothing persisted: the reservation dies with the process.
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	fresh := NewFallbackAllocator(path)
	serial, _, err = fresh.Reserve(feb)
	require.NoError(t, err)
	assert.Equal(t, "INW-26-0001", serial)
}

func TestFallbackCommitAdvancesCounterAcrossRestarts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "serial_state.json")
	feb := time.Date(2026, 2, 14, 10, 0, 0, 0, time.UTC)

	alloc := NewFallbackAllocator(path)
	first, commitFirst, err := alloc.Reserve(feb)
	require.NoError(t, err)
	second, commitSecond, err := alloc.Reserve(feb)
	require.NoError(t, err)
	assert.Equal(t, "INW-26-0001", first)
	assert.Equal(t, "INW-26-0002", second)

	// Out-of-order commits keep the high-water mark.
	require.NoError(t, commitSecond())
	require.NoError(t, commitFirst())

	fresh := NewFallbackAllocator(path)
	serial, _, err := fresh.Reserve(feb)
	require.NoError(t, err)
	assert.Equal(t, "INW-26-0003", serial)
}

func TestFallbackCommitIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "serial_state.json")
	feb := time.Date(2026, 2, 14, 10, 0, 0, 0, time.UTC)

	alloc := NewFallbackAllocator(path)
	_, commit, err := alloc.Reserve(feb)
	require.NoError(t, err)
	require.NoError(t, commit())
	require.NoError(t, commit())

	fresh := NewFallbackAllocator(path)
	serial, _, err := fresh.Reserve(feb)
	require.NoError(t, err)
	assert.Equal(t, "INW-26-0002", serial)
}

func TestFallbackCounterResetsOnNewYear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "serial_state.json")
	alloc := NewFallbackAllocator(path)

	dec := time.Date(2026, 12, 30, 10, 0, 0, 0, time.UTC)
	serial, commit, err := alloc.Reserve(dec)
	require.NoError(t, err)
	assert.Equal(t, "INW-26-0001", serial)
	require.NoError(t, commit())

	jan := time.Date(2027, 1, 2, 10, 0, 0, 0, time.UTC)
	serial, _, err = alloc.Reserve(jan)
	require.NoError(t, err)
	assert.Equal(t, "INW-27-0001", serial)
}

func TestFallbackCorruptStateFileRestartsCounter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "serial_state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not-json"), 0o644))
	feb := time.Date(2026, 2, 14, 10, 0, 0, 0, time.UTC)

	alloc := NewFallbackAllocator(path)
	serial, _, err := alloc.Reserve(feb)
	require.NoError(t, err)
	assert.Equal(t, "INW-26-0001", serial)
}

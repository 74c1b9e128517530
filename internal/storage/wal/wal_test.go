package wal

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/storage"
)

func TestWalStore_SetGetRemove(t *testing.T) {
	ctx := context.Background()
	s, err := Open(DefaultConfig(t.TempDir()))
	require.NoError(t, err, "Failed to open wal store")
	defer func() {
		assert.NoError(t, s.Close(), "Failed to close wal store")
	}()

	_, ok, err := s.Get(ctx, "expenses")
	require.NoError(t, err)
	assert.False(t, ok, "Expected empty log to have no slot")

	require.NoError(t, s.Set(ctx, "expenses", []byte(`[1]`)))
	require.NoError(t, s.Set(ctx, "expenses", []byte(`[1,2]`)))

	v, ok, err := s.Get(ctx, "expenses")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `[1,2]`, string(v), "Last write should win")

	require.NoError(t, s.Remove(ctx, "expenses"))
	_, ok, err = s.Get(ctx, "expenses")
	require.NoError(t, err)
	assert.False(t, ok, "Removed slot should be absent")
}

func TestWalStore_ReplayAfterReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := Open(DefaultConfig(dir))
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "expenses", []byte(`["a"]`)))
	require.NoError(t, s.Set(ctx, "scratch", []byte(`x`)))
	require.NoError(t, s.Remove(ctx, "scratch"))
	require.NoError(t, s.Set(ctx, "expenses", []byte(`["a","b"]`)))
	require.NoError(t, s.Close())

	reopened, err := Open(DefaultConfig(dir))
	require.NoError(t, err)
	defer reopened.Close()

	v, ok, err := reopened.Get(ctx, "expenses")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `["a","b"]`, string(v))

	_, ok, err = reopened.Get(ctx, "scratch")
	require.NoError(t, err)
	assert.False(t, ok, "Tombstoned slot should stay removed after replay")
}

func TestWalStore_Closed(t *testing.T) {
	s, err := Open(DefaultConfig(t.TempDir()))
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "Close should be idempotent")

	assert.ErrorIs(t, s.Set(context.Background(), "k", nil), storage.ErrClosed)
}

func TestOpenRequiresDir(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestOpenRejectsSingleSegment(t *testing.T) {
	cfg := DefaultConfig(t.TempDir())
	cfg.MaxSegments = 1
	_, err := Open(cfg)
	assert.Error(t, err)
}

func TestWalStore_RarelyWrittenKeySurvivesRotation(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := Config{Dir: dir, SegmentThreshold: 2, MaxSegments: 2, SyncWrites: true}

	s, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "expenses.corrupt", []byte(`[{"id":2,"amount":"NaN"}]`)))
	require.NoError(t, s.Set(ctx, "scratch", []byte(`x`)))
	require.NoError(t, s.Remove(ctx, "scratch"))
	for i := 0; i < 20; i++ {
		require.NoError(t, s.Set(ctx, "expenses", []byte(fmt.Sprintf(`[%d]`, i))))
	}

	v, ok, err := s.Get(ctx, "expenses.corrupt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `[{"id":2,"amount":"NaN"}]`, string(v))
	require.NoError(t, s.Close())

	segments, err := filepath.Glob(filepath.Join(dir, "seg_*"))
	require.NoError(t, err)
	assert.NotEmpty(t, segments)

	reopened, err := Open(cfg)
	require.NoError(t, err)
	defer reopened.Close()

	v, ok, err = reopened.Get(ctx, "expenses.corrupt")
	require.NoError(t, err)
	require.True(t, ok, "rarely written key lost after rotation")
	assert.Equal(t, `[{"id":2,"amount":"NaN"}]`, string(v))

	v, ok, err = reopened.Get(ctx, "expenses")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `[19]`, string(v))

	_, ok, err = reopened.Get(ctx, "scratch")
	require.NoError(t, err)
	assert.False(t, ok)

	// writes after reopen keep refreshing from the replayed positions
	for i := 20; i < 30; i++ {
		require.NoError(t, reopened.Set(ctx, "expenses", []byte(fmt.Sprintf(`[%d]`, i))))
	}
	require.NoError(t, reopened.Close())

	again, err := Open(cfg)
	require.NoError(t, err)
	defer again.Close()
	_, ok, err = again.Get(ctx, "expenses.corrupt")
	require.NoError(t, err)
	assert.True(t, ok, "rarely written key lost after second reopen")
}

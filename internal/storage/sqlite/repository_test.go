package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/storage"
)

func newTestRepository(t *testing.T) (*Repository, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "ledger.db")
	repo, err := NewRepository(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo, path
}

func TestRepositorySetGetRemove(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepository(t)

	_, ok, err := repo.Get(ctx, "expenses")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.Set(ctx, "expenses", []byte(`[{"id":1}]`)))
	require.NoError(t, repo.Set(ctx, "expenses", []byte(`[]`)))

	v, ok, err := repo.Get(ctx, "expenses")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `[]`, string(v))

	require.NoError(t, repo.Remove(ctx, "expenses"))
	_, ok, err = repo.Get(ctx, "expenses")
	require.NoError(t, err)
	assert.False(t, ok)

	// removing again is a no-op
	require.NoError(t, repo.Remove(ctx, "expenses"))
}

func TestRepositoryPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	repo, path := newTestRepository(t)
	require.NoError(t, repo.Set(ctx, "expenses", []byte(`[1]`)))
	require.NoError(t, repo.Set(ctx, "other", []byte(`x`)))
	require.NoError(t, repo.Close())

	reopened, err := NewRepository(path)
	require.NoError(t, err)
	defer reopened.Close()

	v, ok, err := reopened.Get(ctx, "expenses")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `[1]`, string(v))

	keys, err := reopened.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"expenses", "other"}, keys)
}

func TestRepositoryRejectsEmptyKey(t *testing.T) {
	repo, _ := newTestRepository(t)
	assert.ErrorIs(t, repo.Set(context.Background(), "", []byte("x")), storage.ErrEmptyKey)
}

func TestRunMigrationsIdempotent(t *testing.T) {
	_, path := newTestRepository(t)
	require.NoError(t, RunMigrations(path))
}

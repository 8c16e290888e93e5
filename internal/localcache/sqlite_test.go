package localcache

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openMem(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), Memory)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_GetMissingIsNil(t *testing.T) {
	t.Parallel()
	s := openMem(t)

	v, err := s.Get(context.Background(), "cart")
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestStore_SetManyAndDelete(t *testing.T) {
	t.Parallel()
	s := openMem(t)
	ctx := context.Background()

	require.NoError(t, s.SetMany(ctx, map[string][]byte{
		"cart":            []byte(`[1]`),
		"purchasedMovies": []byte(`[2]`),
	}))
	require.NoError(t, s.Set(ctx, "cart", []byte(`[]`)))

	v, err := s.Get(ctx, "cart")
	require.NoError(t, err)
	require.Equal(t, `[]`, string(v))

	require.NoError(t, s.Delete(ctx, "cart", "purchasedMovies", "absent"))
	v, err = s.Get(ctx, "purchasedMovies")
	require.NoError(t, err)
	require.Nil(t, v)

	require.NoError(t, s.Delete(ctx))
	require.NoError(t, s.SetMany(ctx, nil))
}

func TestStore_SetManyCanceledWritesNothing(t *testing.T) {
	t.Parallel()
	s := openMem(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, s.SetMany(ctx, map[string][]byte{"a": []byte("1"), "b": []byte("2")}))

	v, err := s.Get(context.Background(), "a")
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestStore_SurvivesReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "cache.db")

	s, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "authState", []byte(`{"authenticated":true}`)))
	require.NoError(t, s.Close())

	// migrations are idempotent on reopen
	s, err = Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	v, err := s.Get(ctx, "authState")
	require.NoError(t, err)
	require.JSONEq(t, `{"authenticated":true}`, string(v))
}

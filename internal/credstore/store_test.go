package credstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/skyauth/internal/apperrors"
	"github.com/nkiryanov/skyauth/internal/models"
)

// testStore checks behavior every store must share
func testStore(t *testing.T, s Store) {
	t.Helper()
	ctx := t.Context()

	t.Run("absent key is not an error", func(t *testing.T) {
		v, ok, err := s.Get(ctx, "never-set")

		require.NoError(t, err)
		require.False(t, ok)
		require.Empty(t, v)
	})

	t.Run("set then get", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, models.KeyAccessToken, "abc"))

		v, ok, err := s.Get(ctx, models.KeyAccessToken)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "abc", v)
	})

	t.Run("set replaces value", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, models.KeyAccessToken, "first"))
		require.NoError(t, s.Set(ctx, models.KeyAccessToken, "second"))

		v, _, err := s.Get(ctx, models.KeyAccessToken)
		require.NoError(t, err)
		require.Equal(t, "second", v)
	})

	t.Run("delete several keys", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, models.KeyAccessToken, "a"))
		require.NoError(t, s.Set(ctx, models.KeyRefreshToken, "r"))

		require.NoError(t, s.Delete(ctx, models.KeyAccessToken, models.KeyRefreshToken, "missing"))

		_, ok, err := s.Get(ctx, models.KeyAccessToken)
		require.NoError(t, err)
		require.False(t, ok)
		_, ok, err = s.Get(ctx, models.KeyRefreshToken)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("delete nothing", func(t *testing.T) {
		require.NoError(t, s.Delete(ctx))
	})
}

func TestMemory(t *testing.T) {
	testStore(t, NewMemory())
}

func TestOpen(t *testing.T) {
	t.Run("memory by default", func(t *testing.T) {
		s, err := Open(t.Context(), Config{})

		require.NoError(t, err)
		require.IsType(t, &Memory{}, s)
	})

	t.Run("file", func(t *testing.T) {
		s, err := Open(t.Context(), Config{Kind: KindFile, Path: filepath.Join(t.TempDir(), "c.json")})

		require.NoError(t, err)
		require.IsType(t, &File{}, s)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := Open(t.Context(), Config{Kind: "floppy"})

		require.ErrorIs(t, err, apperrors.ErrUnknownStore)
	})

	t.Run("bad redis url", func(t *testing.T) {
		_, err := Open(t.Context(), Config{Kind: KindRedis, RedisURL: "http://nope"})

		require.ErrorContains(t, err, "invalid redis url")
	})
}

package credstore

import (
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/skyauth/internal/apperrors"
	"github.com/nkiryanov/skyauth/internal/models"
	"github.com/nkiryanov/skyauth/internal/testutil"
)

func TestPostgres(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	t.Run("store behavior", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			testStore(t, &Postgres{DB: tx, Namespace: "behavior"})
		})
	})

	t.Run("namespaces are separate", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			work := &Postgres{DB: tx, Namespace: "work"}
			home := &Postgres{DB: tx, Namespace: "home"}

			require.NoError(t, work.Set(t.Context(), models.KeyAccessToken, "work-token"))

			_, ok, err := home.Get(t.Context(), models.KeyAccessToken)
			require.NoError(t, err)
			require.False(t, ok)
		})
	})

	t.Run("not migrated", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			_, err := tx.Exec(t.Context(), "DROP TABLE credentials")
			require.NoError(t, err)

			s := &Postgres{DB: tx, Namespace: "x"}
			_, _, err = s.Get(t.Context(), models.KeyAccessToken)

			require.ErrorIs(t, err, apperrors.ErrStoreNotMigrated)
		})
	})

	t.Run("open migrates and owns pool", func(t *testing.T) {
		s, err := OpenPostgres(t.Context(), pg.DSN, "open")
		require.NoError(t, err)

		require.NoError(t, s.Set(t.Context(), models.KeyRefreshToken, "r"))
		v, ok, err := s.Get(t.Context(), models.KeyRefreshToken)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "r", v)

		require.NoError(t, s.Delete(t.Context(), models.KeyRefreshToken))
		require.NoError(t, s.Close())
	})
}

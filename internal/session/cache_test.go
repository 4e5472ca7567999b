package session

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/skyauth/internal/identity"
	"github.com/nkiryanov/skyauth/internal/models"
)

func TestCache_Key(t *testing.T) {
	key := cacheKey(identifyPurpose, "secret-token")

	require.True(t, strings.HasPrefix(key, "identify::"))
	require.NotContains(t, key, "secret-token")
	require.Equal(t, key, cacheKey(identifyPurpose, "secret-token"))
	require.NotEqual(t, key, cacheKey(identifyPurpose, "other-token"))
	require.NotEqual(t, key, cacheKey("refresh", "secret-token"))
}

func TestCache_Identify(t *testing.T) {
	calls := 0
	fetch := func(result identity.Identity, err error) identifyFunc {
		return func(ctx context.Context, access string) (identity.Identity, error) {
			calls++
			return result, err
		}
	}

	t.Run("only success stored", func(t *testing.T) {
		calls = 0
		c := newIdentityCache(0, 0)

		id, err := c.identify(t.Context(), "token", fetch(identity.Identity{NeedsRefresh: true}, nil))
		require.NoError(t, err)
		require.True(t, id.NeedsRefresh)

		_, err = c.identify(t.Context(), "token", fetch(identity.Identity{}, errors.New("boom")))
		require.Error(t, err)

		ok := identity.Identity{User: models.User{Email: "a@b.com"}}
		for range 2 {
			id, err = c.identify(t.Context(), "token", fetch(ok, nil))
			require.NoError(t, err)
			require.Equal(t, "a@b.com", id.User.Email)
		}

		require.Equal(t, 3, calls)
	})

	t.Run("invalidate", func(t *testing.T) {
		calls = 0
		c := newIdentityCache(0, 0)
		ok := identity.Identity{User: models.User{Email: "a@b.com"}}

		_, err := c.identify(t.Context(), "token", fetch(ok, nil))
		require.NoError(t, err)
		_, cached := c.cached("token")
		require.True(t, cached)

		c.invalidate("token")
		_, cached = c.cached("token")
		require.False(t, cached)

		_, err = c.identify(t.Context(), "token", fetch(ok, nil))
		require.NoError(t, err)
		require.Equal(t, 2, calls)
	})
}

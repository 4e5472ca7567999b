package guard

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/skyauth/internal/handlers/userctx"
	"github.com/nkiryanov/skyauth/internal/models"
	"github.com/nkiryanov/skyauth/internal/session"
)

// Allow to use a function as resolver
type resolveFunc func(ctx context.Context) session.State

func (f resolveFunc) Resolve(ctx context.Context) session.State {
	return f(ctx)
}

type hasToken bool

func (h hasToken) HasAccessToken(context.Context) bool {
	return bool(h)
}

// Client that does not follow redirects
func noRedirectClient() *http.Client {
	return &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func TestMiddleware(t *testing.T) {
	// Writes email of the user from context
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userctx.FromContext(r.Context())
		assert.True(t, ok, "guard must put user to context")

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(user.Email))
	})

	do := func(t *testing.T, state session.State) (*http.Response, string) {
		t.Helper()

		mw := Middleware(resolveFunc(func(ctx context.Context) session.State { return state }), "/")
		srv := httptest.NewServer(mw(handler))
		t.Cleanup(srv.Close)

		resp, err := noRedirectClient().Get(srv.URL + "/home")
		require.NoError(t, err, "should make request to test server")
		defer resp.Body.Close() // nolint:errcheck

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err, "should read response body")
		return resp, string(body)
	}

	t.Run("authenticated", func(t *testing.T) {
		resp, body := do(t, session.State{Kind: session.Authenticated, User: models.User{Email: "a@b.com"}})

		require.Equalf(t, http.StatusOK, resp.StatusCode, "should return status OK. Resp: %s", body)
		require.Equal(t, "a@b.com", body)
	})

	t.Run("pending", func(t *testing.T) {
		resp, body := do(t, session.State{Kind: session.Pending})

		require.Equal(t, http.StatusAccepted, resp.StatusCode)
		require.JSONEq(t, `{"status": "pending"}`, body)
	})

	for _, kind := range []session.Kind{session.Unauthenticated, session.Failed} {
		t.Run(kind.String()+" redirected", func(t *testing.T) {
			resp, _ := do(t, session.State{Kind: kind})

			require.Equal(t, http.StatusSeeOther, resp.StatusCode)
			require.Equal(t, "/", resp.Header.Get("Location"))
		})
	}
}

func TestEntryMiddleware(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("token present", func(t *testing.T) {
		srv := httptest.NewServer(EntryMiddleware(hasToken(true), "/home")(handler))
		defer srv.Close()

		resp, err := noRedirectClient().Get(srv.URL + "/")
		require.NoError(t, err)
		defer resp.Body.Close() // nolint:errcheck

		require.Equal(t, http.StatusSeeOther, resp.StatusCode)
		require.Equal(t, "/home", resp.Header.Get("Location"))
	})

	t.Run("no token", func(t *testing.T) {
		srv := httptest.NewServer(EntryMiddleware(hasToken(false), "/home")(handler))
		defer srv.Close()

		resp, err := noRedirectClient().Get(srv.URL + "/")
		require.NoError(t, err)
		defer resp.Body.Close() // nolint:errcheck

		require.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

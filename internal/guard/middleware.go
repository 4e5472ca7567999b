package guard

import (
	"context"
	"net/http"

	"github.com/nkiryanov/skyauth/internal/handlers/render"
	"github.com/nkiryanov/skyauth/internal/handlers/userctx"
	"github.com/nkiryanov/skyauth/internal/session"
)

type resolver interface {
	Resolve(ctx context.Context) session.State
}

type tokenChecker interface {
	HasAccessToken(ctx context.Context) bool
}

// Middleware lets request through only for authenticated session and puts user into request context.
// Pending session gets 202, anything else is redirected to entryPath.
func Middleware(rs resolver, entryPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := Decide(rs.Resolve(r.Context()))

			switch decision.Action {
			case RenderProtected:
				ctx := userctx.New(r.Context(), decision.User)
				next.ServeHTTP(w, r.WithContext(ctx))
			case RenderPending:
				render.Status(w, map[string]string{"status": "pending"}, http.StatusAccepted)
			default:
				http.Redirect(w, r, entryPath, http.StatusSeeOther)
			}
		})
	}
}

// EntryMiddleware sends user with stored access token from entry page to homePath.
// Token is not validated here: home is protected by Middleware.
func EntryMiddleware(tc tokenChecker, homePath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tc.HasAccessToken(r.Context()) {
				http.Redirect(w, r, homePath, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

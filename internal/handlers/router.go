package handlers

import (
	"context"
	"net/http"

	"github.com/nkiryanov/skyauth/internal/guard"
	"github.com/nkiryanov/skyauth/internal/handlers/middleware"
	"github.com/nkiryanov/skyauth/internal/logger"
	"github.com/nkiryanov/skyauth/internal/models"
	"github.com/nkiryanov/skyauth/internal/session"
)

const (
	EntryPath = "/"
	HomePath  = "/home"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(s sessionService, logger logger.Logger) http.Handler {
	protected := guard.Middleware(s, EntryPath)
	entry := guard.EntryMiddleware(s, HomePath)

	auth := &AuthHandler{session: s, logger: logger}
	user := &UserHandler{session: s, logger: logger}

	mux := http.NewServeMux()

	mux.Handle("GET /{$}", entry(http.HandlerFunc(handleEntry)))
	mux.HandleFunc("POST /login", auth.login)
	mux.HandleFunc("POST /register", auth.register)
	mux.HandleFunc("POST /password-reset", auth.passwordReset)
	mux.Handle("POST /logout", protected(http.HandlerFunc(auth.logout)))

	mux.Handle("GET /home", protected(http.HandlerFunc(user.home)))
	mux.Handle("GET /profile", protected(http.HandlerFunc(user.profile)))
	mux.Handle("PUT /profile", protected(http.HandlerFunc(user.updateProfile)))
	mux.Handle("DELETE /profile", protected(http.HandlerFunc(user.deleteProfile)))

	handler := chain(mux,
		middleware.RequestIDMiddleware(),
		middleware.LoggerMiddleware(logger),
	)

	return handler
}

type sessionService interface {
	// Resolve current session state, may call identity service
	Resolve(ctx context.Context) session.State

	// Whether access token is stored, no network calls
	HasAccessToken(ctx context.Context) bool

	// Form failures are *apperrors.FormError
	Login(ctx context.Context, form session.LoginForm) error
	Register(ctx context.Context, form session.RegisterForm) error

	Logout(ctx context.Context) error
	Profile(ctx context.Context) (models.User, error)
	UpdateProfile(ctx context.Context, form session.ProfileForm) (models.User, error)
	DeleteProfile(ctx context.Context, user models.User) (models.Message, error)
	RequestPasswordReset(ctx context.Context, email string) (models.Message, error)
}

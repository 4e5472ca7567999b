// Package session owns the client side of an authentication session.
//
// Session is the only component that reads or writes tokens: it keeps them in
// the credential store, resolves the current user through the identity client
// (memoized per access token) and refreshes an expired access token once per
// attempt. Route guards and front ends work with Session only.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nkiryanov/skyauth/internal/apperrors"
	"github.com/nkiryanov/skyauth/internal/credstore"
	"github.com/nkiryanov/skyauth/internal/logger"
	"github.com/nkiryanov/skyauth/internal/models"
	"github.com/nkiryanov/skyauth/internal/validate"
)

type IdentityClient interface {
	Identifier

	Login(ctx context.Context, email string, password string) (models.TokenPair, error)
	Register(ctx context.Context, req models.RegisterRequest) (models.TokenPair, error)
	Logout(ctx context.Context, access string) (models.Message, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	Profile(ctx context.Context, access string) (models.User, error)
	UpdateProfile(ctx context.Context, access string, user models.User) (models.User, error)
	DeleteProfile(ctx context.Context, access string, user models.User) (models.Message, error)
	RequestPasswordReset(ctx context.Context, email string) (models.Message, error)
}

type LoginForm struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RegisterForm struct {
	Email           string     `json:"email" validate:"required,email"`
	Password        string     `json:"password" validate:"required,min=8"`
	ConfirmPassword string     `json:"confirm_password" validate:"required,eqfield=Password"`
	Name            string     `json:"name,omitempty"`
	Gender          string     `json:"gender,omitempty" validate:"omitempty,gender"`
	DateOfBirth     *time.Time `json:"date_of_birth,omitempty"`
}

type ProfileForm struct {
	Name        string     `json:"name" validate:"required"`
	Email       string     `json:"email" validate:"required,email"`
	Gender      string     `json:"gender,omitempty" validate:"omitempty,gender"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
}

type Config struct {
	Store  credstore.Store
	Client IdentityClient

	CacheTTL      time.Duration
	CacheCapacity int

	Logger logger.Logger
}

type Session struct {
	store    credstore.Store
	client   IdentityClient
	cache    *identityCache
	resolver *Resolver
	logger   logger.Logger
}

func New(cfg Config) *Session {
	l := cfg.Logger
	if l == nil {
		l = logger.NewNoOpLogger()
	}
	cache := newIdentityCache(cfg.CacheCapacity, cfg.CacheTTL)

	return &Session{
		store:    cfg.Store,
		client:   cfg.Client,
		cache:    cache,
		resolver: newResolver(cfg.Store, cfg.Client, cache, l),
		logger:   l,
	}
}

// Resolve runs one resolution attempt, see Resolver.Resolve
func (s *Session) Resolve(ctx context.Context) State {
	return s.resolver.Resolve(ctx)
}

// State returns state of the last transition without any I/O
func (s *Session) State() State {
	return s.resolver.State()
}

func (s *Session) Initial(ctx context.Context) (Phase, error) {
	return s.resolver.Initial(ctx)
}

func (s *Session) Subscribe(fn func(Transition)) (unsubscribe func()) {
	return s.resolver.Subscribe(fn)
}

// HasAccessToken reports whether an access token is stored, valid or not
func (s *Session) HasAccessToken(ctx context.Context) bool {
	phase, err := s.resolver.Initial(ctx)
	return err == nil && phase != PhaseNoToken
}

// Login obtains and stores a new token pair
// Any failure is *apperrors.FormError
func (s *Session) Login(ctx context.Context, form LoginForm) error {
	if err := validate.Struct(form); err != nil {
		return &apperrors.FormError{Fields: validate.Fields(err), Err: apperrors.ErrInvalidForm}
	}

	pair, err := s.client.Login(ctx, form.Email, form.Password)
	if err != nil {
		return &apperrors.FormError{Err: err}
	}

	if err := s.persist(ctx, pair); err != nil {
		return &apperrors.FormError{Err: err}
	}
	return nil
}

// Register creates an account and stores its token pair
// Any failure is *apperrors.FormError
func (s *Session) Register(ctx context.Context, form RegisterForm) error {
	if err := validate.Struct(form); err != nil {
		return &apperrors.FormError{Fields: validate.Fields(err), Err: apperrors.ErrInvalidForm}
	}

	exists, err := s.client.EmailExists(ctx, form.Email)
	if err != nil {
		return &apperrors.FormError{Err: err}
	}
	if exists {
		return apperrors.NewFormError(apperrors.ErrEmailTaken, "email", "Email already exists")
	}

	pair, err := s.client.Register(ctx, models.RegisterRequest{
		Email:       form.Email,
		Password:    form.Password,
		Name:        form.Name,
		Gender:      form.Gender,
		DateOfBirth: form.DateOfBirth,
	})
	if err != nil {
		return &apperrors.FormError{Err: err}
	}

	if err := s.persist(ctx, pair); err != nil {
		return &apperrors.FormError{Err: err}
	}
	return nil
}

// Logout ends the session on the service and drops local credentials.
// Local credentials are dropped even if the service call fails.
func (s *Session) Logout(ctx context.Context) error {
	access, ok, err := s.store.Get(ctx, models.KeyAccessToken)
	if err != nil {
		return fmt.Errorf("failed to read access token: %w", err)
	}
	if !ok {
		return apperrors.ErrNoAccessToken
	}

	_, logoutErr := s.client.Logout(ctx, access)
	if logoutErr != nil {
		s.logger.Warn("Logout rejected by identity service", "error", logoutErr)
	}

	return errors.Join(logoutErr, s.forget(ctx, access))
}

func (s *Session) Profile(ctx context.Context) (models.User, error) {
	return withAccess(ctx, s, s.client.Profile)
}

func (s *Session) UpdateProfile(ctx context.Context, form ProfileForm) (models.User, error) {
	if err := validate.Struct(form); err != nil {
		return models.User{}, &apperrors.FormError{Fields: validate.Fields(err), Err: apperrors.ErrInvalidForm}
	}

	user := models.User{
		Name:        form.Name,
		Email:       form.Email,
		Gender:      form.Gender,
		DateOfBirth: form.DateOfBirth,
	}

	return withAccess(ctx, s, func(ctx context.Context, access string) (models.User, error) {
		u, err := s.client.UpdateProfile(ctx, access, user)
		if err == nil {
			s.cache.invalidate(access)
		}
		return u, err
	})
}

// DeleteProfile removes the account and drops local credentials
func (s *Session) DeleteProfile(ctx context.Context, user models.User) (models.Message, error) {
	var deletedWith string

	msg, err := withAccess(ctx, s, func(ctx context.Context, access string) (models.Message, error) {
		deletedWith = access
		return s.client.DeleteProfile(ctx, access, user)
	})
	if err != nil {
		return msg, err
	}

	return msg, s.forget(ctx, deletedWith)
}

func (s *Session) EmailExists(ctx context.Context, email string) (bool, error) {
	return s.client.EmailExists(ctx, email)
}

func (s *Session) RequestPasswordReset(ctx context.Context, email string) (models.Message, error) {
	return s.client.RequestPasswordReset(ctx, email)
}

// Refresh exchanges stored refresh token for a new access token
func (s *Session) Refresh(ctx context.Context) error {
	refresh, ok, err := s.store.Get(ctx, models.KeyRefreshToken)
	if err != nil {
		return fmt.Errorf("failed to read refresh token: %w", err)
	}
	if !ok {
		return apperrors.ErrNoRefreshToken
	}

	_, err = s.resolver.refresh(ctx, refresh)
	return err
}

func (s *Session) persist(ctx context.Context, pair models.TokenPair) error {
	if err := s.store.Set(ctx, models.KeyAccessToken, pair.Access); err != nil {
		return fmt.Errorf("failed to store access token: %w", err)
	}
	if err := s.store.Set(ctx, models.KeyRefreshToken, pair.Refresh); err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	return nil
}

func (s *Session) forget(ctx context.Context, access string) error {
	s.cache.invalidate(access)

	if err := s.store.Delete(ctx, models.KeyAccessToken, models.KeyRefreshToken); err != nil {
		return fmt.Errorf("failed to drop credentials: %w", err)
	}

	s.resolver.reset()
	return nil
}

// withAccess calls op with stored access token.
// On ErrUnauthorized with a refresh token present, refreshes once and retries once.
func withAccess[T any](ctx context.Context, s *Session, op func(ctx context.Context, access string) (T, error)) (T, error) {
	var zero T

	access, ok, err := s.store.Get(ctx, models.KeyAccessToken)
	if err != nil {
		return zero, fmt.Errorf("failed to read access token: %w", err)
	}
	if !ok {
		return zero, apperrors.ErrNoAccessToken
	}

	value, err := op(ctx, access)
	if !errors.Is(err, apperrors.ErrUnauthorized) {
		return value, err
	}

	refresh, ok, rerr := s.store.Get(ctx, models.KeyRefreshToken)
	if rerr != nil {
		return zero, fmt.Errorf("failed to read refresh token: %w", rerr)
	}
	if !ok {
		return zero, err
	}

	access, rerr = s.resolver.refresh(ctx, refresh)
	if rerr != nil {
		return zero, rerr
	}

	s.logger.Debug("Retrying with refreshed access token")
	return op(ctx, access)
}

// Package identity talks to the remote identity service over its HTTP contract.
//
// Every method is a single request/response mapping with no retries. Non-200
// answers become *apperrors.StatusError wrapping one of the taxonomy sentinels,
// transport failures wrap apperrors.ErrNetworkFailure. The only expected
// non-200 is 401 from Identify: it is returned as data (Identity.NeedsRefresh).
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/skyauth/internal/apperrors"
	"github.com/nkiryanov/skyauth/internal/credstore"
	"github.com/nkiryanov/skyauth/internal/logger"
	"github.com/nkiryanov/skyauth/internal/models"
	"github.com/nkiryanov/skyauth/internal/validate"
)

const (
	DefaultRequestTimeout = 5 * time.Second

	// Responses larger than this are treated as malformed
	maxBodySize = 1 << 20

	RequestIDHeader = "X-Request-ID"
)

// Operation names used in errors and logs
const (
	OpLogin         = "login"
	OpRegister      = "register"
	OpIdentify      = "identify"
	OpRefresh       = "refresh"
	OpLogout        = "logout"
	OpEmailExists   = "email exists"
	OpProfile       = "get profile"
	OpUpdateProfile = "update profile"
	OpDeleteProfile = "delete profile"
	OpPasswordReset = "password reset"
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Result of identify call
// NeedsRefresh is set when the service rejected access token with 401
type Identity struct {
	User         models.User
	NeedsRefresh bool
}

type Config struct {
	// Identity service address, e.g. http://localhost:8003
	BaseURL string

	// Store receives new access token after successful refresh
	Store credstore.Store

	HTTPClient     HTTPDoer
	RequestTimeout time.Duration
	Logger         logger.Logger
}

type Client struct {
	baseURL        string
	store          credstore.Store
	httpClient     HTTPDoer
	requestTimeout time.Duration
	logger         logger.Logger
}

func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = DefaultRequestTimeout
	}
	l := cfg.Logger
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		store:          cfg.Store,
		httpClient:     httpClient,
		requestTimeout: requestTimeout,
		logger:         l,
	}
}

func (c *Client) Login(ctx context.Context, email string, password string) (models.TokenPair, error) {
	pair, code, err := send[models.TokenPair](ctx, c, call{
		op:     OpLogin,
		method: http.MethodPost,
		path:   "/auth/login",
		body:   models.LoginRequest{Email: email, Password: password},
	})
	if err != nil {
		return models.TokenPair{}, err
	}
	if code != http.StatusOK {
		return models.TokenPair{}, apperrors.NewStatusError(OpLogin, code, apperrors.ErrAuthRejected)
	}

	c.logger.Info("User logged in", "email", email)
	return pair, nil
}

func (c *Client) Register(ctx context.Context, req models.RegisterRequest) (models.TokenPair, error) {
	pair, code, err := send[models.TokenPair](ctx, c, call{
		op:     OpRegister,
		method: http.MethodPost,
		path:   "/auth/register",
		body:   req,
	})
	if err != nil {
		return models.TokenPair{}, err
	}
	if code != http.StatusOK {
		return models.TokenPair{}, apperrors.NewStatusError(OpRegister, code, apperrors.ErrRegistrationFailed)
	}

	c.logger.Info("User registered", "email", req.Email)
	return pair, nil
}

// Identify resolves user behind access token
func (c *Client) Identify(ctx context.Context, access string) (Identity, error) {
	user, code, err := send[models.User](ctx, c, call{
		op:     OpIdentify,
		method: http.MethodGet,
		path:   "/users/whoami",
		access: access,
	})

	switch {
	case errors.Is(err, apperrors.ErrMalformedResponse):
		return Identity{}, fmt.Errorf("%w: %w", apperrors.ErrIdentityUnavailable, err)
	case err != nil:
		return Identity{}, err
	}

	switch code {
	case http.StatusOK:
		return Identity{User: user}, nil
	case http.StatusUnauthorized:
		return Identity{NeedsRefresh: true}, nil
	default:
		return Identity{}, apperrors.NewStatusError(OpIdentify, code, apperrors.ErrIdentityUnavailable)
	}
}

// Refresh exchanges refresh token for a new access token
// The new access token is persisted to the store before returning, refresh token stays untouched
func (c *Client) Refresh(ctx context.Context, refresh string) (string, error) {
	token, code, err := send[models.AccessToken](ctx, c, call{
		op:     OpRefresh,
		method: http.MethodPost,
		path:   "/auth/refresh",
		body:   models.RefreshRequest{Refresh: refresh},
	})
	if err != nil {
		return "", err
	}
	if code != http.StatusOK {
		return "", apperrors.NewStatusError(OpRefresh, code, apperrors.ErrRefreshRejected)
	}

	if err := c.store.Set(ctx, models.KeyAccessToken, token.Access); err != nil {
		return "", fmt.Errorf("failed to persist refreshed access token: %w", err)
	}

	c.logger.Debug("Access token refreshed")
	return token.Access, nil
}

func (c *Client) Logout(ctx context.Context, access string) (models.Message, error) {
	return requireOK[models.Message](ctx, c, call{
		op:     OpLogout,
		method: http.MethodPost,
		path:   "/auth/logout",
		access: access,
	})
}

func (c *Client) EmailExists(ctx context.Context, email string) (bool, error) {
	exists, err := requireOK[models.UserExists](ctx, c, call{
		op:     OpEmailExists,
		method: http.MethodGet,
		path:   "/users/exists/" + url.PathEscape(email),
	})
	return exists.UserExists, err
}

func (c *Client) RequestPasswordReset(ctx context.Context, email string) (models.Message, error) {
	return requireOK[models.Message](ctx, c, call{
		op:     OpPasswordReset,
		method: http.MethodPost,
		path:   "/auth/password-reset",
		body:   models.User{Email: email},
	})
}

func (c *Client) Profile(ctx context.Context, access string) (models.User, error) {
	return authorized[models.User](ctx, c, call{
		op:     OpProfile,
		method: http.MethodGet,
		path:   "/user/me",
		access: access,
	})
}

func (c *Client) UpdateProfile(ctx context.Context, access string, user models.User) (models.User, error) {
	return authorized[models.User](ctx, c, call{
		op:     OpUpdateProfile,
		method: http.MethodPut,
		path:   "/user/me",
		access: access,
		body:   user,
	})
}

func (c *Client) DeleteProfile(ctx context.Context, access string, user models.User) (models.Message, error) {
	return authorized[models.Message](ctx, c, call{
		op:     OpDeleteProfile,
		method: http.MethodDelete,
		path:   "/user/me",
		access: access,
		body:   user,
	})
}

type call struct {
	op     string
	method string
	path   string
	access string // sent as bearer token if not empty
	body   any    // encoded as json if not nil
}

// Any non-200 is ErrRequestFailed
func requireOK[T any](ctx context.Context, c *Client, cl call) (T, error) {
	var zero T

	value, code, err := send[T](ctx, c, cl)
	if err != nil {
		return zero, err
	}
	if code != http.StatusOK {
		return zero, apperrors.NewStatusError(cl.op, code, apperrors.ErrRequestFailed)
	}
	return value, nil
}

// 401 is ErrUnauthorized so caller may refresh and retry, other non-200 is ErrRequestFailed
func authorized[T any](ctx context.Context, c *Client, cl call) (T, error) {
	var zero T

	value, code, err := send[T](ctx, c, cl)
	if err != nil {
		return zero, err
	}

	switch code {
	case http.StatusOK:
		return value, nil
	case http.StatusUnauthorized:
		return zero, apperrors.NewStatusError(cl.op, code, apperrors.ErrUnauthorized)
	default:
		return zero, apperrors.NewStatusError(cl.op, code, apperrors.ErrRequestFailed)
	}
}

// send performs the request and decodes 200 body into T
// Error is returned only for transport or decoding failures, status is for caller to map
func send[T any](ctx context.Context, c *Client, cl call) (T, int, error) {
	var value T

	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	var body io.Reader
	if cl.body != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(cl.body); err != nil {
			return value, 0, fmt.Errorf("%s: failed to encode request: %w", cl.op, err)
		}
		body = buf
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, c.baseURL+cl.path, body)
	if err != nil {
		return value, 0, fmt.Errorf("%s: failed to create request: %w", cl.op, err)
	}

	requestID := uuid.NewString()
	req.Header.Set(RequestIDHeader, requestID)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cl.access != "" {
		req.Header.Set("Authorization", "Bearer "+cl.access)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Identity service unreachable", "op", cl.op, "request_id", requestID, "error", err)
		return value, 0, fmt.Errorf("%s: %w: %w", cl.op, apperrors.ErrNetworkFailure, err)
	}
	defer resp.Body.Close() // nolint:errcheck

	c.logger.Debug("Identity service responded", "op", cl.op, "request_id", requestID, "status_code", resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return value, resp.StatusCode, nil
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(&value); err != nil {
		c.logger.Warn("Failed to decode response", "op", cl.op, "request_id", requestID, "error", err)
		return value, resp.StatusCode, fmt.Errorf("%s: %w: %w", cl.op, apperrors.ErrMalformedResponse, err)
	}
	if err := validate.Struct(value); err != nil {
		c.logger.Warn("Response failed validation", "op", cl.op, "request_id", requestID, "error", err)
		return value, resp.StatusCode, fmt.Errorf("%s: %w: %w", cl.op, apperrors.ErrMalformedResponse, err)
	}

	return value, resp.StatusCode, nil
}

package testutil

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/nkiryanov/skyauth/internal/handlers/render"
	"github.com/nkiryanov/skyauth/internal/models"
)

// Operation names counted by IdentityServer
const (
	OpRegister      = "register"
	OpLogin         = "login"
	OpLogout        = "logout"
	OpRefresh       = "refresh"
	OpIdentify      = "identify"
	OpExists        = "exists"
	OpProfile       = "profile"
	OpUpdateProfile = "update-profile"
	OpDeleteProfile = "delete-profile"
	OpPasswordReset = "password-reset"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// IdentityServer is an in-process identity service speaking the same HTTP contract
// as the real one. Access and refresh tokens are HS256 JWTs, logout revokes
// refresh tokens by bumping user's token version.
type IdentityServer struct {
	*httptest.Server

	secret []byte

	mu        sync.Mutex
	accessTTL time.Duration
	users     map[string]*identityUser // by email
	calls     map[string]int
}

type identityUser struct {
	ID             uuid.UUID
	Profile        models.User
	PasswordHash   []byte
	RefreshVersion int
}

type identityClaims struct {
	jwt.RegisteredClaims
	Email   string `json:"email"`
	Type    string `json:"typ"`
	Version int    `json:"ver"`
}

// Start identity server, it is closed on test cleanup
func StartIdentityServer(t *testing.T) *IdentityServer {
	t.Helper()

	s := &IdentityServer{
		secret:    []byte("identity-server-test-secret"),
		accessTTL: 15 * time.Minute,
		users:     make(map[string]*identityUser),
		calls:     make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/register", s.register)
	mux.HandleFunc("POST /auth/login", s.login)
	mux.HandleFunc("POST /auth/logout", s.logout)
	mux.HandleFunc("POST /auth/refresh", s.refresh)
	mux.HandleFunc("POST /auth/password-reset", s.passwordReset)
	mux.HandleFunc("GET /users/whoami", s.whoami)
	mux.HandleFunc("GET /users/exists/{email}", s.exists)
	mux.HandleFunc("GET /user/me", s.profile)
	mux.HandleFunc("PUT /user/me", s.updateProfile)
	mux.HandleFunc("DELETE /user/me", s.deleteProfile)

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)

	return s
}

// SetAccessTTL changes lifetime of access tokens issued from now on
// Negative value issues already expired tokens
func (s *IdentityServer) SetAccessTTL(ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessTTL = ttl
}

// Calls returns how many times operation was requested
func (s *IdentityServer) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// CreateUser registers user directly and returns issued token pair
func (s *IdentityServer) CreateUser(t *testing.T, email string, password string) models.TokenPair {
	t.Helper()

	s.mu.Lock()
	defer s.mu.Unlock()

	u, err := s.createUser(models.RegisterRequest{Email: email, Password: password})
	if err != nil {
		t.Fatalf("can't create user: %v", err)
	}

	pair, err := s.issuePair(u)
	if err != nil {
		t.Fatalf("can't issue tokens: %v", err)
	}
	return pair
}

func (s *IdentityServer) hit(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[op]++
}

func (s *IdentityServer) register(w http.ResponseWriter, r *http.Request) {
	s.hit(OpRegister)

	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.DecodeError(w, err)
		return
	}
	if req.Email == "" || len(req.Password) < 8 {
		render.ServiceError(w, "email and password of 8+ characters are required", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[req.Email]; ok {
		render.ServiceError(w, "user already exists", http.StatusConflict)
		return
	}

	u, err := s.createUser(req)
	if err != nil {
		render.ServiceError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.writePair(w, u)
}

func (s *IdentityServer) login(w http.ResponseWriter, r *http.Request) {
	s.hit(OpLogin)

	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.DecodeError(w, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[req.Email]
	if !ok || comparePassword(u.PasswordHash, req.Password) != nil {
		render.ServiceError(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	s.writePair(w, u)
}

func (s *IdentityServer) logout(w http.ResponseWriter, r *http.Request) {
	s.hit(OpLogout)

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.authenticate(r)
	if !ok {
		render.ServiceError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	u.RefreshVersion++
	render.JSON(w, models.Message{Message: "user logged out successfully"})
}

func (s *IdentityServer) refresh(w http.ResponseWriter, r *http.Request) {
	s.hit(OpRefresh)

	var req models.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.DecodeError(w, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	claims, err := s.parse(req.Refresh, tokenTypeRefresh)
	if err != nil {
		render.ServiceError(w, "error generating access token", http.StatusBadRequest)
		return
	}

	u, ok := s.users[claims.Email]
	if !ok || u.RefreshVersion != claims.Version {
		render.ServiceError(w, "refresh token revoked", http.StatusBadRequest)
		return
	}

	access, err := s.sign(u, tokenTypeAccess, s.accessTTL)
	if err != nil {
		render.ServiceError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	render.JSON(w, models.AccessToken{Access: access})
}

func (s *IdentityServer) passwordReset(w http.ResponseWriter, r *http.Request) {
	s.hit(OpPasswordReset)

	var req models.User
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		render.ServiceError(w, "email is required", http.StatusBadRequest)
		return
	}

	render.JSON(w, models.Message{Message: "password reset email sent"})
}

func (s *IdentityServer) whoami(w http.ResponseWriter, r *http.Request) {
	s.hit(OpIdentify)

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.authenticate(r)
	if !ok {
		render.ServiceError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	render.JSON(w, u.Profile)
}

func (s *IdentityServer) exists(w http.ResponseWriter, r *http.Request) {
	s.hit(OpExists)

	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.users[r.PathValue("email")]
	render.JSON(w, models.UserExists{UserExists: ok})
}

func (s *IdentityServer) profile(w http.ResponseWriter, r *http.Request) {
	s.hit(OpProfile)

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.authenticate(r)
	if !ok {
		render.ServiceError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	render.JSON(w, u.Profile)
}

func (s *IdentityServer) updateProfile(w http.ResponseWriter, r *http.Request) {
	s.hit(OpUpdateProfile)

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.authenticate(r)
	if !ok {
		render.ServiceError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req models.User
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		render.DecodeError(w, err)
		return
	}
	if req.Name == "" {
		render.ServiceError(w, "empty required field name", http.StatusBadRequest)
		return
	}

	u.Profile.Name = req.Name
	u.Profile.Gender = req.Gender
	u.Profile.DateOfBirth = req.DateOfBirth

	render.JSON(w, u.Profile)
}

func (s *IdentityServer) deleteProfile(w http.ResponseWriter, r *http.Request) {
	s.hit(OpDeleteProfile)

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.authenticate(r)
	if !ok {
		render.ServiceError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	delete(s.users, u.Profile.Email)
	render.JSON(w, models.Message{Message: "user profile deleted"})
}

// Must be called with s.mu held
func (s *IdentityServer) createUser(req models.RegisterRequest) (*identityUser, error) {
	hash, err := hashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	u := &identityUser{
		ID: uuid.New(),
		Profile: models.User{
			Email:       req.Email,
			Name:        req.Name,
			Gender:      req.Gender,
			DateOfBirth: req.DateOfBirth,
		},
		PasswordHash: hash,
	}
	s.users[req.Email] = u
	return u, nil
}

// Must be called with s.mu held
func (s *IdentityServer) authenticate(r *http.Request) (*identityUser, bool) {
	access, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return nil, false
	}

	claims, err := s.parse(access, tokenTypeAccess)
	if err != nil {
		return nil, false
	}

	u, ok := s.users[claims.Email]
	if !ok || u.ID.String() != claims.Subject {
		return nil, false
	}
	return u, true
}

// Must be called with s.mu held
func (s *IdentityServer) writePair(w http.ResponseWriter, u *identityUser) {
	pair, err := s.issuePair(u)
	if err != nil {
		render.ServiceError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	render.JSON(w, pair)
}

func (s *IdentityServer) issuePair(u *identityUser) (models.TokenPair, error) {
	access, err := s.sign(u, tokenTypeAccess, s.accessTTL)
	if err != nil {
		return models.TokenPair{}, err
	}

	refresh, err := s.sign(u, tokenTypeRefresh, 24*time.Hour)
	if err != nil {
		return models.TokenPair{}, err
	}

	return models.TokenPair{Access: access, Refresh: refresh}, nil
}

func (s *IdentityServer) sign(u *identityUser, typ string, ttl time.Duration) (string, error) {
	now := time.Now()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, identityClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   u.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email:   u.Profile.Email,
		Type:    typ,
		Version: u.RefreshVersion,
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("error while signing %s token. Err: %w", typ, err)
	}
	return signed, nil
}

func (s *IdentityServer) parse(value string, typ string) (*identityClaims, error) {
	claims := &identityClaims{}
	_, err := jwt.ParseWithClaims(
		value,
		claims,
		func(t *jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return nil, err
	}
	if claims.Type != typ {
		return nil, fmt.Errorf("token type %q, expected %q", claims.Type, typ)
	}
	return claims, nil
}

// Passwords are pre-hashed with sha256 so bcrypt 72 bytes limit never truncates them
func hashPassword(password string) ([]byte, error) {
	sum := sha256.Sum256([]byte(password))
	return bcrypt.GenerateFromPassword(sum[:], bcrypt.MinCost)
}

func comparePassword(hash []byte, password string) error {
	sum := sha256.Sum256([]byte(password))
	return bcrypt.CompareHashAndPassword(hash, sum[:])
}

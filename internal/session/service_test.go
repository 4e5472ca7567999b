package session

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/skyauth/internal/credstore"
	"github.com/nkiryanov/skyauth/internal/identity"
	"github.com/nkiryanov/skyauth/internal/models"
)

// scriptedService answers with predefined tokens so tests may use literal values
type scriptedService struct {
	mu sync.Mutex

	users     map[string]models.User // access token -> user, unknown token is 401
	refreshes map[string]string      // refresh token -> new access token, unknown is 400
	logins    map[string]models.TokenPair
	existing  map[string]bool

	identifyStatus int           // if set, whoami answers with it
	identifyGate   chan struct{} // if set, whoami waits for it
	refreshGate    chan struct{} // if set, refresh waits for it

	calls map[string]int
}

func newScriptedService() *scriptedService {
	return &scriptedService{
		users:     make(map[string]models.User),
		refreshes: make(map[string]string),
		logins:    make(map[string]models.TokenPair),
		existing:  make(map[string]bool),
		calls:     make(map[string]int),
	}
}

func (s *scriptedService) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *scriptedService) addUser(access string, u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[access] = u
}

func (s *scriptedService) addRefresh(refresh string, access string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshes[refresh] = access
}

func (s *scriptedService) addLogin(email string, password string, pair models.TokenPair) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logins[email+":"+password] = pair
}

func (s *scriptedService) setIdentifyStatus(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identifyStatus = code
}

func (s *scriptedService) hit(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[op]++
}

func (s *scriptedService) user(r *http.Request) (models.User, bool) {
	access := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[access]
	return u, ok
}

func (s *scriptedService) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /users/whoami", func(w http.ResponseWriter, r *http.Request) {
		s.hit(identity.OpIdentify)
		if s.identifyGate != nil {
			<-s.identifyGate
		}
		s.mu.Lock()
		status := s.identifyStatus
		s.mu.Unlock()
		if status != 0 {
			w.WriteHeader(status)
			return
		}
		u, ok := s.user(r)
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		reply(w, u)
	})

	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		s.hit(identity.OpRefresh)
		if s.refreshGate != nil {
			<-s.refreshGate
		}
		var req models.RefreshRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		s.mu.Lock()
		access, ok := s.refreshes[req.Refresh]
		s.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		reply(w, models.AccessToken{Access: access})
	})

	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		s.hit(identity.OpLogin)
		var req models.LoginRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		s.mu.Lock()
		pair, ok := s.logins[req.Email+":"+req.Password]
		s.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		reply(w, pair)
	})

	mux.HandleFunc("POST /auth/register", func(w http.ResponseWriter, r *http.Request) {
		s.hit(identity.OpRegister)
		var req models.RegisterRequest
		_ = json.NewDecoder(r.Body).Decode(&req)

		pair := models.TokenPair{Access: "access-" + req.Email, Refresh: "refresh-" + req.Email}
		s.mu.Lock()
		s.users[pair.Access] = models.User{Email: req.Email, Name: req.Name}
		s.existing[req.Email] = true
		s.mu.Unlock()
		reply(w, pair)
	})

	mux.HandleFunc("GET /users/exists/{email}", func(w http.ResponseWriter, r *http.Request) {
		s.hit(identity.OpEmailExists)
		s.mu.Lock()
		exists := s.existing[r.PathValue("email")]
		s.mu.Unlock()
		reply(w, models.UserExists{UserExists: exists})
	})

	mux.HandleFunc("POST /auth/logout", func(w http.ResponseWriter, r *http.Request) {
		s.hit(identity.OpLogout)
		if _, ok := s.user(r); !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		reply(w, models.Message{Message: "logged out"})
	})

	mux.HandleFunc("GET /user/me", func(w http.ResponseWriter, r *http.Request) {
		s.hit(identity.OpProfile)
		u, ok := s.user(r)
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		reply(w, u)
	})

	mux.HandleFunc("PUT /user/me", func(w http.ResponseWriter, r *http.Request) {
		s.hit(identity.OpUpdateProfile)
		if _, ok := s.user(r); !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var u models.User
		_ = json.NewDecoder(r.Body).Decode(&u)
		reply(w, u)
	})

	mux.HandleFunc("DELETE /user/me", func(w http.ResponseWriter, r *http.Request) {
		s.hit(identity.OpDeleteProfile)
		if _, ok := s.user(r); !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		reply(w, models.Message{Message: "deleted"})
	})

	mux.HandleFunc("POST /auth/password-reset", func(w http.ResponseWriter, r *http.Request) {
		s.hit(identity.OpPasswordReset)
		reply(w, models.Message{Message: "sent"})
	})

	return mux
}

func reply(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type testEnv struct {
	service *scriptedService
	store   *credstore.Memory
	session *Session
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	service := newScriptedService()
	srv := httptest.NewServer(service.handler())
	t.Cleanup(srv.Close)

	store := credstore.NewMemory()
	client := identity.NewClient(identity.Config{BaseURL: srv.URL, Store: store})

	return &testEnv{
		service: service,
		store:   store,
		session: New(Config{Store: store, Client: client}),
	}
}

func (e *testEnv) setTokens(t *testing.T, access string, refresh string) {
	t.Helper()

	if access != "" {
		require.NoError(t, e.store.Set(t.Context(), models.KeyAccessToken, access))
	}
	if refresh != "" {
		require.NoError(t, e.store.Set(t.Context(), models.KeyRefreshToken, refresh))
	}
}

func (e *testEnv) token(t *testing.T, key string) string {
	t.Helper()

	v, _, err := e.store.Get(t.Context(), key)
	require.NoError(t, err)
	return v
}

// record collects transitions delivered to subscriber
func record(s *Session) func() []Transition {
	var mu sync.Mutex
	var got []Transition

	s.Subscribe(func(tr Transition) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, tr)
	})

	return func() []Transition {
		mu.Lock()
		defer mu.Unlock()
		return append([]Transition(nil), got...)
	}
}

func phases(transitions []Transition) [][2]Phase {
	out := make([][2]Phase, 0, len(transitions))
	for _, tr := range transitions {
		out = append(out, [2]Phase{tr.From, tr.To})
	}
	return out
}

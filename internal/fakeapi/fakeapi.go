// Package fakeapi is an in-process stand-in for the monitoring backend, used by tests.
// It mounts the backend's routes under /api, issues signed JWT token pairs with
// rotation on refresh, and exposes knobs for expiring tokens and failing or
// delaying the refresh call.
package fakeapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const (
	// DefaultUsername and DefaultPassword are the credentials of the seeded admin account.
	DefaultUsername = "admin"
	DefaultPassword = "admin123"
)

// User is an account known to the fake backend.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Nickname string `json:"nickname,omitempty"`
	Email    string `json:"email,omitempty"`
	Bio      string `json:"bio,omitempty"`
	Role     string `json:"role"`
	Password string `json:"-"`
}

// ServerInfo is a managed host.
type ServerInfo struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	IP       string `json:"ip"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password,omitempty"`
	IsOnline bool   `json:"isOnline"`
}

// Server is a running fake backend.
type Server struct {
	*httptest.Server
	Router *mux.Router
	api    *mux.Router

	secret []byte

	mu           sync.Mutex
	users        map[string]*User
	nextUserID   int64
	access       map[string]string // access token -> username
	refresh      map[string]string // refresh token -> username
	minted       map[string]bool   // access tokens issued by refresh
	servers      map[int64]*ServerInfo
	nextServerID int64
	files        map[int64]map[string][]byte
	tickets      map[string]int64
	cpu          []CPUPoint

	refreshDelay   time.Duration
	refreshGate    chan struct{}
	refreshFails   bool
	legacyLogin    bool
	envelope401    bool
	rejectReplays  bool
	refreshCalls   atomic.Int64
	refreshStarted chan struct{}
	hits           sync.Map // route path -> *atomic.Int64
}

// CPUPoint is one sample of the cpu-history series.
type CPUPoint struct {
	Time  string  `json:"time"`
	Value float64 `json:"value"`
}

// New starts a fake backend seeded with an admin account and one server.
func New() *Server {
	s := &Server{
		secret:         []byte(uuid.NewString()),
		users:          map[string]*User{},
		access:         map[string]string{},
		refresh:        map[string]string{},
		minted:         map[string]bool{},
		servers:        map[int64]*ServerInfo{},
		files:          map[int64]map[string][]byte{},
		tickets:        map[string]int64{},
		refreshStarted: make(chan struct{}, 64),
	}
	s.addUser(&User{Username: DefaultUsername, Password: DefaultPassword, Nickname: "Administrator", Role: "admin"})
	s.nextServerID = 1
	s.servers[1] = &ServerInfo{ID: 1, Name: "web-01", IP: "10.0.0.1", Port: 22, Username: "root", IsOnline: true}
	s.files[1] = map[string][]byte{"/var/log/app.log": []byte("line one\nline two\n")}
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		s.cpu = append(s.cpu, CPUPoint{Time: base.Add(time.Duration(i) * time.Minute).Format(time.RFC3339), Value: float64(10 + i*5)})
	}

	s.Router = mux.NewRouter()
	s.api = s.Router.PathPrefix("/api").Subrouter()
	s.routes()
	s.Server = httptest.NewServer(s.Router)
	return s
}

// BaseURL is the API root to hand to client.New.
func (s *Server) BaseURL() string { return s.URL + "/api" }

// HandleFunc registers an extra authenticated route under /api.
func (s *Server) HandleFunc(path string, fn http.HandlerFunc) *mux.Route {
	return s.api.Handle(path, s.authed(fn))
}

// Login issues a fresh pair for username without going through HTTP.
func (s *Server) Login(username string) (access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issuePairLocked(username)
}

// ExpireAccessTokens invalidates every issued access token; refresh tokens stay valid.
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = map[string]string{}
}

// RevokeAll invalidates every issued token.
func (s *Server) RevokeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = map[string]string{}
	s.refresh = map[string]string{}
}

// SetRefreshDelay makes the refresh endpoint sleep before answering.
func (s *Server) SetRefreshDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshDelay = d
}

// HoldRefresh makes the refresh endpoint block until the returned func is called.
func (s *Server) HoldRefresh() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.refreshGate = gate
	s.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// RefreshStarted receives a value each time the refresh endpoint is entered.
func (s *Server) RefreshStarted() <-chan struct{} { return s.refreshStarted }

// SetRefreshFails makes the refresh endpoint reject every refresh token.
func (s *Server) SetRefreshFails(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshFails = fail
}

// SetLegacyLogin makes login answer with a single "token" field.
func (s *Server) SetLegacyLogin(legacy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.legacyLogin = legacy
}

// SetEnvelopeUnauthorized makes auth failures answer HTTP 200 with code 401 in the envelope.
func (s *Server) SetEnvelopeUnauthorized(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.envelope401 = on
}

// SetRejectRefreshedTokens makes tokens minted by refresh fail authentication.
func (s *Server) SetRejectRefreshedTokens(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectReplays = on
}

// RefreshCalls is how many times the refresh endpoint was called.
func (s *Server) RefreshCalls() int64 { return s.refreshCalls.Load() }

// Hits is how many requests reached the route registered as path.
func (s *Server) Hits(path string) int64 {
	if v, ok := s.hits.Load(path); ok {
		return v.(*atomic.Int64).Load()
	}
	return 0
}

// Servers returns a snapshot of the managed hosts.
func (s *Server) Servers() []ServerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ServerInfo, 0, len(s.servers))
	for id := int64(1); id <= s.nextServerID; id++ {
		if srv, ok := s.servers[id]; ok {
			out = append(out, *srv)
		}
	}
	return out
}

// File returns the content stored at path on server id.
func (s *Server) File(id int64, path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.files[id][path]
	return b, ok
}

// PutFile stores content at path on server id.
func (s *Server) PutFile(id int64, path string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.files[id] == nil {
		s.files[id] = map[string][]byte{}
	}
	s.files[id][path] = content
}

// User looks up an account by name.
func (s *Server) User(username string) (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return User{}, false
	}
	return *u, true
}

func (s *Server) addUser(u *User) *User {
	s.nextUserID++
	u.ID = s.nextUserID
	if u.Role == "" {
		u.Role = "user"
	}
	s.users[u.Username] = u
	return u
}

func (s *Server) issuePairLocked(username string) (string, string) {
	access := s.mint(username, "access", 15*time.Minute)
	refresh := s.mint(username, "refresh", 7*24*time.Hour)
	s.access[access] = username
	s.refresh[refresh] = username
	return access, refresh
}

func (s *Server) mint(username, kind string, ttl time.Duration) string {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": username,
		"typ": kind,
		"jti": uuid.NewString(),
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		panic(err)
	}
	return raw
}

// verify checks the signature and that the token is still on the live list.
func (s *Server) verify(raw string, live map[string]string) (string, bool) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tok.Valid {
		return "", false
	}
	username, ok := live[raw]
	return username, ok
}

type ctxUser struct{}

func (s *Server) authed(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.mu.Lock()
		username, ok := s.verify(raw, s.access)
		if ok && s.rejectReplays && s.minted[raw] {
			ok = false
		}
		envelope := s.envelope401
		s.mu.Unlock()
		if !ok {
			if envelope {
				writeJSON(w, http.StatusOK, envelopeBody{Code: 401, Msg: "token expired, please refresh"})
				return
			}
			writeJSON(w, http.StatusUnauthorized, envelopeBody{Code: 401, Msg: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), username)))
	})
}

type envelopeBody struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func ok(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelopeBody{Code: 200, Msg: "success", Data: data})
}

func fail(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, http.StatusOK, envelopeBody{Code: code, Msg: msg})
}

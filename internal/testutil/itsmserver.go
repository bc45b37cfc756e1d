package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Fake ITSM backend credentials.
const (
	FakeUsername   = "admin"
	FakePassword   = "secret"
	FakeTenantID   = 1
	FakeTenantCode = "default"
)

// RecordedRequest is a request observed by the fake server.
type RecordedRequest struct {
	Method        string
	Path          string
	Authorization string
	TenantID      string
	TenantCode    string
	RequestID     string
	ContentType   string
	Cookie        string
	Body          []byte
}

// ITSMServer is an in-process fake of the ITSM backend: login, token refresh
// and a bearer-protected /api/v1 route group that tests populate.
type ITSMServer struct {
	*httptest.Server

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	rotate       bool
	refreshDelay time.Duration
	issued       int
	requests     []RecordedRequest

	refreshCalls atomic.Int64
	protected    chi.Router
}

// NewITSMServer starts a fake backend that is closed when the test ends.
func NewITSMServer(t *testing.T) *ITSMServer {
	t.Helper()

	s := &ITSMServer{refreshToken: "refresh-0"}
	s.accessToken = s.nextToken()

	r := chi.NewRouter()
	r.Use(s.requestID)
	r.Use(s.record)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Post("/refresh-token", s.handleRefresh)
		r.Group(func(r chi.Router) {
			r.Use(s.requireBearer)
			s.protected = r
		})
	})

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

// Handle registers a bearer-protected route under /api/v1.
func (s *ITSMServer) Handle(method, pattern string, h http.HandlerFunc) {
	s.protected.Method(method, pattern, h)
}

// AccessToken returns the token the server currently accepts.
func (s *ITSMServer) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessToken
}

// RefreshToken returns the refresh token the server currently accepts.
func (s *ITSMServer) RefreshToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshToken
}

// Expire invalidates the current access token so the next call gets a 401.
func (s *ITSMServer) Expire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = s.nextToken()
}

// RevokeRefresh makes every refresh attempt fail.
func (s *ITSMServer) RevokeRefresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshToken = ""
}

// SetRotateRefresh makes each refresh also issue a new refresh token.
func (s *ITSMServer) SetRotateRefresh(rotate bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rotate = rotate
}

// SetRefreshDelay slows down the refresh endpoint.
func (s *ITSMServer) SetRefreshDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshDelay = d
}

// RefreshCalls returns how many times the refresh endpoint was hit.
func (s *ITSMServer) RefreshCalls() int64 {
	return s.refreshCalls.Load()
}

// Requests returns every request observed so far.
func (s *ITSMServer) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecordedRequest(nil), s.requests...)
}

// RequestsTo returns the requests observed for path.
func (s *ITSMServer) RequestsTo(path string) []RecordedRequest {
	var out []RecordedRequest
	for _, r := range s.Requests() {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

// nextToken must be called with mu held or before the server starts.
func (s *ITSMServer) nextToken() string {
	s.issued++
	return fmt.Sprintf("access-%d", s.issued)
}

func (s *ITSMServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username   string `json:"username"`
		Password   string `json:"password"`
		TenantCode string `json:"tenant_code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteEnvelope(w, http.StatusBadRequest, 4000, "invalid request body", nil)
		return
	}
	if req.Username != FakeUsername || req.Password != FakePassword {
		WriteEnvelope(w, http.StatusOK, 4001, "invalid username or password", nil)
		return
	}

	s.mu.Lock()
	s.accessToken = s.nextToken()
	s.refreshToken = "refresh-" + uuid.NewString()
	access, refresh := s.accessToken, s.refreshToken
	s.mu.Unlock()

	WriteEnvelope(w, http.StatusOK, 0, "success", map[string]any{
		"access_token":  access,
		"refresh_token": refresh,
		"user":          map[string]any{"id": 1, "username": req.Username, "display_name": "Administrator"},
		"tenant":        map[string]any{"id": FakeTenantID, "code": FakeTenantCode, "name": "Default Tenant"},
	})
}

func (s *ITSMServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.refreshCalls.Add(1)

	s.mu.Lock()
	delay := s.refreshDelay
	s.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteEnvelope(w, http.StatusBadRequest, 4000, "invalid request body", nil)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refreshToken == "" || req.RefreshToken != s.refreshToken {
		WriteEnvelope(w, http.StatusUnauthorized, 4010, "refresh token invalid", nil)
		return
	}

	s.accessToken = s.nextToken()
	data := map[string]any{"access_token": s.accessToken}
	if s.rotate {
		s.refreshToken = "refresh-" + uuid.NewString()
		data["refresh_token"] = s.refreshToken
	}
	WriteEnvelope(w, http.StatusOK, 0, "success", data)
}

func (s *ITSMServer) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" || token != s.AccessToken() {
			WriteEnvelope(w, http.StatusUnauthorized, 4010, "unauthorized", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestID stamps every response with an X-Request-Id, echoing the
// client's when one was sent.
func (s *ITSMServer) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}

func (s *ITSMServer) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := readAndRestore(r)
		s.mu.Lock()
		s.requests = append(s.requests, RecordedRequest{
			Method:        r.Method,
			Path:          r.URL.Path,
			Authorization: r.Header.Get("Authorization"),
			TenantID:      r.Header.Get("X-Tenant-ID"),
			TenantCode:    r.Header.Get("X-Tenant-Code"),
			RequestID:     r.Header.Get("X-Request-Id"),
			ContentType:   r.Header.Get("Content-Type"),
			Cookie:        r.Header.Get("Cookie"),
			Body:          body,
		})
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

// WriteEnvelope writes a {code, message, data} response.
func WriteEnvelope(w http.ResponseWriter, status, code int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"code":    code,
		"message": message,
		"data":    data,
	})
}

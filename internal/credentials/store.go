// Package credentials owns the session credentials used to authenticate API
// calls and mirrors them into durable storage and an auth cookie.
//
// The in-memory copy is the authority for the lifetime of a Store. Mirrors
// are best-effort: a failed mirror write is logged and otherwise ignored.
package credentials

import (
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/tjfontaine/itsm-client/internal/core/domain"
	"github.com/tjfontaine/itsm-client/internal/core/ports"
)

// Durable storage keys.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyTenantID     = "current_tenant_id"
	KeyTenantCode   = "current_tenant_code"
)

var allKeys = []string{KeyAccessToken, KeyRefreshToken, KeyTenantID, KeyTenantCode}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for mirror failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithCookieMirror mirrors the access token into an auth cookie.
func WithCookieMirror(m ports.CookieMirror) Option {
	return func(s *Store) {
		s.cookies = m
	}
}

// Store is the CredentialStore implementation.
type Store struct {
	mu        sync.RWMutex
	creds     domain.Credentials
	kv        ports.KVStore
	cookies   ports.CookieMirror
	logger    *slog.Logger
	listeners []func(domain.Credentials)
}

var _ ports.CredentialStore = (*Store)(nil)

// New creates a store persisting to kv. The store starts empty; call Load to
// rehydrate a previous session.
func New(kv ports.KVStore, opts ...Option) *Store {
	s := &Store{
		kv:     kv,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces the in-memory credentials with whatever the durable store
// holds. It is meant to run once, before the store is shared.
func (s *Store) Load() error {
	var creds domain.Credentials
	if s.kv != nil {
		var err error
		if creds.AccessToken, _, err = s.kv.Get(KeyAccessToken); err != nil {
			return err
		}
		if creds.RefreshToken, _, err = s.kv.Get(KeyRefreshToken); err != nil {
			return err
		}
		if creds.TenantCode, _, err = s.kv.Get(KeyTenantCode); err != nil {
			return err
		}
		id, ok, err := s.kv.Get(KeyTenantID)
		if err != nil {
			return err
		}
		if ok {
			if n, err := strconv.Atoi(id); err == nil {
				creds.TenantID = n
			}
		}
	}

	s.mu.Lock()
	s.creds = creds
	s.mirrorCookie(creds.AccessToken)
	s.mu.Unlock()
	return nil
}

// Get returns a copy of the current credentials.
func (s *Store) Get() domain.Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds
}

// OnChange registers fn to be called with the new credentials after every
// mutation.
func (s *Store) OnChange(fn func(domain.Credentials)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// SetAccessToken replaces the access token.
func (s *Store) SetAccessToken(token string) {
	s.update(func(c *domain.Credentials) {
		c.AccessToken = token
		s.mirrorString(KeyAccessToken, token)
		s.mirrorCookie(token)
	})
}

// SetRefreshToken replaces the refresh token.
func (s *Store) SetRefreshToken(token string) {
	s.update(func(c *domain.Credentials) {
		c.RefreshToken = token
		s.mirrorString(KeyRefreshToken, token)
	})
}

// SetTenant selects the tenant sent with every request. id 0 clears it.
func (s *Store) SetTenant(id int, code string) {
	s.update(func(c *domain.Credentials) {
		c.TenantID = id
		c.TenantCode = code
		s.mirrorTenant(id, code)
	})
}

// SetSession replaces all credentials at once, as after a login.
func (s *Store) SetSession(creds domain.Credentials) {
	s.update(func(c *domain.Credentials) {
		*c = creds
		s.mirrorString(KeyAccessToken, creds.AccessToken)
		s.mirrorString(KeyRefreshToken, creds.RefreshToken)
		s.mirrorTenant(creds.TenantID, creds.TenantCode)
		s.mirrorCookie(creds.AccessToken)
	})
}

// Clear forgets all credentials and deletes every mirror.
func (s *Store) Clear() {
	s.update(func(c *domain.Credentials) {
		*c = domain.Credentials{}
		for _, key := range allKeys {
			s.mirrorString(key, "")
		}
		if s.cookies != nil {
			if err := s.cookies.ClearAuthCookie(); err != nil {
				s.logger.Warn("failed to clear auth cookie", slog.String("error", err.Error()))
			}
		}
	})
}

// AccessTokenExpiry returns the exp claim of the current access token.
func (s *Store) AccessTokenExpiry() (time.Time, bool) {
	return TokenExpiry(s.Get().AccessToken)
}

// update applies fn under the write lock. Mirrors are written inside the
// lock so they observe mutations in the same order as memory.
func (s *Store) update(fn func(*domain.Credentials)) {
	s.mu.Lock()
	fn(&s.creds)
	snapshot := s.creds
	listeners := append([]func(domain.Credentials){}, s.listeners...)
	s.mu.Unlock()

	for _, l := range listeners {
		l(snapshot)
	}
}

func (s *Store) mirrorString(key, value string) {
	if s.kv == nil {
		return
	}
	var err error
	if value == "" {
		err = s.kv.Delete(key)
	} else {
		err = s.kv.Set(key, value)
	}
	if err != nil {
		s.logger.Warn("failed to mirror credential", slog.String("key", key), slog.String("error", err.Error()))
	}
}

func (s *Store) mirrorTenant(id int, code string) {
	if id == 0 {
		s.mirrorString(KeyTenantID, "")
	} else {
		s.mirrorString(KeyTenantID, strconv.Itoa(id))
	}
	s.mirrorString(KeyTenantCode, code)
}

func (s *Store) mirrorCookie(token string) {
	if s.cookies == nil {
		return
	}
	var err error
	if token == "" {
		err = s.cookies.ClearAuthCookie()
	} else {
		exp, _ := TokenExpiry(token)
		err = s.cookies.SetAuthCookie(token, exp)
	}
	if err != nil {
		s.logger.Warn("failed to mirror auth cookie", slog.String("error", err.Error()))
	}
}

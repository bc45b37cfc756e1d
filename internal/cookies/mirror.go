// Package cookies mirrors the access token into an http.CookieJar so that
// same-origin, server-rendered routes guarding on the auth cookie see the
// current session.
package cookies

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/tjfontaine/itsm-client/internal/core/ports"
)

const (
	// DefaultName is the cookie carrying the access token.
	DefaultName = "auth-token"

	// RefreshName is the legacy refresh cookie, removed on clear.
	RefreshName = "refresh-token"

	// DefaultMaxAge bounds the cookie lifetime.
	DefaultMaxAge = 15 * time.Minute
)

// Option configures a JarMirror.
type Option func(*JarMirror)

// WithName overrides the access token cookie name.
func WithName(name string) Option {
	return func(m *JarMirror) {
		if name != "" {
			m.name = name
		}
	}
}

// WithMaxAge overrides the maximum cookie lifetime.
func WithMaxAge(d time.Duration) Option {
	return func(m *JarMirror) {
		if d > 0 {
			m.maxAge = d
		}
	}
}

// WithClock sets the time source used to compute cookie lifetimes.
func WithClock(now func() time.Time) Option {
	return func(m *JarMirror) {
		m.now = now
	}
}

// JarMirror is a CookieMirror backed by an http.CookieJar scoped to the API
// origin. The jar is not attached to the API HTTP client.
type JarMirror struct {
	jar    http.CookieJar
	origin *url.URL
	name   string
	maxAge time.Duration
	now    func() time.Time
}

var _ ports.CookieMirror = (*JarMirror)(nil)

// NewJarMirror creates a mirror for baseURL. A nil jar gets a fresh cookiejar.
func NewJarMirror(jar http.CookieJar, baseURL string, opts ...Option) (*JarMirror, error) {
	origin, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	if origin.Scheme == "" || origin.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: scheme and host required", baseURL)
	}
	origin = &url.URL{Scheme: origin.Scheme, Host: origin.Host, Path: "/"}

	if jar == nil {
		jar, err = cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create cookie jar: %w", err)
		}
	}

	m := &JarMirror{
		jar:    jar,
		origin: origin,
		name:   DefaultName,
		maxAge: DefaultMaxAge,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Jar returns the underlying cookie jar.
func (m *JarMirror) Jar() http.CookieJar {
	return m.jar
}

// SetAuthCookie stores token with a lifetime of at most the configured max
// age, shortened to expires when that is earlier.
func (m *JarMirror) SetAuthCookie(token string, expires time.Time) error {
	if token == "" {
		return m.ClearAuthCookie()
	}
	ttl := m.maxAge
	if !expires.IsZero() {
		if until := expires.Sub(m.now()); until < ttl {
			ttl = until
		}
	}
	if ttl <= 0 {
		return m.ClearAuthCookie()
	}
	m.jar.SetCookies(m.origin, []*http.Cookie{{
		Name:     m.name,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl / time.Second),
		SameSite: http.SameSiteLaxMode,
	}})
	return nil
}

// ClearAuthCookie expires the access and refresh cookies.
func (m *JarMirror) ClearAuthCookie() error {
	expired := func(name string) *http.Cookie {
		return &http.Cookie{Name: name, Path: "/", MaxAge: -1}
	}
	m.jar.SetCookies(m.origin, []*http.Cookie{expired(m.name), expired(RefreshName)})
	return nil
}

// Value returns the current auth cookie value, or "" when absent.
func (m *JarMirror) Value() string {
	for _, c := range m.jar.Cookies(m.origin) {
		if c.Name == m.name {
			return c.Value
		}
	}
	return ""
}

package cookies

import (
	"testing"
	"time"
)

func TestJarMirror_SetAndClear(t *testing.T) {
	m, err := NewJarMirror(nil, "https://itsm.example.com/api")
	if err != nil {
		t.Fatalf("NewJarMirror() error = %v", err)
	}

	if err := m.SetAuthCookie("tok-1", time.Time{}); err != nil {
		t.Fatalf("SetAuthCookie() error = %v", err)
	}
	if got := m.Value(); got != "tok-1" {
		t.Errorf("Value() = %q, want tok-1", got)
	}

	if err := m.ClearAuthCookie(); err != nil {
		t.Fatalf("ClearAuthCookie() error = %v", err)
	}
	if got := m.Value(); got != "" {
		t.Errorf("Value() after clear = %q, want empty", got)
	}
}

func TestJarMirror_ExpiredTokenIsNotStored(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m, err := NewJarMirror(nil, "https://itsm.example.com", WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewJarMirror() error = %v", err)
	}

	if err := m.SetAuthCookie("stale", now.Add(-time.Minute)); err != nil {
		t.Fatalf("SetAuthCookie() error = %v", err)
	}
	if got := m.Value(); got != "" {
		t.Errorf("Value() = %q, want empty for an expired token", got)
	}
}

func TestJarMirror_CustomName(t *testing.T) {
	m, err := NewJarMirror(nil, "http://localhost:8080", WithName("session"), WithMaxAge(time.Hour))
	if err != nil {
		t.Fatalf("NewJarMirror() error = %v", err)
	}
	if err := m.SetAuthCookie("abc", time.Time{}); err != nil {
		t.Fatalf("SetAuthCookie() error = %v", err)
	}
	cookies := m.Jar().Cookies(m.origin)
	if len(cookies) != 1 || cookies[0].Name != "session" {
		t.Errorf("Cookies() = %v, want one session cookie", cookies)
	}
}

func TestNewJarMirror_InvalidURL(t *testing.T) {
	if _, err := NewJarMirror(nil, "not a url"); err == nil {
		t.Error("NewJarMirror() should reject a URL without scheme and host")
	}
}

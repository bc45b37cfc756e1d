package session

import (
	"context"
	"net/http"
	"testing"

	"github.com/tjfontaine/itsm-client/internal/apierr"
	"github.com/tjfontaine/itsm-client/internal/cookies"
	"github.com/tjfontaine/itsm-client/internal/credentials"
	"github.com/tjfontaine/itsm-client/internal/pipeline"
	"github.com/tjfontaine/itsm-client/internal/storage/memory"
	"github.com/tjfontaine/itsm-client/internal/testutil"
)

func setup(t *testing.T, opts ...Option) (*Manager, *testutil.ITSMServer, *memory.Store, *cookies.JarMirror) {
	t.Helper()
	server := testutil.NewITSMServer(t)
	kv := memory.New()
	mirror, err := cookies.NewJarMirror(nil, server.URL)
	if err != nil {
		t.Fatalf("NewJarMirror() error = %v", err)
	}
	store := credentials.New(kv, credentials.WithCookieMirror(mirror))
	client, err := pipeline.New(server.URL, store, pipeline.WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("pipeline.New() error = %v", err)
	}
	return New(client, store, opts...), server, kv, mirror
}

func TestLogin(t *testing.T) {
	m, server, kv, mirror := setup(t)

	result, err := m.Login(context.Background(), testutil.FakeUsername, testutil.FakePassword, testutil.FakeTenantCode)
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if result.User.Username != testutil.FakeUsername {
		t.Errorf("User.Username = %q", result.User.Username)
	}

	creds := m.Current()
	if creds.AccessToken != server.AccessToken() || creds.RefreshToken != server.RefreshToken() {
		t.Errorf("credentials = %+v, want server tokens", creds)
	}
	if creds.TenantID != testutil.FakeTenantID || creds.TenantCode != testutil.FakeTenantCode {
		t.Errorf("tenant = %d/%q", creds.TenantID, creds.TenantCode)
	}
	if v, _, _ := kv.Get(credentials.KeyTenantID); v != "1" {
		t.Errorf("durable tenant id = %q, want 1", v)
	}
	if mirror.Value() != creds.AccessToken {
		t.Errorf("cookie = %q, want access token", mirror.Value())
	}

	login := server.RequestsTo("/api/v1/login")[0]
	if login.Authorization != "" {
		t.Errorf("login Authorization = %q, want none", login.Authorization)
	}
	if !m.Authenticated() {
		t.Error("Authenticated() = false after login")
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	m, _, _, _ := setup(t)

	_, err := m.Login(context.Background(), testutil.FakeUsername, "wrong", "")
	if !apierr.IsBusiness(err) {
		t.Fatalf("Login() error = %v, want business error", err)
	}
	if m.Authenticated() {
		t.Error("Authenticated() = true after failed login")
	}
}

func TestLogout(t *testing.T) {
	var reasons []string
	m, _, kv, mirror := setup(t, WithLogoutHook(func(reason string) { reasons = append(reasons, reason) }))
	if _, err := m.Login(context.Background(), testutil.FakeUsername, testutil.FakePassword, ""); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	m.Logout()

	if !m.Current().IsZero() {
		t.Errorf("credentials = %+v, want zero", m.Current())
	}
	if kv.Len() != 0 {
		t.Errorf("durable keys = %d, want 0", kv.Len())
	}
	if mirror.Value() != "" {
		t.Errorf("cookie = %q, want cleared", mirror.Value())
	}
	if len(reasons) != 1 || reasons[0] != "logout" {
		t.Errorf("logout hook calls = %v", reasons)
	}
}

func TestSwitchTenant(t *testing.T) {
	m, server, _, _ := setup(t)
	if _, err := m.Login(context.Background(), testutil.FakeUsername, testutil.FakePassword, ""); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	server.Handle(http.MethodGet, "/tickets", func(w http.ResponseWriter, r *http.Request) {
		testutil.WriteEnvelope(w, http.StatusOK, 0, "success", nil)
	})

	m.SwitchTenant(9, "acme")
	if _, err := m.client.Get(context.Background(), "/api/v1/tickets", nil); err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	got := server.RequestsTo("/api/v1/tickets")[0]
	if got.TenantID != "9" || got.TenantCode != "acme" {
		t.Errorf("tenant headers = %q/%q, want 9/acme", got.TenantID, got.TenantCode)
	}
}

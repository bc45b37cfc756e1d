package runtime

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tjfontaine/itsm-client/internal/config"
	"github.com/tjfontaine/itsm-client/internal/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := New(WithLogger(quietLogger()))
	if err == nil {
		t.Fatal("Expected error without base URL")
	}
	if err.Error() != "base URL required (use WithBaseURL or WithConfig)" {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestNew_RejectsInvalidOptions(t *testing.T) {
	if _, err := New(WithBaseURL("http://localhost"), WithTimeout(0)); err == nil {
		t.Error("Expected error for zero timeout")
	}
	if _, err := New(WithConfig(&config.Config{})); err == nil {
		t.Error("Expected error for empty config")
	}
}

func TestClient_SessionSurvivesRestart(t *testing.T) {
	server := testutil.NewITSMServer(t)
	dbPath := filepath.Join(t.TempDir(), "session.db")

	open := func() *Client {
		t.Helper()
		c, err := New(
			WithBaseURL(server.URL),
			WithHTTPClient(server.Client()),
			WithSQLite(dbPath),
			WithLogger(quietLogger()),
		)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		return c
	}

	first := open()
	if _, err := first.Session().Login(context.Background(), testutil.FakeUsername, testutil.FakePassword, ""); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if err := first.Close(context.Background()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	second := open()
	defer second.Close(context.Background())

	creds := second.Credentials().Get()
	if creds.AccessToken != server.AccessToken() {
		t.Errorf("restored access token = %q, want %q", creds.AccessToken, server.AccessToken())
	}
	if creds.TenantCode != testutil.FakeTenantCode {
		t.Errorf("restored tenant = %q", creds.TenantCode)
	}

	server.Handle(http.MethodGet, "/me", func(w http.ResponseWriter, r *http.Request) {
		testutil.WriteEnvelope(w, http.StatusOK, 0, "success", map[string]any{"user_name": "admin"})
	})
	resp, err := second.Pipeline().Get(context.Background(), "/api/v1/me", nil)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if data, _ := resp.Data.(map[string]any); data["userName"] != "admin" {
		t.Errorf("Data = %v", resp.Data)
	}
}

func TestClient_RefreshAndExpiry(t *testing.T) {
	server := testutil.NewITSMServer(t)
	expired := make(chan string, 4)

	c, err := New(
		WithBaseURL(server.URL),
		WithHTTPClient(server.Client()),
		WithMemoryStorage(),
		WithSessionExpired(func(reason string) { expired <- reason }),
		WithLogger(quietLogger()),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close(context.Background())

	if _, err := c.Session().Login(context.Background(), testutil.FakeUsername, testutil.FakePassword, ""); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	server.Handle(http.MethodGet, "/tickets", func(w http.ResponseWriter, r *http.Request) {
		testutil.WriteEnvelope(w, http.StatusOK, 0, "success", nil)
	})

	server.Expire()
	if _, err := c.Pipeline().Get(context.Background(), "/api/v1/tickets", nil); err != nil {
		t.Fatalf("Get after expiry failed: %v", err)
	}
	if c.RefreshAttempts() != 1 {
		t.Errorf("RefreshAttempts() = %d, want 1", c.RefreshAttempts())
	}

	c.Session().Logout()
	select {
	case reason := <-expired:
		if reason != "logout" {
			t.Errorf("expired reason = %q, want logout", reason)
		}
	case <-time.After(time.Second):
		t.Error("session expired callback not fired on logout")
	}
}

func TestClient_AuthCookieStaysOffTheWire(t *testing.T) {
	server := testutil.NewITSMServer(t)
	c, err := New(
		WithBaseURL(server.URL),
		WithHTTPClient(server.Client()),
		WithMemoryStorage(),
		WithLogger(quietLogger()),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close(context.Background())

	ctx := context.Background()
	if _, err := c.Session().Login(ctx, testutil.FakeUsername, testutil.FakePassword, ""); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if c.Cookies().Value() != server.AccessToken() {
		t.Fatalf("cookie = %q, want %q", c.Cookies().Value(), server.AccessToken())
	}

	server.Handle(http.MethodGet, "/tickets", func(w http.ResponseWriter, r *http.Request) {
		testutil.WriteEnvelope(w, http.StatusOK, 0, "success", nil)
	})
	server.Expire()
	if _, err := c.Pipeline().Get(ctx, "/api/v1/tickets", nil); err != nil {
		t.Fatalf("Get after expiry failed: %v", err)
	}
	if _, err := c.Session().Login(ctx, testutil.FakeUsername, testutil.FakePassword, ""); err != nil {
		t.Fatalf("second Login failed: %v", err)
	}

	for _, path := range []string{"/api/v1/login", "/api/v1/refresh-token"} {
		reqs := server.RequestsTo(path)
		if len(reqs) == 0 {
			t.Fatalf("no requests to %s", path)
		}
		for i, r := range reqs {
			if r.Cookie != "" {
				t.Errorf("%s request %d Cookie = %q, want none", path, i, r.Cookie)
			}
			if r.Authorization != "" {
				t.Errorf("%s request %d Authorization = %q, want none", path, i, r.Authorization)
			}
		}
	}
}

func TestClient_WithConfigAndTracing(t *testing.T) {
	server := testutil.NewITSMServer(t)
	cfg := &config.Config{
		API: config.APIConfig{
			BaseURL:     server.URL,
			Timeout:     5 * time.Second,
			RefreshPath: "/api/v1/refresh-token",
			LoginPath:   "/api/v1/login",
		},
		Storage: config.StorageConfig{Type: "memory"},
		Cookie:  config.CookieConfig{Name: "itsm-auth", MaxAge: time.Minute},
	}

	var spans bytes.Buffer
	c, err := New(
		WithConfig(cfg),
		WithHTTPClient(server.Client()),
		WithTracing("itsm-runtime-test", &spans),
		WithLogger(quietLogger()),
	)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if _, err := c.Session().Login(context.Background(), testutil.FakeUsername, testutil.FakePassword, ""); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if !strings.Contains(spans.String(), "POST /api/v1/login") {
		t.Errorf("login span not exported:\n%s", spans.String())
	}
}

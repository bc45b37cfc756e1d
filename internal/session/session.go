// Package session implements login, logout and tenant switching on top of
// the request pipeline.
package session

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/tjfontaine/itsm-client/internal/apierr"
	"github.com/tjfontaine/itsm-client/internal/core/domain"
	"github.com/tjfontaine/itsm-client/internal/core/ports"
	"github.com/tjfontaine/itsm-client/internal/pipeline"
)

// DefaultLoginPath is the login endpoint of the ITSM API.
const DefaultLoginPath = "/api/v1/login"

// User is the account returned by a successful login.
type User struct {
	ID          int    `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email,omitempty"`
	Role        string `json:"role,omitempty"`
}

// Tenant identifies the tenant a session is scoped to.
type Tenant struct {
	ID   int    `json:"id"`
	Code string `json:"code"`
	Name string `json:"name,omitempty"`
}

// LoginResult is the data block of the login response.
type LoginResult struct {
	AccessToken  string  `json:"access_token"`
	RefreshToken string  `json:"refresh_token"`
	User         User    `json:"user"`
	Tenant       *Tenant `json:"tenant,omitempty"`
}

type loginRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	TenantCode string `json:"tenant_code,omitempty"`
}

// Option configures a Manager.
type Option func(*Manager)

// WithLoginPath overrides the login endpoint.
func WithLoginPath(path string) Option {
	return func(m *Manager) {
		if path != "" {
			m.loginPath = path
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithLogoutHook registers a callback fired after Logout clears the session.
func WithLogoutHook(fn ports.SessionExpiredFunc) Option {
	return func(m *Manager) {
		m.onLogout = fn
	}
}

// Manager owns the session lifecycle.
type Manager struct {
	client    *pipeline.Client
	store     ports.CredentialStore
	loginPath string
	logger    *slog.Logger
	onLogout  ports.SessionExpiredFunc
}

// New creates a session manager.
func New(client *pipeline.Client, store ports.CredentialStore, opts ...Option) *Manager {
	m := &Manager{
		client:    client,
		store:     store,
		loginPath: DefaultLoginPath,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Login authenticates against the ITSM API and stores the issued tokens and
// tenant in one update.
func (m *Manager) Login(ctx context.Context, username, password, tenantCode string) (*LoginResult, error) {
	result, err := pipeline.Call[LoginResult](ctx, m.client, &domain.Request{
		Method:    http.MethodPost,
		Path:      m.loginPath,
		Body:      loginRequest{Username: username, Password: password, TenantCode: tenantCode},
		Anonymous: true,
	})
	if err != nil {
		return nil, err
	}
	if result.AccessToken == "" {
		return nil, apierr.ErrParse("login response carries no access token")
	}

	creds := domain.Credentials{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
	}
	if result.Tenant != nil {
		creds.TenantID = result.Tenant.ID
		creds.TenantCode = result.Tenant.Code
	}
	m.store.SetSession(creds)

	m.logger.Info("logged in",
		slog.String("username", result.User.Username),
		slog.String("tenant_code", creds.TenantCode),
	)
	return &result, nil
}

// Logout clears the credentials from memory and every mirror.
func (m *Manager) Logout() {
	m.store.Clear()
	m.logger.Info("logged out")
	if m.onLogout != nil {
		m.onLogout("logout")
	}
}

// SwitchTenant scopes subsequent requests to another tenant.
func (m *Manager) SwitchTenant(id int, code string) {
	m.store.SetTenant(id, code)
	m.logger.Info("tenant switched", slog.Int("tenant_id", id), slog.String("tenant_code", code))
}

// Current returns the stored credentials.
func (m *Manager) Current() domain.Credentials {
	return m.store.Get()
}

// Authenticated reports whether an access token is held.
func (m *Manager) Authenticated() bool {
	return m.store.Get().HasAccessToken()
}

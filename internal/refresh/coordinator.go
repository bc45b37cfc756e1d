// Package refresh renews the access token when the server rejects it.
//
// Refresh tokens are single-use on the ITSM backend, so concurrent 401s must
// share one exchange. Coordinator runs at most one exchange at a time and
// hands its outcome to every caller waiting on it.
package refresh

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tjfontaine/itsm-client/internal/core/domain"
	"github.com/tjfontaine/itsm-client/internal/core/ports"
	"github.com/tjfontaine/itsm-client/internal/transport"
)

const (
	// DefaultPath is the token refresh endpoint.
	DefaultPath = "/api/v1/refresh-token"

	// DefaultTimeout bounds a single refresh exchange.
	DefaultTimeout = 15 * time.Second

	flightKey = "refresh"
)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithPath overrides the refresh endpoint path.
func WithPath(path string) Option {
	return func(c *Coordinator) {
		if path != "" {
			c.path = path
		}
	}
}

// WithTimeout overrides the exchange timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithTransport sets the transport used for the exchange.
func WithTransport(t transport.Transport) Option {
	return func(c *Coordinator) {
		c.transport = t
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithSessionExpired registers the callback fired when renewal fails.
func WithSessionExpired(fn ports.SessionExpiredFunc) Option {
	return func(c *Coordinator) {
		c.onExpired = fn
	}
}

// Coordinator performs single-flight token renewal.
type Coordinator struct {
	baseURL   string
	path      string
	timeout   time.Duration
	store     ports.CredentialStore
	transport transport.Transport
	logger    *slog.Logger
	onExpired ports.SessionExpiredFunc

	group    singleflight.Group
	attempts atomic.Int64
}

// New creates a coordinator renewing credentials held by store against baseURL.
func New(baseURL string, store ports.CredentialStore, opts ...Option) *Coordinator {
	c := &Coordinator{
		baseURL: baseURL,
		path:    DefaultPath,
		timeout: DefaultTimeout,
		store:   store,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.transport == nil {
		c.transport = transport.NewJSON(nil)
	}
	return c
}

// EnsureFreshToken makes sure the access token that produced a 401
// (staleToken) has been replaced. It returns true when a newer token is
// available, either because another caller already renewed it or because
// the shared exchange succeeded. On false the credentials have been cleared
// and the session-expired callback has fired, unless ctx ended first.
func (c *Coordinator) EnsureFreshToken(ctx context.Context, staleToken string) bool {
	if c.renewedSince(staleToken) {
		return true
	}

	ch := c.group.DoChan(flightKey, func() (any, error) {
		// A flight that settled between the check above and here has
		// already replaced the token.
		if c.renewedSince(staleToken) {
			return true, nil
		}
		// Waiters share this exchange, so one caller's cancellation must
		// not abort it for the rest.
		return c.exchange(context.WithoutCancel(ctx)), nil
	})

	select {
	case res := <-ch:
		ok, _ := res.Val.(bool)
		return ok
	case <-ctx.Done():
		return false
	}
}

// Attempts returns how many refresh exchanges reached the network.
func (c *Coordinator) Attempts() int64 {
	return c.attempts.Load()
}

func (c *Coordinator) renewedSince(staleToken string) bool {
	current := c.store.Get().AccessToken
	return current != "" && current != staleToken
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

func (c *Coordinator) exchange(ctx context.Context) bool {
	creds := c.store.Get()
	if !creds.HasRefreshToken() {
		c.expire("no refresh token")
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.attempts.Add(1)
	tokens, err := c.redeem(ctx, creds.RefreshToken)
	if err != nil {
		c.logger.Error("token refresh failed", slog.String("error", err.Error()))
		c.expire("refresh rejected")
		return false
	}

	c.store.SetAccessToken(tokens.AccessToken)
	if tokens.RefreshToken != "" {
		c.store.SetRefreshToken(tokens.RefreshToken)
	}
	c.logger.Info("access token refreshed")
	return true
}

func (c *Coordinator) redeem(ctx context.Context, refreshToken string) (*refreshResponse, error) {
	body, err := json.Marshal(refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req := &domain.Request{Method: http.MethodPost, Path: c.path, Anonymous: true}
	raw, err := c.transport.Send(ctx, &transport.Call{
		Request: req,
		URL:     req.URL(c.baseURL),
		Header:  http.Header{},
		Body:    body,
	})
	if err != nil {
		return nil, err
	}
	if raw.StatusCode < 200 || raw.StatusCode > 299 {
		return nil, fmt.Errorf("refresh endpoint returned status %d", raw.StatusCode)
	}

	var env domain.Envelope
	if err := json.Unmarshal(raw.Body, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if !env.OK() {
		return nil, fmt.Errorf("refresh rejected with code %d: %s", env.Code, env.Message)
	}

	var tokens refreshResponse
	if !env.HasData() {
		return nil, fmt.Errorf("refresh response carries no data")
	}
	if err := json.Unmarshal(env.Data, &tokens); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tokens: %w", err)
	}
	if tokens.AccessToken == "" {
		return nil, fmt.Errorf("refresh response carries no access token")
	}
	return &tokens, nil
}

func (c *Coordinator) expire(reason string) {
	c.store.Clear()
	c.logger.Warn("session expired", slog.String("reason", reason))
	if c.onExpired != nil {
		c.onExpired(reason)
	}
}

// Package runtime assembles the ITSM client stack: durable credential
// storage, the auth cookie mirror, instrumented HTTP transport, the refresh
// coordinator, the request pipeline and the session manager.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tjfontaine/itsm-client/internal/cookies"
	"github.com/tjfontaine/itsm-client/internal/core/ports"
	"github.com/tjfontaine/itsm-client/internal/credentials"
	"github.com/tjfontaine/itsm-client/internal/pipeline"
	"github.com/tjfontaine/itsm-client/internal/refresh"
	"github.com/tjfontaine/itsm-client/internal/session"
	"github.com/tjfontaine/itsm-client/internal/telemetry"
	"github.com/tjfontaine/itsm-client/internal/transport"
)

// Client is the main entry point for talking to an ITSM API.
type Client struct {
	// Settings (injected via options)
	baseURL        string
	timeout        time.Duration
	loginPath      string
	refreshPath    string
	refreshTimeout time.Duration
	refreshSkew    time.Duration
	cookieName     string
	cookieMaxAge   time.Duration
	onExpired      ports.SessionExpiredFunc
	tracing        bool
	serviceName    string
	traceWriter    io.Writer
	logger         *slog.Logger

	// Dependencies
	kv         ports.KVStore
	httpClient *http.Client

	// Assembled stack
	cookies        *cookies.JarMirror
	store          *credentials.Store
	refresher      *refresh.Coordinator
	pipeline       *pipeline.Client
	session        *session.Manager
	shutdownTracer func(context.Context) error
}

// New creates a Client with the given options. Storage defaults to memory.
func New(opts ...Option) (*Client, error) {
	c := &Client{
		timeout: pipeline.DefaultTimeout,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			c.closeKV()
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if c.baseURL == "" {
		c.closeKV()
		return nil, fmt.Errorf("base URL required (use WithBaseURL or WithConfig)")
	}
	if c.kv == nil {
		c.logger.Info("no storage specified, credentials will not survive restarts")
		if err := WithMemoryStorage()(c); err != nil {
			return nil, err
		}
	}

	if err := c.assemble(); err != nil {
		c.closeKV()
		return nil, err
	}
	return c, nil
}

func (c *Client) assemble() error {
	httpClient := &http.Client{}
	if c.httpClient != nil {
		*httpClient = *c.httpClient
	}

	var cookieOpts []cookies.Option
	if c.cookieName != "" {
		cookieOpts = append(cookieOpts, cookies.WithName(c.cookieName))
	}
	if c.cookieMaxAge > 0 {
		cookieOpts = append(cookieOpts, cookies.WithMaxAge(c.cookieMaxAge))
	}
	// The mirror keeps its own jar. The HTTP client never sends the auth
	// cookie, so anonymous calls such as login and refresh stay bare.
	mirror, err := cookies.NewJarMirror(nil, c.baseURL, cookieOpts...)
	if err != nil {
		return fmt.Errorf("create cookie mirror: %w", err)
	}
	c.cookies = mirror

	rt := transport.LoggingRoundTripper(c.logger, httpClient.Transport)
	if c.tracing {
		name := c.serviceName
		if name == "" {
			name = "itsm-client"
		}
		shutdown, err := telemetry.InitTracer(name, c.traceWriter, c.logger)
		if err != nil {
			return fmt.Errorf("init tracer: %w", err)
		}
		c.shutdownTracer = shutdown
		rt = telemetry.Transport(rt)
	}
	httpClient.Transport = rt

	c.store = credentials.New(c.kv,
		credentials.WithLogger(c.logger),
		credentials.WithCookieMirror(mirror),
	)
	if err := c.store.Load(); err != nil {
		c.logger.Warn("failed to restore session", slog.String("error", err.Error()))
	}

	transports := transport.NewSet(httpClient)

	refreshOpts := []refresh.Option{
		refresh.WithTransport(transports.JSON),
		refresh.WithLogger(c.logger),
		refresh.WithSessionExpired(c.onExpired),
	}
	if c.refreshPath != "" {
		refreshOpts = append(refreshOpts, refresh.WithPath(c.refreshPath))
	}
	if c.refreshTimeout > 0 {
		refreshOpts = append(refreshOpts, refresh.WithTimeout(c.refreshTimeout))
	}
	c.refresher = refresh.New(c.baseURL, c.store, refreshOpts...)

	c.pipeline, err = pipeline.New(c.baseURL, c.store,
		pipeline.WithTransports(transports),
		pipeline.WithRefresher(c.refresher),
		pipeline.WithSessionExpired(c.onExpired),
		pipeline.WithTimeout(c.timeout),
		pipeline.WithProactiveRefresh(c.refreshSkew),
		pipeline.WithLogger(c.logger),
	)
	if err != nil {
		return fmt.Errorf("create pipeline: %w", err)
	}

	c.session = session.New(c.pipeline, c.store,
		session.WithLoginPath(c.loginPath),
		session.WithLogger(c.logger),
		session.WithLogoutHook(c.onExpired),
	)
	return nil
}

// Pipeline returns the request pipeline.
func (c *Client) Pipeline() *pipeline.Client {
	return c.pipeline
}

// Session returns the session manager.
func (c *Client) Session() *session.Manager {
	return c.session
}

// Credentials returns the credential store.
func (c *Client) Credentials() *credentials.Store {
	return c.store
}

// Cookies returns the auth cookie mirror.
func (c *Client) Cookies() *cookies.JarMirror {
	return c.cookies
}

// RefreshAttempts returns how many token refresh exchanges reached the network.
func (c *Client) RefreshAttempts() int64 {
	return c.refresher.Attempts()
}

// Close flushes traces and closes the durable store.
func (c *Client) Close(ctx context.Context) error {
	var errs []error
	if c.shutdownTracer != nil {
		if err := c.shutdownTracer(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer: %w", err))
		}
	}
	if err := c.kv.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close storage: %w", err))
	}
	return errors.Join(errs...)
}

func (c *Client) setKV(kv ports.KVStore) {
	c.closeKV()
	c.kv = kv
}

func (c *Client) closeKV() {
	if c.kv != nil {
		_ = c.kv.Close()
		c.kv = nil
	}
}

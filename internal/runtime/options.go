package runtime

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tjfontaine/itsm-client/internal/config"
	"github.com/tjfontaine/itsm-client/internal/core/ports"
	"github.com/tjfontaine/itsm-client/internal/storage/memory"
	"github.com/tjfontaine/itsm-client/internal/storage/sqlite"
)

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithConfig applies a loaded configuration: API endpoints and timeouts,
// cookie settings, tracing and the storage backend.
func WithConfig(cfg *config.Config) Option {
	return func(c *Client) error {
		if cfg == nil {
			return fmt.Errorf("nil config")
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		c.baseURL = cfg.API.BaseURL
		c.timeout = cfg.API.Timeout
		c.loginPath = cfg.API.LoginPath
		c.refreshPath = cfg.API.RefreshPath
		c.refreshTimeout = cfg.API.RefreshTimeout
		c.refreshSkew = cfg.API.RefreshSkew
		c.cookieName = cfg.Cookie.Name
		c.cookieMaxAge = cfg.Cookie.MaxAge
		if cfg.Telemetry.Enabled {
			c.tracing = true
			c.serviceName = cfg.Telemetry.ServiceName
		}

		switch cfg.Storage.Type {
		case "sqlite":
			return WithSQLite(cfg.Storage.SQLite.Path)(c)
		default:
			return WithMemoryStorage()(c)
		}
	}
}

// WithBaseURL sets the API origin.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) error {
		c.baseURL = baseURL
		return nil
	}
}

// WithSQLite persists credentials in a SQLite database so sessions survive
// restarts.
func WithSQLite(path string) Option {
	return func(c *Client) error {
		store, err := sqlite.New(path)
		if err != nil {
			return fmt.Errorf("create sqlite storage: %w", err)
		}
		c.setKV(store)
		return nil
	}
}

// WithMemoryStorage keeps credentials in process memory only.
func WithMemoryStorage() Option {
	return func(c *Client) error {
		c.setKV(memory.New())
		return nil
	}
}

// WithKVStore sets a custom durable store.
func WithKVStore(kv ports.KVStore) Option {
	return func(c *Client) error {
		c.setKV(kv)
		return nil
	}
}

// WithHTTPClient sets the HTTP client whose transport carries every call.
// Its cookie jar, if any, is reused for the auth cookie.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = client
		return nil
	}
}

// WithTimeout sets the default per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive")
		}
		c.timeout = d
		return nil
	}
}

// WithRefreshSkew renews JWT access tokens this close to expiry before sending.
func WithRefreshSkew(d time.Duration) Option {
	return func(c *Client) error {
		c.refreshSkew = d
		return nil
	}
}

// WithSessionExpired registers the callback fired when the session ends,
// either because renewal failed or on logout.
func WithSessionExpired(fn ports.SessionExpiredFunc) Option {
	return func(c *Client) error {
		c.onExpired = fn
		return nil
	}
}

// WithTracing enables OpenTelemetry client spans exported to w (stdout when nil).
func WithTracing(serviceName string, w io.Writer) Option {
	return func(c *Client) error {
		c.tracing = true
		c.serviceName = serviceName
		c.traceWriter = w
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		c.logger = logger
		return nil
	}
}

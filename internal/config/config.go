package config

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultFile is read when Load is called without an explicit path.
const DefaultFile = "itsm.yaml"

// EnvPrefix marks environment variables that override file settings.
// Nested keys are separated by a double underscore: ITSM_API__BASE_URL.
const EnvPrefix = "ITSM_"

type Config struct {
	API       APIConfig       `koanf:"api"`
	Storage   StorageConfig   `koanf:"storage"`
	Cookie    CookieConfig    `koanf:"cookie"`
	Log       LogConfig       `koanf:"log"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Auth      AuthConfig      `koanf:"auth"`
}

type APIConfig struct {
	BaseURL        string        `koanf:"base_url"`
	Timeout        time.Duration `koanf:"timeout"`
	LoginPath      string        `koanf:"login_path"`
	RefreshPath    string        `koanf:"refresh_path"`
	RefreshTimeout time.Duration `koanf:"refresh_timeout"`
	// RefreshSkew renews JWT access tokens this close to expiry before
	// sending. Zero disables proactive refresh.
	RefreshSkew time.Duration `koanf:"refresh_skew"`
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // memory, sqlite
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type CookieConfig struct {
	Name   string        `koanf:"name"`
	MaxAge time.Duration `koanf:"max_age"`
}

type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // text, json
}

type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

// AuthConfig holds optional login defaults for the CLI. Values may reference
// environment variables as ${VAR}.
type AuthConfig struct {
	Username   string `koanf:"username"`
	Password   string `koanf:"password"`
	TenantCode string `koanf:"tenant_code"`
}

var defaults = map[string]any{
	"api.timeout":            "30s",
	"api.login_path":         "/api/v1/login",
	"api.refresh_path":       "/api/v1/refresh-token",
	"api.refresh_timeout":    "15s",
	"api.refresh_skew":       "0s",
	"storage.type":           "memory",
	"storage.sqlite.path":    "itsm-session.db",
	"cookie.name":            "auth-token",
	"cookie.max_age":         "15m",
	"log.level":              "info",
	"log.format":             "text",
	"telemetry.service_name": "itsm-client",
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads path (or DefaultFile when empty), then applies ITSM_ environment
// overrides and defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path == "" {
		path = DefaultFile
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		// File not found is OK, we'll use env vars
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, err
	}

	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg.API.BaseURL = substituteEnvVars(cfg.API.BaseURL)
	cfg.Auth.Username = substituteEnvVars(cfg.Auth.Username)
	cfg.Auth.Password = substituteEnvVars(cfg.Auth.Password)
	cfg.Auth.TenantCode = substituteEnvVars(cfg.Auth.TenantCode)

	return &cfg, nil
}

// Validate checks the settings a client cannot start without.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive")
	}
	switch c.Storage.Type {
	case "memory":
	case "sqlite":
		if c.Storage.SQLite.Path == "" {
			return fmt.Errorf("storage.sqlite.path is required for sqlite storage")
		}
	default:
		return fmt.Errorf("unknown storage.type %q", c.Storage.Type)
	}
	return nil
}

// LogLevel maps log.level to a slog level, defaulting to info.
func (c *Config) LogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

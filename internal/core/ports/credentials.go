package ports

import (
	"time"

	"github.com/tjfontaine/itsm-client/internal/core/domain"
)

// KVStore is the durable key/value persistence behind the credential store.
// Implementations: in-memory, SQLite.
type KVStore interface {
	// Get returns the stored value and whether the key exists.
	Get(key string) (string, bool, error)

	// Set stores value under key, replacing any previous value.
	Set(key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error

	// Close releases the underlying storage.
	Close() error
}

// CookieMirror keeps a short-lived cookie copy of the access token for
// server-rendered routes that guard on it.
type CookieMirror interface {
	SetAuthCookie(token string, expires time.Time) error
	ClearAuthCookie() error
}

// CredentialStore owns the session credentials. All mutations are atomic and
// Get always reflects the latest one.
type CredentialStore interface {
	Get() domain.Credentials
	SetAccessToken(token string)
	SetRefreshToken(token string)
	SetTenant(id int, code string)
	SetSession(creds domain.Credentials)
	Clear()
}

// SessionExpiredFunc is invoked when the session can no longer be renewed.
// The UI layer decides how to react (typically a redirect to login).
type SessionExpiredFunc func(reason string)

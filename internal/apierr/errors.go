// Package apierr provides the closed error taxonomy returned by the API client.
//
// An APIError is created at the first point a failure is detected and is
// propagated unchanged from then on. Normalize returns an existing *APIError
// as-is rather than wrapping it again.
package apierr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind represents the category of an API failure.
type Kind string

const (
	// KindNetwork indicates a transport failure or a non-2xx response without
	// a usable envelope.
	KindNetwork Kind = "network"

	// KindTimeout indicates the request deadline fired before a response arrived.
	KindTimeout Kind = "timeout"

	// KindAuth indicates a 401 that could not be recovered by a token refresh.
	KindAuth Kind = "auth"

	// KindBusiness indicates an envelope with a non-zero code.
	KindBusiness Kind = "business"

	// KindParse indicates a malformed envelope on an otherwise successful response.
	KindParse Kind = "parse"
)

// APIError is the single error type surfaced to callers of the client.
type APIError struct {
	// Kind is the failure category.
	Kind Kind

	// HTTPStatus is the response status, zero when no response was received.
	HTTPStatus int

	// BusinessCode is the envelope code for KindBusiness errors.
	BusinessCode int

	// Message is the human-readable failure description.
	Message string

	// RequestID is the server's X-Request-Id, used as a diagnostic suffix.
	RequestID string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface. The request id, when known, is
// appended as " [RID: <id>]".
func (e *APIError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.BusinessCode != 0 {
		fmt.Fprintf(&b, " (%d)", e.BusinessCode)
	} else if e.HTTPStatus != 0 {
		fmt.Fprintf(&b, " (status %d)", e.HTTPStatus)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.RequestID != "" {
		fmt.Fprintf(&b, " [RID: %s]", e.RequestID)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *APIError) Unwrap() error {
	return e.Err
}

// New creates a new API error.
func New(kind Kind, message string) *APIError {
	return &APIError{Kind: kind, Message: message}
}

// WithStatus sets the HTTP status.
func (e *APIError) WithStatus(status int) *APIError {
	e.HTTPStatus = status
	return e
}

// WithBusinessCode sets the envelope code.
func (e *APIError) WithBusinessCode(code int) *APIError {
	e.BusinessCode = code
	return e
}

// WithRequestID sets the diagnostic request id.
func (e *APIError) WithRequestID(id string) *APIError {
	e.RequestID = id
	return e
}

// WithCause records the underlying error.
func (e *APIError) WithCause(err error) *APIError {
	e.Err = err
	return e
}

// Convenience constructors

// ErrNetwork creates a network error.
func ErrNetwork(message string) *APIError {
	return New(KindNetwork, message)
}

// ErrHTTPStatus creates a network error for an unexpected HTTP status.
func ErrHTTPStatus(status int) *APIError {
	return New(KindNetwork, fmt.Sprintf("HTTP error! status: %d", status)).WithStatus(status)
}

// ErrTimeout creates a timeout error.
func ErrTimeout(message string) *APIError {
	return New(KindTimeout, message)
}

// ErrAuth creates an authentication error.
func ErrAuth(message string) *APIError {
	return New(KindAuth, message).WithStatus(http.StatusUnauthorized)
}

// ErrBusiness creates a business error carrying the envelope code.
func ErrBusiness(code int, message string) *APIError {
	if message == "" {
		message = "Request failed"
	}
	return New(KindBusiness, message).WithBusinessCode(code)
}

// ErrParse creates a parse error.
func ErrParse(message string) *APIError {
	return New(KindParse, message)
}

// Normalize maps an arbitrary failure from the transport layer to an
// *APIError. An existing *APIError anywhere in the chain is returned
// unchanged. A context deadline maps to KindTimeout; everything else,
// including caller cancellation, maps to KindNetwork.
func Normalize(err error) *APIError {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout("request timed out, please retry later").WithCause(err)
	}
	if errors.Is(err, context.Canceled) {
		return ErrNetwork("request canceled").WithCause(err)
	}
	return ErrNetwork("unable to reach the server").WithCause(err)
}

// KindOf returns the kind of err, or "" when err is not an APIError.
func KindOf(err error) Kind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

// IsKind reports whether err is an APIError of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsAuth reports whether err is an authentication failure.
func IsAuth(err error) bool { return IsKind(err, KindAuth) }

// IsTimeout reports whether err is a timeout.
func IsTimeout(err error) bool { return IsKind(err, KindTimeout) }

// IsBusiness reports whether err is a business failure.
func IsBusiness(err error) bool { return IsKind(err, KindBusiness) }

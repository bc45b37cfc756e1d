package domain

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ResponseKind selects how a response body is interpreted.
type ResponseKind string

const (
	// ResponseJSON parses the body as an Envelope and transcodes its data.
	ResponseJSON ResponseKind = "json"

	// ResponseBlob returns the raw body bytes untouched.
	ResponseBlob ResponseKind = "blob"
)

// Progress reports upload progress in bytes.
type Progress struct {
	Loaded int64
	Total  int64
}

// Percent returns the rounded completion percentage, or 0 when the total is unknown.
func (p Progress) Percent() int {
	if p.Total <= 0 {
		return 0
	}
	return int(math.Round(float64(p.Loaded) * 100 / float64(p.Total)))
}

// ProgressFunc receives upload progress notifications.
type ProgressFunc func(Progress)

// Request describes a single API call. A Request must not be modified after
// it has been handed to the pipeline; retries resend the same descriptor.
type Request struct {
	Method string
	Path   string
	Query  url.Values

	// Body is either a JSON-compatible value, a typed DTO, or an *Upload.
	Body any

	// Headers override the computed auth and tenant headers.
	Headers http.Header

	// Timeout overrides the client default when positive.
	Timeout time.Duration

	ResponseKind     ResponseKind
	OnUploadProgress ProgressFunc

	// Anonymous requests carry no credentials and never trigger a token
	// refresh (login, refresh itself).
	Anonymous bool
}

// Kind returns the response kind, defaulting to JSON.
func (r *Request) Kind() ResponseKind {
	if r.ResponseKind == "" {
		return ResponseJSON
	}
	return r.ResponseKind
}

// Upload returns the multipart body if the request carries one.
func (r *Request) Upload() (*Upload, bool) {
	switch b := r.Body.(type) {
	case *Upload:
		return b, b != nil
	case Upload:
		return &b, true
	}
	return nil, false
}

// WantsProgress reports whether the caller asked for byte-level upload progress.
func (r *Request) WantsProgress() bool {
	return r.OnUploadProgress != nil
}

// URL joins the request path and query onto baseURL.
func (r *Request) URL(baseURL string) string {
	u := strings.TrimSuffix(baseURL, "/") + r.Path
	if len(r.Query) == 0 {
		return u
	}
	sep := "?"
	if strings.Contains(r.Path, "?") {
		sep = "&"
	}
	return u + sep + r.Query.Encode()
}

// String renders the request for logs.
func (r *Request) String() string {
	return fmt.Sprintf("%s %s", r.Method, r.Path)
}

// File is a single part of a multipart upload.
type File struct {
	Field       string
	Name        string
	ContentType string
	Data        []byte
}

// Upload is a multipart form body. Its presence on a Request selects the
// multipart transport.
type Upload struct {
	Files  []File
	Fields map[string]string
}

// NewFileUpload builds a single-file upload under the "file" field.
func NewFileUpload(name string, r io.Reader) (*Upload, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload %q: %w", name, err)
	}
	return &Upload{Files: []File{{Field: "file", Name: name, Data: data}}}, nil
}

// Response is the result of a successful call.
type Response struct {
	StatusCode int
	Header     http.Header
	RequestID  string
	Message    string

	// Data is the envelope payload with keys in application case.
	Data any

	// Raw is the envelope payload exactly as it arrived on the wire.
	Raw []byte

	// Blob holds the response body for ResponseBlob requests.
	Blob []byte
}

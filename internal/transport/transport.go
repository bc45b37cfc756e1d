// Package transport implements the interchangeable senders used by the
// request pipeline: JSON, multipart upload with progress, and blob download.
//
// Strategies only build and send HTTP requests. They never interpret status
// codes or envelopes; that is the pipeline's job.
package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tjfontaine/itsm-client/internal/core/domain"
)

// Call is one attempt at sending a request.
type Call struct {
	// Request is the caller's descriptor. Strategies must not modify it.
	Request *domain.Request

	// URL is the absolute request URL.
	URL string

	// Header holds the computed auth, tenant and caller headers.
	Header http.Header

	// Body is the outbound JSON payload, already transcoded to wire case.
	// Nil means no body. Multipart strategies read the upload from Request.
	Body []byte
}

// RawResponse is an unparsed HTTP response.
type RawResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// RequestID returns the server's X-Request-Id header, if any.
func (r *RawResponse) RequestID() string {
	return r.Header.Get("X-Request-Id")
}

// Transport sends a Call and returns the raw response.
type Transport interface {
	// Name identifies the strategy in logs.
	Name() string

	// SupportsProgress reports whether the strategy can observe upload bytes.
	SupportsProgress() bool

	// Send performs the HTTP exchange. Cancelling ctx aborts it.
	Send(ctx context.Context, call *Call) (*RawResponse, error)
}

// do executes req on client and reads the whole body.
func do(client *http.Client, req *http.Request) (*RawResponse, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &RawResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

func newRequest(ctx context.Context, call *Call, body io.Reader) (*http.Request, error) {
	method := strings.ToUpper(call.Request.Method)
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, call.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range call.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return req, nil
}

// Set picks a strategy for each request by capability.
type Set struct {
	JSON      Transport
	Blob      Transport
	Multipart []Transport
}

// NewSet builds the default strategies around one HTTP client.
func NewSet(client *http.Client) *Set {
	return &Set{
		JSON:      NewJSON(client),
		Blob:      NewBlob(client),
		Multipart: []Transport{NewMultipart(client)},
	}
}

// Select returns the strategy for req. Upload bodies need a strategy that
// supports progress. Blob responses use the blob strategy and everything else
// goes over JSON. A progress callback on a non-upload body is ignored.
func (s *Set) Select(req *domain.Request) (Transport, error) {
	if _, isUpload := req.Upload(); isUpload {
		for _, t := range s.Multipart {
			if t.SupportsProgress() {
				return t, nil
			}
		}
		return nil, fmt.Errorf("no transport supports upload progress for %s", req)
	}
	if req.Kind() == domain.ResponseBlob {
		return s.Blob, nil
	}
	return s.JSON, nil
}

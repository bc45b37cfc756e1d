package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
)

// Blob builds requests like JSON but returns the body for the caller to use
// as-is. Used for downloads and exports.
type Blob struct {
	client *http.Client
}

// NewBlob creates a blob transport. A nil client uses http.DefaultClient.
func NewBlob(client *http.Client) *Blob {
	if client == nil {
		client = http.DefaultClient
	}
	return &Blob{client: client}
}

func (t *Blob) Name() string { return "blob" }

func (t *Blob) SupportsProgress() bool { return false }

func (t *Blob) Send(ctx context.Context, call *Call) (*RawResponse, error) {
	var body io.Reader
	if call.Body != nil {
		body = bytes.NewReader(call.Body)
	}
	req, err := newRequest(ctx, call, body)
	if err != nil {
		return nil, err
	}
	if call.Body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "*/*")
	}
	return do(t.client, req)
}

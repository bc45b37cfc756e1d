package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
)

// JSON sends JSON bodies and expects an enveloped JSON response.
type JSON struct {
	client *http.Client
}

// NewJSON creates a JSON transport. A nil client uses http.DefaultClient.
func NewJSON(client *http.Client) *JSON {
	if client == nil {
		client = http.DefaultClient
	}
	return &JSON{client: client}
}

func (t *JSON) Name() string { return "json" }

func (t *JSON) SupportsProgress() bool { return false }

func (t *JSON) Send(ctx context.Context, call *Call) (*RawResponse, error) {
	var body io.Reader
	if call.Body != nil {
		body = bytes.NewReader(call.Body)
	}
	req, err := newRequest(ctx, call, body)
	if err != nil {
		return nil, err
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	return do(t.client, req)
}

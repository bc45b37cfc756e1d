package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/tjfontaine/itsm-client/internal/apierr"
	"github.com/tjfontaine/itsm-client/internal/core/domain"
	"github.com/tjfontaine/itsm-client/internal/core/ports"
	"github.com/tjfontaine/itsm-client/internal/credentials"
	"github.com/tjfontaine/itsm-client/internal/refresh"
	"github.com/tjfontaine/itsm-client/internal/transcode"
	"github.com/tjfontaine/itsm-client/internal/transport"
)

// DefaultTimeout bounds each attempt when neither the request nor the client
// sets a timeout.
const DefaultTimeout = 30 * time.Second

// Refresher renews the access token after a 401.
type Refresher interface {
	EnsureFreshToken(ctx context.Context, staleToken string) bool
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the default per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithTransports sets the transport strategies.
func WithTransports(set *transport.Set) Option {
	return func(c *Client) {
		c.transports = set
	}
}

// WithHTTPClient builds the default transport strategies around client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.transports = transport.NewSet(client)
	}
}

// WithRefresher sets the token refresher. By default a refresh.Coordinator
// sharing the client's JSON transport is used.
func WithRefresher(r Refresher) Option {
	return func(c *Client) {
		c.refresher = r
	}
}

// WithSessionExpired registers the callback fired when the session ends
// because the server keeps rejecting a renewed token.
func WithSessionExpired(fn ports.SessionExpiredFunc) Option {
	return func(c *Client) {
		c.onExpired = fn
	}
}

// WithProactiveRefresh renews JWT access tokens whose exp claim falls within
// skew of now before sending. Zero disables it.
func WithProactiveRefresh(skew time.Duration) Option {
	return func(c *Client) {
		c.refreshSkew = skew
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock sets the time source used for proactive refresh.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// WithRequestIDs sets the generator for outbound X-Request-Id values.
func WithRequestIDs(fn func() string) Option {
	return func(c *Client) {
		c.newRequestID = fn
	}
}

// Client is the request pipeline.
type Client struct {
	baseURL      string
	store        ports.CredentialStore
	transports   *transport.Set
	refresher    Refresher
	onExpired    ports.SessionExpiredFunc
	timeout      time.Duration
	refreshSkew  time.Duration
	logger       *slog.Logger
	now          func() time.Time
	newRequestID func() string
}

// New creates a pipeline sending requests to baseURL with credentials from store.
func New(baseURL string, store ports.CredentialStore, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL required")
	}
	if store == nil {
		return nil, fmt.Errorf("credential store required")
	}

	c := &Client{
		baseURL:      baseURL,
		store:        store,
		timeout:      DefaultTimeout,
		logger:       slog.Default(),
		now:          time.Now,
		newRequestID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.transports == nil {
		c.transports = transport.NewSet(nil)
	}
	if c.refresher == nil {
		c.refresher = refresh.New(baseURL, store,
			refresh.WithTransport(c.transports.JSON),
			refresh.WithLogger(c.logger),
			refresh.WithSessionExpired(c.onExpired),
		)
	}
	return c, nil
}

// BaseURL returns the API origin requests are sent to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Do sends req and returns the decoded response. Every failure is an
// *apierr.APIError.
func (c *Client) Do(ctx context.Context, req *domain.Request) (*domain.Response, error) {
	if req == nil {
		return nil, apierr.ErrNetwork("nil request")
	}

	body, err := encodeBody(req)
	if err != nil {
		return nil, c.fail(req, apierr.ErrParse("failed to encode request body").WithCause(err))
	}

	t, err := c.transports.Select(req)
	if err != nil {
		return nil, c.fail(req, apierr.ErrNetwork(err.Error()).WithCause(err))
	}

	creds := c.store.Get()
	if c.shouldRenewEarly(req, creds) {
		if !c.refresher.EnsureFreshToken(ctx, creds.AccessToken) {
			if ctx.Err() != nil {
				return nil, c.fail(req, apierr.Normalize(ctx.Err()))
			}
			return nil, c.fail(req, apierr.ErrAuth("Authentication failed"))
		}
		creds = c.store.Get()
	}

	raw, err := c.send(ctx, t, req, creds, body)
	if err != nil {
		return nil, c.fail(req, err)
	}

	if raw.StatusCode == http.StatusUnauthorized {
		if req.Anonymous {
			return nil, c.fail(req, authError(raw))
		}
		if !c.refresher.EnsureFreshToken(ctx, creds.AccessToken) {
			if ctx.Err() != nil {
				return nil, c.fail(req, apierr.Normalize(ctx.Err()))
			}
			return nil, c.fail(req, authError(raw))
		}

		creds = c.store.Get()
		raw, err = c.send(ctx, t, req, creds, body)
		if err != nil {
			return nil, c.fail(req, err)
		}
		if raw.StatusCode == http.StatusUnauthorized {
			// The renewed token was rejected too; retrying again would loop.
			c.expire("token rejected after refresh")
			return nil, c.fail(req, authError(raw))
		}
	}

	resp, apiErr := decode(req, raw)
	if apiErr != nil {
		return nil, c.fail(req, apiErr)
	}
	return resp, nil
}

func (c *Client) shouldRenewEarly(req *domain.Request, creds domain.Credentials) bool {
	if req.Anonymous || c.refreshSkew <= 0 || !creds.HasRefreshToken() || !creds.HasAccessToken() {
		return false
	}
	return credentials.Expired(creds.AccessToken, c.now(), c.refreshSkew)
}

// send performs one attempt under the request timeout.
func (c *Client) send(ctx context.Context, t transport.Transport, req *domain.Request, creds domain.Credentials, body []byte) (*transport.RawResponse, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	call := &transport.Call{
		Request: req,
		URL:     req.URL(c.baseURL),
		Header:  c.headers(req, creds),
		Body:    body,
	}
	raw, err := t.Send(ctx, call)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, apierr.ErrTimeout(fmt.Sprintf("request timed out after %s", timeout)).WithCause(err)
		}
		return nil, apierr.Normalize(err)
	}
	return raw, nil
}

func (c *Client) headers(req *domain.Request, creds domain.Credentials) http.Header {
	h := make(http.Header)
	if !req.Anonymous && creds.AccessToken != "" {
		h.Set("Authorization", "Bearer "+creds.AccessToken)
	}
	if creds.TenantID != 0 {
		h.Set("X-Tenant-ID", strconv.Itoa(creds.TenantID))
	}
	if creds.TenantCode != "" {
		h.Set("X-Tenant-Code", creds.TenantCode)
	}
	h.Set("X-Request-Id", c.newRequestID())
	for k, vs := range req.Headers {
		h[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
	}
	return h
}

func (c *Client) expire(reason string) {
	c.store.Clear()
	c.logger.Warn("session expired", slog.String("reason", reason))
	if c.onExpired != nil {
		c.onExpired(reason)
	}
}

func (c *Client) fail(req *domain.Request, err error) error {
	apiErr := apierr.Normalize(err)
	c.logger.Warn("request failed",
		slog.String("method", req.Method),
		slog.String("path", req.Path),
		slog.String("kind", string(apiErr.Kind)),
		slog.String("error", apiErr.Error()),
	)
	return apiErr
}

func authError(raw *transport.RawResponse) *apierr.APIError {
	return apierr.ErrAuth("Authentication failed").WithRequestID(raw.RequestID())
}

// encodeBody renders the JSON body for req. Plain maps and slices are
// transcoded to wire case; typed values marshal through their json tags;
// raw bytes are sent as-is.
func encodeBody(req *domain.Request) ([]byte, error) {
	if _, ok := req.Upload(); ok {
		return nil, nil
	}
	switch b := req.Body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	case string:
		return []byte(b), nil
	}
	if transcode.IsPlain(req.Body) {
		return json.Marshal(transcode.ToWire(req.Body))
	}
	return json.Marshal(req.Body)
}

// envelope mirrors domain.Envelope with a pointer code so a missing field
// is detectable.
type envelope struct {
	Code    *int            `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decode(req *domain.Request, raw *transport.RawResponse) (*domain.Response, *apierr.APIError) {
	rid := raw.RequestID()

	// Any non-2xx status is a network failure. An envelope in the body only
	// supplies the message and business code.
	if raw.StatusCode < 200 || raw.StatusCode > 299 {
		apiErr := apierr.ErrHTTPStatus(raw.StatusCode).WithRequestID(rid)
		var env envelope
		if err := json.Unmarshal(raw.Body, &env); err == nil {
			if env.Message != "" {
				apiErr.Message = env.Message
			}
			if env.Code != nil && *env.Code != 0 {
				apiErr = apiErr.WithBusinessCode(*env.Code)
			}
		}
		return nil, apiErr
	}

	resp := &domain.Response{
		StatusCode: raw.StatusCode,
		Header:     raw.Header,
		RequestID:  rid,
	}

	if req.Kind() == domain.ResponseBlob {
		resp.Blob = raw.Body
		if resp.Blob == nil {
			resp.Blob = []byte{}
		}
		return resp, nil
	}

	if len(bytes.TrimSpace(raw.Body)) == 0 {
		if raw.StatusCode == http.StatusNoContent {
			return resp, nil
		}
		return nil, apierr.ErrParse("empty response body").WithStatus(raw.StatusCode).WithRequestID(rid)
	}

	var env envelope
	if err := json.Unmarshal(raw.Body, &env); err != nil {
		return nil, apierr.ErrParse("failed to parse response envelope").
			WithStatus(raw.StatusCode).
			WithRequestID(rid).
			WithCause(err)
	}
	if env.Code == nil {
		return nil, apierr.ErrParse("response envelope has no code").WithStatus(raw.StatusCode).WithRequestID(rid)
	}
	if *env.Code != 0 {
		return nil, apierr.ErrBusiness(*env.Code, env.Message).WithStatus(raw.StatusCode).WithRequestID(rid)
	}

	resp.Message = env.Message
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return resp, nil
	}

	dec := json.NewDecoder(bytes.NewReader(env.Data))
	dec.UseNumber()
	var data any
	if err := dec.Decode(&data); err != nil {
		return nil, apierr.ErrParse("failed to parse response data").WithRequestID(rid).WithCause(err)
	}
	resp.Raw = env.Data
	resp.Data = transcode.FromWire(data)
	return resp, nil
}

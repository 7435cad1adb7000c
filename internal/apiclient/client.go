// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package apiclient is the single gateway through which every call to the
// pea-blog content service passes. It attaches the session credential,
// unwraps the {"data": ...} response envelope and reacts to 401 responses
// by notifying its unauthorized handlers, whichever caller triggered them.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout bounds a single request, including reading the body.
	DefaultTimeout = 10 * time.Second

	// DefaultUserAgent is sent when Options.UserAgent is empty.
	DefaultUserAgent = "peablog"

	// RequestIDHeader carries a per-request uuid for correlating client and
	// service logs.
	RequestIDHeader = "X-Request-ID"
)

// CredentialSource supplies the bearer token for outgoing requests. An empty
// token means the request is sent unauthenticated.
type CredentialSource interface {
	Token() string
}

// Recorder receives per-request measurements. Implemented by
// internal/metrics.Collector.
type Recorder interface {
	RecordRequest(method string, status int, d time.Duration)
	RecordTransportFailure(method string)
	RecordSessionExpired()
}

// UnauthorizedHandler is invoked after any response with status 401.
type UnauthorizedHandler func(ctx context.Context)

// Options configures a Client.
type Options struct {
	BaseURL     string // e.g. "https://blog.example.com/api"
	Timeout     time.Duration
	HTTPClient  *http.Client // overrides Timeout when set
	Credentials CredentialSource
	Limiter     *rate.Limiter // nil disables throttling
	Metrics     Recorder
	Logger      *slog.Logger
	UserAgent   string
}

// RequestOptions are the optional parts of a call.
type RequestOptions struct {
	Query url.Values
	Body  any // JSON-encoded when non-nil
}

// Client talks to the content service. It is safe for concurrent use.
type Client struct {
	baseURL   string
	http      *http.Client
	limiter   *rate.Limiter
	metrics   Recorder
	logger    *slog.Logger
	userAgent string

	mu       sync.RWMutex
	creds    CredentialSource
	handlers map[int]UnauthorizedHandler
	nextID   int
}

// New creates a gateway for the service rooted at opts.BaseURL.
func New(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	return &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		http:      hc,
		limiter:   opts.Limiter,
		metrics:   opts.Metrics,
		logger:    logger,
		userAgent: ua,
		creds:     opts.Credentials,
		handlers:  make(map[int]UnauthorizedHandler),
	}
}

// BaseURL returns the service root the client was configured with.
func (c *Client) BaseURL() string { return c.baseURL }

// SetCredentials replaces the credential source. The session manager calls
// this when it attaches itself to the gateway.
func (c *Client) SetCredentials(src CredentialSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.creds = src
}

// OnUnauthorized registers fn to run after every 401 response. The returned
// func removes the registration.
func (c *Client) OnUnauthorized(fn UnauthorizedHandler) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.handlers[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers, id)
	}
}

// Get fetches path and decodes the envelope payload into out.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, http.MethodGet, path, RequestOptions{Query: query}, out)
}

// Post sends body as JSON and decodes the envelope payload into out.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, RequestOptions{Body: body}, out)
}

// Put sends body as JSON and decodes the envelope payload into out.
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPut, path, RequestOptions{Body: body}, out)
}

// Delete issues a DELETE, optionally with a JSON body.
func (c *Client) Delete(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodDelete, path, RequestOptions{Body: body}, out)
}

// Do performs a JSON call and unwraps the response envelope into out.
// out may be nil when the caller does not need the payload.
func (c *Client) Do(ctx context.Context, method, path string, opts RequestOptions, out any) error {
	var body io.Reader
	contentType := ""
	if opts.Body != nil {
		payload, err := json.Marshal(opts.Body)
		if err != nil {
			return fmt.Errorf("apiclient marshal %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(payload)
		contentType = "application/json"
	}

	raw, err := c.send(ctx, method, path, opts.Query, body, contentType)
	if err != nil {
		return err
	}
	return decodeEnvelope(method, path, raw, out)
}

// GetBinary fetches path and returns the raw body. Binary responses are not
// enveloped.
func (c *Client) GetBinary(ctx context.Context, path string, query url.Values) ([]byte, error) {
	return c.send(ctx, http.MethodGet, path, query, nil, "")
}

// PostMultipart uploads r as a single file field of a multipart form and
// decodes the envelope payload into out.
func (c *Client) PostMultipart(ctx context.Context, path, field, filename string, r io.Reader, out any) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, filename)
	if err != nil {
		return fmt.Errorf("apiclient multipart %s: %w", path, err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return fmt.Errorf("apiclient multipart copy %s: %w", path, err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("apiclient multipart close %s: %w", path, err)
	}

	raw, err := c.send(ctx, http.MethodPost, path, nil, &buf, mw.FormDataContentType())
	if err != nil {
		return err
	}
	return decodeEnvelope(http.MethodPost, path, raw, out)
}

// send performs the HTTP exchange and returns the body of a 2xx response.
func (c *Client) send(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, c.transportFailure(method, path, fmt.Errorf("rate limit wait: %w", err))
		}
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("apiclient request %s %s: %w", method, path, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set(RequestIDHeader, uuid.NewString())
	if token := c.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.transportFailure(method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.transportFailure(method, path, fmt.Errorf("read body: %w", err))
	}

	elapsed := time.Since(start)
	if c.metrics != nil {
		c.metrics.RecordRequest(method, resp.StatusCode, elapsed)
	}
	c.logger.Debug("api request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", elapsed.String(),
		"request_id", req.Header.Get(RequestIDHeader),
	)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return respBody, nil
	}

	remote := &RemoteError{Method: method, Path: path, Status: resp.StatusCode, Body: respBody}
	if resp.StatusCode == http.StatusUnauthorized {
		c.logger.Warn("api session expired", "method", method, "path", path)
		c.unauthorized(ctx)
		return nil, &sessionExpiredError{remote: remote}
	}

	c.logger.Warn("api error", "method", method, "path", path, "status", resp.StatusCode)
	return nil, remote
}

func (c *Client) token() string {
	c.mu.RLock()
	src := c.creds
	c.mu.RUnlock()
	if src == nil {
		return ""
	}
	return src.Token()
}

// unauthorized runs every registered handler. Handlers get a context that
// survives cancellation of the failing call so that cleanup can finish.
func (c *Client) unauthorized(ctx context.Context) {
	if c.metrics != nil {
		c.metrics.RecordSessionExpired()
	}

	c.mu.RLock()
	handlers := make([]UnauthorizedHandler, 0, len(c.handlers))
	for _, h := range c.handlers {
		handlers = append(handlers, h)
	}
	c.mu.RUnlock()

	cleanupCtx := context.WithoutCancel(ctx)
	for _, h := range handlers {
		h(cleanupCtx)
	}
}

func (c *Client) transportFailure(method, path string, err error) error {
	if c.metrics != nil {
		c.metrics.RecordTransportFailure(method)
	}
	c.logger.Warn("api transport failure", "method", method, "path", path, "error", err)
	return &TransportError{Method: method, Path: path, Err: err}
}

// envelope is the wrapper around every successful JSON response.
type envelope struct {
	Data json.RawMessage `json:"data"`
}

func decodeEnvelope(method, path string, raw []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("apiclient unmarshal envelope %s %s: %w", method, path, err)
	}
	if len(env.Data) == 0 || bytes.Equal(env.Data, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("apiclient unmarshal data %s %s: %w", method, path, err)
	}
	return nil
}

// Where: cli/internal/store/appwrite/client.go
// What: HTTP client for the BaaS REST API.
// Why: Provision and serve the restaurant schema against a real BaaS deployment.
package appwrite

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/poruru/restaurant-baas/cli/internal/logging"
	"github.com/poruru/restaurant-baas/cli/internal/store"
)

const (
	DefaultPollInterval = 500 * time.Millisecond
	DefaultPollTimeout  = 60 * time.Second

	headerProject         = "X-Appwrite-Project"
	headerKey             = "X-Appwrite-Key"
	headerResponseFormat  = "X-Appwrite-Response-Format"
	headerFallbackCookies = "X-Fallback-Cookies"
	responseFormat        = "1.5.0"
)

// Options configures a Client. Endpoint includes the API prefix, for example
// http://localhost/v1.
type Options struct {
	Endpoint     string
	Project      string
	APIKey       string
	HTTPClient   *http.Client
	PollInterval time.Duration
	PollTimeout  time.Duration
	Logger       *zap.Logger
}

// Client talks to one BaaS project. Schema, document and file calls use the
// API key; account calls use the session cookie so they act as the end user.
type Client struct {
	endpoint     *url.URL
	project      string
	apiKey       string
	http         *http.Client
	pollInterval time.Duration
	pollTimeout  time.Duration
	logger       *zap.Logger

	mu              sync.Mutex
	fallbackCookies string
}

type auth int

const (
	authKey auth = iota
	authSession
)

// New validates options and builds a client.
func New(opts Options) (*Client, error) {
	raw := strings.TrimRight(strings.TrimSpace(opts.Endpoint), "/")
	if raw == "" {
		return nil, fmt.Errorf("appwrite endpoint is required")
	}
	endpoint, err := url.Parse(raw)
	if err != nil || endpoint.Host == "" {
		return nil, fmt.Errorf("invalid appwrite endpoint %q", opts.Endpoint)
	}
	if strings.TrimSpace(opts.Project) == "" {
		return nil, fmt.Errorf("appwrite project id is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = defaultHTTPClient(endpoint.Hostname())
	}
	if httpClient.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
		clone := *httpClient
		clone.Jar = jar
		httpClient = &clone
	}
	c := &Client{
		endpoint:     endpoint,
		project:      strings.TrimSpace(opts.Project),
		apiKey:       strings.TrimSpace(opts.APIKey),
		http:         httpClient,
		pollInterval: opts.PollInterval,
		pollTimeout:  opts.PollTimeout,
		logger:       logging.OrNop(opts.Logger),
	}
	if c.pollInterval <= 0 {
		c.pollInterval = DefaultPollInterval
	}
	if c.pollTimeout <= 0 {
		c.pollTimeout = DefaultPollTimeout
	}
	return c, nil
}

// Endpoint returns the API base URL.
func (c *Client) Endpoint() string {
	return c.endpoint.String()
}

func defaultHTTPClient(host string) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if isLocalHost(host) {
		transport.Proxy = nil
	} else {
		transport.Proxy = http.ProxyFromEnvironment
	}
	return &http.Client{
		Timeout:   30 * time.Second,
		Transport: otelhttp.NewTransport(transport),
	}
}

func isLocalHost(host string) bool {
	normalized := strings.ToLower(strings.TrimSpace(host))
	switch normalized {
	case "localhost", "appwrite", "host.docker.internal":
		return true
	}
	ip := net.ParseIP(normalized)
	return ip != nil && ip.IsLoopback()
}

// request describes one API call.
type request struct {
	method   string
	path     string
	query    url.Values
	body     any
	op       string
	resource string
	auth     auth
	// contentType overrides JSON encoding; body must then be an io.Reader.
	contentType string
}

func (c *Client) url(path string, query url.Values) string {
	u := *c.endpoint
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawPath = ""
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) do(ctx context.Context, r request, out any) error {
	var body io.Reader
	contentType := r.contentType
	if r.body != nil {
		if contentType != "" {
			reader, ok := r.body.(io.Reader)
			if !ok {
				return store.New(store.KindValidation, r.op, r.resource, "request body is not a reader")
			}
			body = reader
		} else {
			encoded, err := json.Marshal(r.body)
			if err != nil {
				return store.Wrap(store.KindValidation, r.op, r.resource, fmt.Errorf("encode request: %w", err))
			}
			body = bytes.NewReader(encoded)
			contentType = "application/json"
		}
	}
	req, err := http.NewRequestWithContext(ctx, r.method, c.url(r.path, r.query), body)
	if err != nil {
		return store.Wrap(store.KindTransport, r.op, r.resource, fmt.Errorf("create request: %w", err))
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(headerProject, c.project)
	req.Header.Set(headerResponseFormat, responseFormat)
	switch r.auth {
	case authKey:
		if c.apiKey != "" {
			req.Header.Set(headerKey, c.apiKey)
		}
	case authSession:
		if cookies := c.sessionCookies(); cookies != "" {
			req.Header.Set(headerFallbackCookies, cookies)
		}
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return store.Wrap(store.KindTransport, r.op, r.resource, ctxErr)
		}
		return store.Wrap(store.KindTransport, r.op, r.resource, err)
	}
	defer resp.Body.Close()
	c.logger.Debug("appwrite request",
		zap.String("method", r.method),
		zap.String("path", r.path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(started)),
	)
	if r.auth == authSession {
		if cookies := resp.Header.Get(headerFallbackCookies); cookies != "" {
			c.setSessionCookies(cookies)
		}
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return store.Wrap(store.KindTransport, r.op, r.resource, fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(r.op, r.resource, resp.StatusCode, payload)
	}
	if out == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return store.Wrap(store.KindTransport, r.op, r.resource, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// apiError is the error body returned by the BaaS.
type apiError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
	Type    string `json:"type"`
}

func decodeError(op, resource string, status int, payload []byte) error {
	var body apiError
	message := strings.TrimSpace(string(payload))
	if err := json.Unmarshal(payload, &body); err == nil && body.Message != "" {
		message = body.Message
		if body.Type != "" {
			message += " [" + body.Type + "]"
		}
	}
	if message == "" {
		message = http.StatusText(status)
	}
	return &store.Error{
		Kind:     store.KindFromStatus(status),
		Op:       op,
		Resource: resource,
		Status:   status,
		Message:  message,
	}
}

func (c *Client) sessionCookies() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fallbackCookies
}

func (c *Client) setSessionCookies(value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fallbackCookies = value
}

func (c *Client) clearSessionCookies() {
	c.setSessionCookies("")
}

// apiPath joins path segments; url.URL escapes them when the request is built.
func apiPath(parts ...string) string {
	return "/" + strings.Join(parts, "/")
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

var (
	_ store.SchemaStore    = (*Client)(nil)
	_ store.DatabaseLister = (*Client)(nil)
	_ store.DocumentStore  = (*Client)(nil)
	_ store.AccountStore   = (*Client)(nil)
	_ store.FileStore      = (*Client)(nil)
)

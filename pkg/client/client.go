// Package client provides the flaskion API request client: auth header
// injection, JSON/multipart encoding, and uniform response classification.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/flaskion/flaskion-client/pkg/logging"
)

// Prometheus metrics for API requests.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flaskion_requests_total",
		Help: "Total API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "flaskion_request_duration_seconds",
		Help:    "API request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"endpoint"})

	transportErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flaskion_transport_errors_total",
		Help: "Total requests that produced no parseable response",
	}, []string{"method"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flaskion_retries_total",
		Help: "Total transport-level retry attempts by method",
	}, []string{"method"})
)

// imagePathPrefix collapses per-image paths into one metric label.
const imagePathPrefix = "/api/v1/images/"

// TokenGetter is the read side of the token store.
type TokenGetter interface {
	Get(ctx context.Context) (token string, ok bool, err error)
}

// Client performs single HTTP exchanges against the API.
type Client struct {
	http    *retryablehttp.Client
	baseURL *url.URL
	tokens  TokenGetter
	config  Config
	logger  zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the API origin, e.g. "http://localhost:5000".
	BaseURL string

	// Tokens supplies the bearer token. Nil means requests never carry one.
	Tokens TokenGetter

	UserAgent string
	Timeout   time.Duration

	// Retry applies to transport failures of GET requests only.
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// DefaultConfig returns a default configuration.
func DefaultConfig(baseURL string, tokens TokenGetter) Config {
	return Config{
		BaseURL:      baseURL,
		Tokens:       tokens,
		UserAgent:    "flaskion-client/0.1.0",
		Timeout:      60 * time.Second,
		RetryMax:     2,
		RetryWaitMin: 500 * time.Millisecond,
		RetryWaitMax: 5 * time.Second,
	}
}

// New creates a new API client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url must be absolute: %q", cfg.BaseURL)
	}
	if cfg.RetryMax < 0 {
		return nil, fmt.Errorf("retry_max must be >= 0 (got %d)", cfg.RetryMax)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	logger := logging.NewLogger("api-client")

	rc := retryablehttp.NewClient()
	rc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	rc.RetryMax = cfg.RetryMax
	if cfg.RetryWaitMin > 0 {
		rc.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		rc.RetryWaitMax = cfg.RetryWaitMax
	}
	rc.CheckRetry = checkRetry
	rc.Logger = leveledLogger{logger: logger}
	rc.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt > 0 {
			retriesTotal.WithLabelValues(req.Method).Inc()
		}
	}

	return &Client{
		http:    rc,
		baseURL: base,
		tokens:  cfg.Tokens,
		config:  cfg,
		logger:  logger,
	}, nil
}

// RawResponse is a completed exchange whose body was read but not parsed.
type RawResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	ReceivedAt time.Time
}

// IsSuccess reports a 2xx status.
func (r *RawResponse) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode <= 299
}

// Send performs the exchange and parses the body as JSON. Every received
// response is returned regardless of status; only a transport failure
// (no response, unreadable or non-JSON body) returns an error.
func (c *Client) Send(ctx context.Context, req Request) (*Response, error) {
	raw, err := c.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}

	if len(bytes.TrimSpace(raw.Body)) > 0 && !json.Valid(raw.Body) {
		transportErrorsTotal.WithLabelValues(req.Method()).Inc()
		c.logger.Error().
			Str("endpoint", req.URL()).
			Int("status", raw.StatusCode).
			Msg("Response body is not JSON")
		return nil, &TransportError{
			Method: req.Method(),
			URL:    req.URL(),
			Err:    fmt.Errorf("%w: content-type %q", ErrMalformedBody, raw.Header.Get("Content-Type")),
		}
	}

	resp, err := NewResponse(raw.StatusCode, raw.Body, raw.Header, raw.ReceivedAt)
	if err != nil {
		return nil, &TransportError{Method: req.Method(), URL: req.URL(), Err: err}
	}
	return resp, nil
}

// Fetch performs the exchange with the same header and auth discipline as
// Send but leaves the body unparsed. It is used for binary payloads.
func (c *Client) Fetch(ctx context.Context, req Request) (*RawResponse, error) {
	target := c.resolve(req)
	endpoint := endpointLabel(target.Path)

	httpReq, err := c.buildRequest(ctx, req, target)
	if err != nil {
		return nil, err
	}

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", req.Method()).
		Bool("auth", req.AuthRequired()).
		Msg("Executing API request")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		transportErrorsTotal.WithLabelValues(req.Method()).Inc()
		requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
		return nil, &TransportError{Method: req.Method(), URL: target.String(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		transportErrorsTotal.WithLabelValues(req.Method()).Inc()
		requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("Reading response body failed")
		return nil, &TransportError{Method: req.Method(), URL: target.String(), Err: fmt.Errorf("read body: %w", err)}
	}

	requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	event := c.logger.Debug()
	if resp.StatusCode >= 400 {
		event = c.logger.Warn()
	}
	event.Str("endpoint", endpoint).
		Int("status", resp.StatusCode).
		Int("bytes", len(body)).
		Msg("API response received")

	return &RawResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		ReceivedAt: time.Now(),
	}, nil
}

// Get sends a GET request.
func (c *Client) Get(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	req, err := NewRequest(http.MethodGet, path, opts...)
	if err != nil {
		return nil, err
	}
	return c.Send(ctx, req)
}

// Post sends a POST request with a JSON payload.
func (c *Client) Post(ctx context.Context, path string, payload any, opts ...RequestOption) (*Response, error) {
	req, err := NewRequest(http.MethodPost, path, append([]RequestOption{WithJSON(payload)}, opts...)...)
	if err != nil {
		return nil, err
	}
	return c.Send(ctx, req)
}

// Patch sends a PATCH request with a JSON payload.
func (c *Client) Patch(ctx context.Context, path string, payload any, opts ...RequestOption) (*Response, error) {
	req, err := NewRequest(http.MethodPatch, path, append([]RequestOption{WithJSON(payload)}, opts...)...)
	if err != nil {
		return nil, err
	}
	return c.Send(ctx, req)
}

// PostMultipart sends a POST request with a multipart body.
func (c *Client) PostMultipart(ctx context.Context, path string, body Body, opts ...RequestOption) (*Response, error) {
	req, err := NewRequest(http.MethodPost, path, append([]RequestOption{WithBody(body)}, opts...)...)
	if err != nil {
		return nil, err
	}
	return c.Send(ctx, req)
}

// BaseURL returns the configured API origin.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.http.HTTPClient = client
}

func (c *Client) resolve(req Request) *url.URL {
	ref, _ := url.Parse(req.URL())
	target := c.baseURL.ResolveReference(ref)

	if extra := req.Query(); len(extra) > 0 {
		q := target.Query()
		for k, vs := range extra {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		target.RawQuery = q.Encode()
	}
	return target
}

func (c *Client) buildRequest(ctx context.Context, req Request, target *url.URL) (*retryablehttp.Request, error) {
	var (
		payload     []byte
		contentType string
	)
	if body := req.Body(); body != nil {
		var err error
		payload, contentType, err = body.encode()
		if err != nil {
			return nil, err
		}
	}

	if req.Method() != http.MethodGet {
		ctx = context.WithValue(ctx, noRetryKey{}, true)
	}

	var body any
	if payload != nil {
		body = payload
	}
	httpReq, err := retryablehttp.NewRequestWithContext(ctx, req.Method(), target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Accept", ContentTypeJSON)
	if c.config.UserAgent != "" {
		httpReq.Header.Set("User-Agent", c.config.UserAgent)
	}

	multipartBody := req.Body() != nil && req.Body().IsMultipart()
	for key, value := range req.ExtraHeaders() {
		if multipartBody && strings.EqualFold(key, "Content-Type") {
			continue
		}
		httpReq.Header.Set(key, value)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	if req.AuthRequired() && c.tokens != nil {
		token, ok, err := c.tokens.Get(ctx)
		if err != nil {
			return nil, fmt.Errorf("read token: %w", err)
		}
		if ok && token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	return httpReq, nil
}

type noRetryKey struct{}

// checkRetry retries transport failures of GET requests only. A received
// response, whatever its status, is final.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err == nil {
		return false, nil
	}
	if noRetry, _ := ctx.Value(noRetryKey{}).(bool); noRetry {
		return false, err
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

func endpointLabel(path string) string {
	if strings.HasPrefix(path, imagePathPrefix) {
		return imagePathPrefix + "*"
	}
	return path
}

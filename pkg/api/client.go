// Package api provides the core Anvil REST transport with retry,
// rate limiting, and error handling. All higher-level handles
// (queue, cache) perform their calls through this client.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/forgeworks/anvil-go/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for transport operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "anvil_requests_total",
		Help: "Total broker requests by path and status",
	}, []string{"path", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "anvil_request_duration_seconds",
		Help:    "Broker request duration in seconds by path",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"path"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "anvil_errors_total",
		Help: "Total broker errors by class",
	}, []string{"class"})
)

// Config holds the transport configuration.
type Config struct {
	// Host is the broker host, e.g. "mq.anvil.dev".
	Host string

	// Scheme is "https" or "http" (default: https).
	Scheme string

	// Port is the broker port (default: 443).
	Port int

	// ProjectID scopes every request to one project.
	ProjectID string

	// Token is the OAuth token sent with every request.
	Token string

	// APIVersion is the broker API version segment (default: "1").
	APIVersion string

	// UserAgent identifies this client to the broker.
	UserAgent string

	// Retry
	MaxRetries     int
	InitialBackoff time.Duration
	BackoffFactor  float64
	MaxBackoff     time.Duration

	// Redis enables fleet-wide rate-limit state sharing when set.
	// Without it the client runs unthrottled.
	Redis *redis.Client
}

// DefaultConfig returns a safe default configuration for the given project.
func DefaultConfig(host, projectID, token string) Config {
	return Config{
		Host:           host,
		Scheme:         "https",
		Port:           443,
		ProjectID:      projectID,
		Token:          token,
		APIVersion:     "1",
		UserAgent:      "anvil-go/0.1.0",
		MaxRetries:     3,
		InitialBackoff: 1 * time.Second,
		BackoffFactor:  2.0,
		MaxBackoff:     30 * time.Second,
	}
}

// Client is the Anvil REST transport.
type Client struct {
	httpClient *http.Client
	limiter    *ratelimit.Tracker
	config     Config
	baseURL    string
	logger     zerolog.Logger
}

// errorBody is the broker's error response envelope.
type errorBody struct {
	Msg string `json:"msg"`
}

// New creates a new transport client.
func New(cfg Config) (*Client, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("host is required")
	}

	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("project id is required")
	}

	if cfg.Token == "" {
		return nil, fmt.Errorf("token is required")
	}

	if cfg.Scheme == "" {
		cfg.Scheme = "https"
	}
	if cfg.Port == 0 {
		cfg.Port = 443
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "1"
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 1 * time.Second
	}
	if cfg.BackoffFactor <= 0 {
		cfg.BackoffFactor = 2.0
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}

	logger := log.With().Str("component", "anvil-transport").Logger()

	var limiter *ratelimit.Tracker
	if cfg.Redis != nil {
		limiter = ratelimit.NewTracker(cfg.Redis, logger)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: limiter,
		config:  cfg,
		baseURL: fmt.Sprintf("%s://%s:%d/%s/projects/%s",
			cfg.Scheme, cfg.Host, cfg.Port, cfg.APIVersion, cfg.ProjectID),
		logger: logger,
	}, nil
}

// Get performs a GET request against a project-scoped path.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

// Put performs a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPut, path, body, out)
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodDelete, path, nil, out)
}

// do executes one broker call: rate-limit gate, request build, retry loop,
// response decode. The decoded body lands in out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(path).Observe(time.Since(startTime).Seconds())
	}()

	// Step 1: Check rate limit (only when shared state is configured)
	if c.limiter != nil {
		allowed, err := c.limiter.ShouldAllowRequest(ctx)
		if err != nil {
			c.logger.Error().Err(err).Msg("Rate limit check failed")
			return fmt.Errorf("rate limit check: %w", err)
		}
		if !allowed {
			c.logger.Warn().
				Str("path", path).
				Msg("Request blocked by rate limiter")
			requestsTotal.WithLabelValues(path, "rate_limited").Inc()
			return fmt.Errorf("request blocked: rate limit critical")
		}
	}

	// Step 2: Marshal the request body once; each attempt gets a fresh reader.
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
	}

	c.logger.Debug().
		Str("path", path).
		Str("method", method).
		Msg("Executing broker request")

	// Step 3: Execute with retry. 503 is the broker's busy signal and the
	// main reason BackoffFactor exists.
	var respBody []byte
	retryCfg := RetryConfig{
		MaxAttempts:    c.config.MaxRetries,
		InitialBackoff: c.config.InitialBackoff,
		MaxBackoff:     c.config.MaxBackoff,
		BackoffFactor:  c.config.BackoffFactor,
	}

	retryErr := retryWithBackoff(ctx, retryCfg, func() error {
		var reqErr error
		respBody, reqErr = c.attempt(ctx, method, path, payload)
		return reqErr
	}, classifyError)

	if retryErr != nil {
		return retryErr
	}

	// Step 4: Decode response
	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}

// attempt performs a single HTTP round trip and maps failures to APIError.
func (c *Client) attempt(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "OAuth "+c.config.Token)
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("path", path).Msg("HTTP request failed")
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(path, "network_error").Inc()
		return nil, err
	}
	defer resp.Body.Close()

	// Update shared rate limit state from broker headers
	if c.limiter != nil {
		if err := c.limiter.UpdateFromHeaders(ctx, resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
		}
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	requestsTotal.WithLabelValues(path, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode >= 400 {
		apiErr := c.buildAPIError(resp.StatusCode, respBody)
		errorsTotal.WithLabelValues(string(apiErr.ErrorClass)).Inc()

		c.logger.Warn().
			Str("path", path).
			Int("status", resp.StatusCode).
			Str("error_class", string(apiErr.ErrorClass)).
			Msg("Broker request error")

		return nil, apiErr
	}

	return respBody, nil
}

// buildAPIError maps an HTTP error status to an APIError. The broker's
// human-readable message rides in the body's msg field.
func (c *Client) buildAPIError(status int, body []byte) *APIError {
	var eb errorBody
	_ = json.Unmarshal(body, &eb)
	if eb.Msg == "" {
		eb.Msg = http.StatusText(status)
	}

	apiErr := &APIError{
		StatusCode: status,
		Message:    eb.Msg,
	}

	switch {
	case status == http.StatusNotFound:
		apiErr.ErrorClass = ErrorClassClient
		apiErr.Err = ErrNotFound
	case status >= 400 && status < 500:
		apiErr.ErrorClass = ErrorClassClient
	default:
		apiErr.ErrorClass = ErrorClassServer
	}

	return apiErr
}

// classifyError categorizes an error for retry decisions and observability.
func classifyError(err error) ErrorClass {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorClass
	}
	return ErrorClassNetwork
}

// url joins the project base URL with a handle-supplied path.
func (c *Client) url(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

// ProjectID returns the configured project id.
func (c *Client) ProjectID() string {
	return c.config.ProjectID
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// Close closes the client and releases resources.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

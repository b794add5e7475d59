// Package client provides the Photos Library HTTP client with request
// pacing, error classification and page-fetch capabilities for the
// paginated endpoints.
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

	"github.com/Sternrassler/gphotos-client/pkg/logging"
	"github.com/Sternrassler/gphotos-client/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gphotos_requests_total",
		Help: "Total Photos Library requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gphotos_request_duration_seconds",
		Help:    "Photos Library request duration in seconds by endpoint, including pacing waits",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gphotos_errors_total",
		Help: "Total Photos Library errors by class",
	}, []string{"class"})
)

const (
	// DefaultBaseURL is the Photos Library REST root.
	DefaultBaseURL = "https://photoslibrary.googleapis.com/v1"

	// DefaultUploadURL receives raw upload bytes.
	DefaultUploadURL = "https://photoslibrary.googleapis.com/v1/uploads"

	// DefaultUserAgent identifies the library.
	DefaultUserAgent = "gphotos-client/0.1.0"

	// maxErrorBody bounds how much of an error response is kept.
	maxErrorBody = 4096
)

// Client is the main Photos Library client.
type Client struct {
	httpClient *http.Client
	throttler  *ratelimit.Throttler
	baseURL    string
	uploadURL  string
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// HTTPClient performs the requests. It must already attach OAuth
	// credentials with the photoslibrary scopes.
	HTTPClient *http.Client

	// BaseURL of the REST API (default: DefaultBaseURL)
	BaseURL string

	// UploadURL for raw media bytes (default: DefaultUploadURL)
	UploadURL string

	// User-Agent header
	UserAgent string

	// MinInterval is the minimum gap between the starts of two requests.
	MinInterval time.Duration

	// UploadBytesPerSecond limits upload throughput (0 = unlimited)
	UploadBytesPerSecond int

	// Timeout applied to the HTTP client when it has none
	Timeout time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(httpClient *http.Client) Config {
	return Config{
		HTTPClient:  httpClient,
		BaseURL:     DefaultBaseURL,
		UploadURL:   DefaultUploadURL,
		UserAgent:   DefaultUserAgent,
		MinInterval: ratelimit.DefaultMinInterval,
		Timeout:     60 * time.Second,
	}
}

// New creates a new Photos Library client.
func New(cfg Config) (*Client, error) {
	if cfg.HTTPClient == nil {
		return nil, fmt.Errorf("http client is required")
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.UploadBytesPerSecond < 0 {
		return nil, fmt.Errorf("upload_bytes_per_second must be >= 0 (got %d)", cfg.UploadBytesPerSecond)
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.UploadURL == "" {
		cfg.UploadURL = DefaultUploadURL
	}
	if cfg.Timeout > 0 && cfg.HTTPClient.Timeout == 0 {
		cfg.HTTPClient.Timeout = cfg.Timeout
	}

	// Initialize logger
	logger := logging.For(logging.ComponentClient)

	throttler, err := ratelimit.NewThrottler(cfg.MinInterval,
		ratelimit.WithName("photoslibrary"),
		ratelimit.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("create throttler: %w", err)
	}

	return &Client{
		httpClient: cfg.HTTPClient,
		throttler:  throttler,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		uploadURL:  cfg.UploadURL,
		config:     cfg,
		logger:     logger,
	}, nil
}

// Throttler returns the throttler pacing this client's requests.
func (c *Client) Throttler() *ratelimit.Throttler {
	return c.throttler
}

// Do performs an HTTP request through the throttler. Responses with a status
// of 400 or above are consumed and returned as *APIError. No retries are
// attempted.
func (c *Client) Do(req *http.Request, endpoint string) (*http.Response, error) {
	ctx := req.Context()

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	req.Header.Set("User-Agent", c.config.UserAgent)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", req.Method).
		Msg("Executing request")

	var resp *http.Response
	err := c.throttler.Do(ctx, func() error {
		var reqErr error
		resp, reqErr = c.httpClient.Do(req)
		return reqErr
	})
	if err != nil {
		errClass := ErrorClassNetwork
		errorsTotal.WithLabelValues(string(errClass)).Inc()
		requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
		return nil, &APIError{
			ErrorClass: errClass,
			Endpoint:   endpoint,
			Message:    "request failed",
			Err:        err,
		}
	}

	requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()

		errClass := classifyStatus(resp.StatusCode)
		errorsTotal.WithLabelValues(string(errClass)).Inc()

		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: errClass,
			Endpoint:   endpoint,
			Message:    errorMessage(resp.Status, body),
			Body:       body,
		}

		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("error_class", string(errClass)).
			Msg("Photos Library request error")

		return nil, apiErr
	}

	return resp, nil
}

// classifyStatus categorizes an HTTP status for observability and handling.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// errorMessage prefers the message of a Google API error envelope.
func errorMessage(status string, body []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		if envelope.Error.Status != "" {
			return envelope.Error.Status + ": " + envelope.Error.Message
		}
		return envelope.Error.Message
	}
	return status
}

// doJSON sends in as a JSON body (when non-nil) and decodes the response
// into out (when non-nil).
func (c *Client) doJSON(ctx context.Context, method, path, endpoint string, query url.Values, in, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", endpoint, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Do(req, endpoint)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

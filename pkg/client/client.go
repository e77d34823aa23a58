// Package client is a typed Go client for the devcage HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/devcage/devcage/internal/models"
)

// API paths
const (
	APIBasePath       = "/api/v1"
	APIPathHealth     = "/health"
	APIPathContainers = "/containers"
	APIPathGroups     = "/groups"
	APIPathOperations = "/operations"
)

// Common errors
var (
	ErrNotFound         = fmt.Errorf("resource not found")
	ErrBadRequest       = fmt.Errorf("bad request")
	ErrConflict         = fmt.Errorf("conflict")
	ErrUnavailable      = fmt.Errorf("service unavailable")
	ErrServerError      = fmt.Errorf("server error")
	ErrConnectionFailed = fmt.Errorf("connection failed")
)

// Option is a functional option for configuring the client.
type Option func(*Config) error

// Config holds the client settings.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	UserAgent  string
	HTTPClient *http.Client
	Headers    map[string]string
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:   "http://localhost:8475",
		Timeout:   30 * time.Second,
		UserAgent: "devcage-client/1.0",
		Headers:   make(map[string]string),
	}
}

// WithBaseURL sets the server base URL.
func WithBaseURL(baseURL string) Option {
	return func(config *Config) error {
		if baseURL == "" {
			return fmt.Errorf("base URL cannot be empty")
		}
		if _, err := url.Parse(baseURL); err != nil {
			return fmt.Errorf("invalid base URL: %w", err)
		}
		config.BaseURL = baseURL
		return nil
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(config *Config) error {
		if timeout <= 0 {
			return fmt.Errorf("timeout must be positive")
		}
		config.Timeout = timeout
		return nil
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(userAgent string) Option {
	return func(config *Config) error {
		if userAgent == "" {
			return fmt.Errorf("user agent cannot be empty")
		}
		config.UserAgent = userAgent
		return nil
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(config *Config) error {
		if httpClient == nil {
			return fmt.Errorf("HTTP client cannot be nil")
		}
		config.HTTPClient = httpClient
		return nil
	}
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) Option {
	return func(config *Config) error {
		if key == "" {
			return fmt.Errorf("header key cannot be empty")
		}
		if config.Headers == nil {
			config.Headers = make(map[string]string)
		}
		config.Headers[key] = value
		return nil
	}
}

// Client talks to a devcage server.
type Client struct {
	config     Config
	httpClient *http.Client
}

// New creates a client with the given options applied over the defaults.
func New(options ...Option) (*Client, error) {
	config := DefaultConfig()
	for _, opt := range options {
		if err := opt(&config); err != nil {
			return nil, err
		}
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	return &Client{config: config, httpClient: httpClient}, nil
}

// Health returns the server's health report.
func (c *Client) Health(ctx context.Context) (models.HealthStatus, error) {
	var health models.HealthStatus
	err := c.do(ctx, http.MethodGet, APIPathHealth, nil, &health)
	return health, err
}

// do performs one request and decodes the standard envelope into out.
func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	defer resp.Body.Close()

	var envelope models.Response
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if !envelope.Success || resp.StatusCode >= 400 {
		return c.apiError(resp.StatusCode, envelope.Error)
	}

	if out != nil && envelope.Data != nil {
		raw, err := json.Marshal(envelope.Data)
		if err != nil {
			return fmt.Errorf("failed to re-encode response data: %w", err)
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("failed to decode response data: %w", err)
		}
	}
	return nil
}

func (c *Client) apiError(statusCode int, apiErr *models.APIError) error {
	message := http.StatusText(statusCode)
	if apiErr != nil {
		message = apiErr.Message
	}

	var base error
	switch {
	case statusCode == http.StatusNotFound:
		base = ErrNotFound
	case statusCode == http.StatusBadRequest:
		base = ErrBadRequest
	case statusCode == http.StatusConflict:
		base = ErrConflict
	case statusCode == http.StatusServiceUnavailable:
		base = ErrUnavailable
	case statusCode >= 500:
		base = ErrServerError
	default:
		base = fmt.Errorf("unexpected status %d", statusCode)
	}
	return fmt.Errorf("%w: %s", base, message)
}

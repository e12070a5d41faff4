// Package http provides the HTTP client used for registry operations.
//
// It wraps the standard http.Client with bounded timeouts, a user agent,
// and retry with exponential backoff for transient failures.
package http

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/keikotool/keiko/observability"
)

const (
	DefaultTimeout     = 15 * time.Second
	DefaultDialTimeout = 10 * time.Second
	DefaultUserAgent   = "keiko/0.1.0"
)

// Client wraps http.Client with keiko-specific configuration.
type Client struct {
	httpClient  *http.Client
	userAgent   string
	retryConfig *RetryConfig
	logger      observability.Logger
}

// Config holds HTTP client configuration.
type Config struct {
	Timeout      time.Duration
	DialTimeout  time.Duration
	UserAgent    string
	MaxIdleConns int
	RetryConfig  *RetryConfig
	Logger       observability.Logger // Optional logger (nil uses NullLogger)
}

// DefaultConfig returns a client configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Timeout:      DefaultTimeout,
		DialTimeout:  DefaultDialTimeout,
		UserAgent:    DefaultUserAgent,
		MaxIdleConns: 20,
		RetryConfig:  DefaultRetryConfig(),
	}
}

// NewClient creates a new HTTP client with the given configuration.
func NewClient(cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.RetryConfig == nil {
		cfg.RetryConfig = DefaultRetryConfig()
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	logger := cfg.Logger
	if logger == nil {
		logger = observability.NewNullLogger()
	}

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		userAgent:   cfg.UserAgent,
		retryConfig: cfg.RetryConfig,
		logger:      logger,
	}
}

// Do executes an HTTP request with context and user agent.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	req = req.WithContext(ctx)

	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	c.logger.DebugContext(ctx, "HTTP {Method} {URL}", req.Method, req.URL.String())

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		c.logger.WarnContext(ctx, "HTTP {Method} {URL} failed after {Duration}ms: {Error}",
			req.Method, req.URL.String(), duration.Milliseconds(), err)
		return nil, err
	}

	c.logger.DebugContext(ctx, "HTTP {Method} {URL} -> {StatusCode} ({Duration}ms)",
		req.Method, req.URL.String(), resp.StatusCode, duration.Milliseconds())
	observability.RegistryRequestDuration.Observe(duration.Seconds())

	return resp, nil
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	return c.Do(ctx, req)
}

// DoWithRetry executes an HTTP request, retrying transient failures with
// exponential backoff. Retry-After headers on 429/503 responses are honored
// up to the configured maximum backoff.
func (c *Client) DoWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	var lastErr error
	var resp *http.Response

	for attempt := 0; attempt <= c.retryConfig.MaxRetries; attempt++ {
		// Clone the request; the body may have been consumed on a prior attempt.
		reqClone := req.Clone(ctx)
		if reqClone.Header.Get("User-Agent") == "" {
			reqClone.Header.Set("User-Agent", c.userAgent)
		}

		resp, lastErr = c.httpClient.Do(reqClone)

		if lastErr == nil && !IsRetriableStatus(resp.StatusCode) {
			if attempt > 0 {
				c.logger.InfoContext(ctx, "HTTP {Method} {URL} succeeded after {Attempt} retries",
					req.Method, req.URL.String(), attempt)
			}
			return resp, nil
		}

		if lastErr != nil && !IsRetriable(lastErr) {
			return nil, lastErr
		}

		if attempt == c.retryConfig.MaxRetries {
			break
		}

		backoff := c.retryConfig.CalculateBackoff(attempt)
		if resp != nil {
			if ra := ParseRetryAfter(resp.Header.Get("Retry-After")); ra > backoff {
				backoff = ra
			}
			_ = resp.Body.Close()
		}

		c.logger.DebugContext(ctx, "HTTP {Method} {URL} retrying in {Backoff}ms (attempt {Attempt})",
			req.Method, req.URL.String(), backoff.Milliseconds(), attempt+1)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	if lastErr != nil {
		return nil, fmt.Errorf("request failed after %d retries: %w", c.retryConfig.MaxRetries, lastErr)
	}
	return resp, nil
}

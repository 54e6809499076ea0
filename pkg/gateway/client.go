package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultTimeout = 5 * time.Minute

	// Conservative client-side ceiling; the gateway service enforces its own.
	defaultRateLimit = rate.Limit(1)
	defaultBurstSize = 10
)

// RetryConfig configures the retry mechanism for transport-level failures.
// Retries here cover the HTTP hop only; the dispatch core never retries a
// routed call.
type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Multiplier:      2.0,
	}
}

// DefaultTransport returns an http.Transport with tuned connection pool settings.
func DefaultTransport() *http.Transport {
	return &http.Transport{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
}

// Client is an HTTP client for a remote gateway service.
type Client struct {
	apiKey      string
	baseURL     string
	model       string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	breaker     *CircuitBreaker
	retryConfig RetryConfig
}

// ClientOptions customizes client construction.
type ClientOptions struct {
	// Model is the default model id attached to requests that leave it unset.
	Model string
	// CircuitBreakerConfig is optional; if nil, default config is used.
	CircuitBreakerConfig *CircuitBreakerConfig
	// RetryConfig is optional; if nil, default config is used.
	RetryConfig *RetryConfig
	// Timeout overrides the default request timeout.
	Timeout time.Duration
}

// NewClient creates a gateway client for the given endpoint.
func NewClient(apiKey, baseURL string, opts ClientOptions) *Client {
	cbConfig := DefaultCircuitBreakerConfig()
	if opts.CircuitBreakerConfig != nil {
		cbConfig = *opts.CircuitBreakerConfig
	}

	retryConfig := DefaultRetryConfig()
	if opts.RetryConfig != nil {
		retryConfig = *opts.RetryConfig
	}

	timeout := defaultTimeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}

	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   opts.Model,
		httpClient: &http.Client{
			Transport: DefaultTransport(),
			Timeout:   timeout,
		},
		rateLimiter: rate.NewLimiter(defaultRateLimit, defaultBurstSize),
		breaker:     NewCircuitBreaker(cbConfig),
		retryConfig: retryConfig,
	}
}

// Route implements Gateway.
func (c *Client) Route(ctx context.Context, req Request) (*Response, error) {
	if req.Model == "" {
		req.Model = c.model
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	var resp *Response
	err := c.breaker.Call(func() error {
		routed, routeErr := c.routeWithRetries(ctx, req)
		if routeErr != nil {
			return routeErr
		}
		resp = routed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) routeWithRetries(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	interval := c.retryConfig.InitialInterval
	var lastErr error

	for attempt := 0; attempt <= c.retryConfig.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(interval):
			}
			interval = time.Duration(float64(interval) * c.retryConfig.Multiplier)
			if interval > c.retryConfig.MaxInterval {
				interval = c.retryConfig.MaxInterval
			}
		}

		resp, retryable, err := c.routeOnce(ctx, body)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}

	return nil, fmt.Errorf("gateway unavailable after %d attempts: %w", c.retryConfig.MaxRetries+1, lastErr)
}

func (c *Client) routeOnce(ctx context.Context, body []byte) (*Response, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/route", bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, true, fmt.Errorf("transport: %w", err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("read response: %w", err)
	}

	switch {
	case httpResp.StatusCode == http.StatusOK:
		var resp Response
		if err := json.Unmarshal(data, &resp); err != nil {
			return nil, false, fmt.Errorf("decode response: %w", err)
		}
		return &resp, false, nil
	case httpResp.StatusCode == http.StatusTooManyRequests,
		httpResp.StatusCode >= http.StatusInternalServerError:
		return nil, true, fmt.Errorf("gateway HTTP %d: %s", httpResp.StatusCode, truncate(string(data), 200))
	default:
		return nil, false, fmt.Errorf("gateway HTTP %d: %s", httpResp.StatusCode, truncate(string(data), 200))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

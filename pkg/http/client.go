package http

import (
	"fmt"
	"net/http"
	"time"

	"docqa/internal/config"
	"docqa/pkg/circuitbreaker"
)

// Client is a custom HTTP client that wraps the standard http.Client
// and provides built-in support for circuit breaking.
type Client struct {
	httpClient *http.Client
	breaker    circuitbreaker.CircuitBreaker
}

// ClientOption configures a Client.
type ClientOption func(*clientOptions)

type clientOptions struct {
	timeout       time.Duration
	transport     http.RoundTripper
	onStateChange func(from, to circuitbreaker.State)
}

// WithTimeout sets the overall request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(o *clientOptions) { o.timeout = d }
}

// WithTransport replaces the default transport.
func WithTransport(rt http.RoundTripper) ClientOption {
	return func(o *clientOptions) { o.transport = rt }
}

// WithBreakerStateChange observes circuit breaker transitions.
func WithBreakerStateChange(fn func(from, to circuitbreaker.State)) ClientOption {
	return func(o *clientOptions) { o.onStateChange = fn }
}

// NewClient creates a new Client. When the breaker is disabled requests go straight to the wrapped client.
func NewClient(cfg config.CircuitBreakerConfig, opts ...ClientOption) (*Client, error) {
	o := clientOptions{timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	c := &Client{
		httpClient: &http.Client{Timeout: o.timeout, Transport: o.transport},
	}
	if !cfg.Enabled {
		return c, nil
	}

	var breakerOpts []circuitbreaker.Option
	if o.onStateChange != nil {
		breakerOpts = append(breakerOpts, circuitbreaker.WithStateChange(o.onStateChange))
	}
	breaker, err := createCircuitBreaker(cfg, breakerOpts...)
	if err != nil {
		return nil, err
	}
	c.breaker = breaker
	return c, nil
}

// Do executes an HTTP request with circuit breaker protection.
// Status codes >= 500 count as failures; the response is still returned to the caller.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.breaker == nil {
		return c.httpClient.Do(req)
	}

	var resp *http.Response
	_, err := c.breaker.Execute(func() (interface{}, error) {
		var doErr error
		resp, doErr = c.httpClient.Do(req)
		if doErr != nil {
			return nil, doErr
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, fmt.Errorf("server error: received status code %d", resp.StatusCode)
		}
		return resp, nil
	})
	if err != nil {
		if resp != nil && resp.StatusCode >= http.StatusInternalServerError {
			// Hand the 5xx response back so callers can report the status.
			return resp, nil
		}
		return nil, err
	}
	return resp, nil
}

// createCircuitBreaker initializes a circuit breaker based on the configuration.
func createCircuitBreaker(cfg config.CircuitBreakerConfig, opts ...circuitbreaker.Option) (circuitbreaker.CircuitBreaker, error) {
	timeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid circuit breaker timeout duration: %w", err)
	}
	return circuitbreaker.New(cfg.FailureThreshold, cfg.SuccessThreshold, timeout, opts...), nil
}

package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

// Client is a wrapper for HTTP client with rate limiting
type Client struct {
	HTTPClient      *http.Client
	Limiter         *rate.Limiter
	maxRetries      int
	maxRetryTimeout time.Duration
}

// ClientOptions holds options for creating a new Client
type ClientOptions struct {
	Timeout         time.Duration
	RequestsPerSec  int
	MaxRetries      int
	MaxRetryTimeout time.Duration
}

// NewClient creates a new HTTP client with rate limiting
func NewClient(opts ClientOptions) *Client {
	// Set default values if not provided
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RequestsPerSec == 0 {
		opts.RequestsPerSec = 5
	}
	if opts.MaxRetryTimeout == 0 {
		opts.MaxRetryTimeout = 30 * time.Second
	}

	return &Client{
		HTTPClient: &http.Client{
			Timeout: opts.Timeout,
		},
		Limiter:         rate.NewLimiter(rate.Limit(opts.RequestsPerSec), opts.RequestsPerSec),
		maxRetries:      opts.MaxRetries,
		maxRetryTimeout: opts.MaxRetryTimeout,
	}
}

// DoRequest performs an HTTP request with rate limiting and retries.
// Client errors other than 429 are not retried.
func (c *Client) DoRequest(ctx context.Context, req *http.Request) (*http.Response, error) {
	var resp *http.Response
	operation := func() error {
		// Every attempt waits for the limiter
		if err := c.Limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		var err error
		resp, err = c.HTTPClient.Do(req.Clone(ctx))
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			statusErr := &HTTPStatusError{StatusCode: resp.StatusCode}
			if !statusErr.Temporary() {
				return backoff.Permanent(statusErr)
			}
			return statusErr
		}
		return nil
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.MaxElapsedTime = c.maxRetryTimeout

	var strategy backoff.BackOff = expBackoff
	if c.maxRetries > 0 {
		strategy = backoff.WithMaxRetries(strategy, uint64(c.maxRetries))
	}

	if err := backoff.Retry(operation, backoff.WithContext(strategy, ctx)); err != nil {
		return nil, err
	}

	return resp, nil
}

// GetJSON issues a GET to url and decodes a JSON body into out
func (c *Client) GetJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.DoRequest(ctx, req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parsing JSON: %w", err)
	}
	return nil
}

// HTTPStatusError represents an error due to a non-200 HTTP status code
type HTTPStatusError struct {
	StatusCode int
}

// Error implements the error interface
func (e *HTTPStatusError) Error() string {
	return "non-200 status code: " + http.StatusText(e.StatusCode)
}

// Temporary reports whether a retry may succeed
func (e *HTTPStatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

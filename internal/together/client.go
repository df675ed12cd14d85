// Package together provides an HTTP client for the Together AI video
// generation API: job submission, status polling and cancellation.
package together

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Static errors for Together client operations.
var (
	// ErrAPIKeyNotSet is returned when the TOGETHER_API_KEY is not provided.
	ErrAPIKeyNotSet = errors.New("together: TOGETHER_API_KEY environment variable is not set")
	// ErrVideoIDRequired is returned when the video ID is not provided.
	ErrVideoIDRequired = errors.New("together: video ID is required")
	// ErrNoVideoIDReturned is returned when the submit response contains no video ID.
	ErrNoVideoIDReturned = errors.New("together: submit failed: no video ID returned")
	// ErrSubmitFailed is returned when the submit operation fails.
	ErrSubmitFailed = errors.New("together: submit failed")
	// ErrServerError is returned when the server returns a 5xx status code.
	ErrServerError = errors.New("together: server error")
	// ErrRateLimited is returned when the server returns a 429 status code.
	ErrRateLimited = errors.New("together: rate limited")
	// ErrRequestFailed is returned when the request fails with a non-2xx status code.
	ErrRequestFailed = errors.New("together: request failed")
	// ErrUnauthorized is returned when the server rejects the credentials.
	ErrUnauthorized = errors.New("together: unauthorized")
	// ErrQuotaExceeded is returned when the account quota is exhausted.
	ErrQuotaExceeded = errors.New("together: quota exceeded")
)

// Client defines the interface for interacting with the Together video API.
type Client interface {
	// Submit creates a video generation job and returns the provider's video ID.
	Submit(ctx context.Context, req SubmitRequest) (videoID string, err error)

	// Poll fetches the current status of a job.
	Poll(ctx context.Context, videoID string) (StatusResponse, error)

	// Cancel requests cancellation of a job. The returned bool reports
	// whether the provider acknowledged the cancellation.
	Cancel(ctx context.Context, videoID string) (bool, error)

	// Download streams the artifact at the given URL.
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}

// HTTPClient is the HTTP implementation of the Together Client interface.
type HTTPClient struct {
	apiKey      string
	baseURL     string
	httpClient  *http.Client
	maxRetries  int
	baseBackoff time.Duration
}

// ClientOption is a function that configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithAPIKey sets the API key for authentication.
func WithAPIKey(key string) ClientOption {
	return func(hc *HTTPClient) {
		hc.apiKey = key
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(hc *HTTPClient) {
		hc.httpClient = c
	}
}

// WithBaseURL sets a custom base URL for the Together API.
func WithBaseURL(url string) ClientOption {
	return func(hc *HTTPClient) {
		hc.baseURL = url
	}
}

// WithMaxRetries sets the maximum number of retries for transient failures.
func WithMaxRetries(n int) ClientOption {
	return func(hc *HTTPClient) {
		hc.maxRetries = n
	}
}

// WithBaseBackoff sets the initial backoff duration for retries.
func WithBaseBackoff(d time.Duration) ClientOption {
	return func(hc *HTTPClient) {
		hc.baseBackoff = d
	}
}

// NewClient creates a new Together HTTP client.
// The API key can be set via the WithAPIKey option. If not provided,
// it is read from the environment variable TOGETHER_API_KEY.
func NewClient(opts ...ClientOption) (*HTTPClient, error) {
	c := &HTTPClient{
		baseURL:     "https://api.together.xyz/v1",
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		maxRetries:  3,
		baseBackoff: 1 * time.Second,
	}

	// Apply options first to allow WithAPIKey to set the API key
	for _, opt := range opts {
		opt(c)
	}

	// If API key was not set via option, try environment variable
	if c.apiKey == "" {
		c.apiKey = os.Getenv("TOGETHER_API_KEY")
	}

	if c.apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	return c, nil
}

// Submit creates a video generation job and returns the provider's video ID.
func (c *HTTPClient) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	reqBody := createRequest{
		Model:  req.Model,
		Prompt: req.Prompt,
		Width:  req.Width,
		Height: req.Height,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("together: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/videos", c.baseURL)

	var resp createResponse
	if _, err := c.doRequestWithRetry(ctx, http.MethodPost, url, bodyBytes, &resp); err != nil {
		return "", err
	}

	if resp.ID == "" {
		if resp.Error != "" {
			return "", fmt.Errorf("%w: %s", ErrSubmitFailed, resp.Error)
		}
		return "", ErrNoVideoIDReturned
	}

	return resp.ID, nil
}

// Poll fetches the current status of a job.
func (c *HTTPClient) Poll(ctx context.Context, videoID string) (StatusResponse, error) {
	if videoID == "" {
		return StatusResponse{}, ErrVideoIDRequired
	}

	url := fmt.Sprintf("%s/videos/%s", c.baseURL, videoID)

	var resp StatusResponse
	raw, err := c.doRequestWithRetry(ctx, http.MethodGet, url, nil, &resp)
	if err != nil {
		return StatusResponse{}, err
	}
	resp.Raw = raw

	return resp, nil
}

// Cancel requests cancellation of a job.
func (c *HTTPClient) Cancel(ctx context.Context, videoID string) (bool, error) {
	if videoID == "" {
		return false, ErrVideoIDRequired
	}

	url := fmt.Sprintf("%s/videos/%s/cancel", c.baseURL, videoID)

	var resp cancelResponse
	if _, err := c.doRequestWithRetry(ctx, http.MethodPost, url, nil, &resp); err != nil {
		return false, err
	}

	return resp.Cancelled, nil
}

// Download streams the artifact at the given URL.
// The caller is responsible for closing the returned reader.
func (c *HTTPClient) Download(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("together: create download request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("together: download request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("together: download failed with status %d", resp.StatusCode)
	}

	return resp.Body, nil
}

// doRequestWithRetry performs an HTTP request with exponential backoff retry.
// It returns the raw response body alongside the decoded result.
func (c *HTTPClient) doRequestWithRetry(ctx context.Context, method, url string, body []byte, result interface{}) ([]byte, error) {
	var lastErr error
	backoff := c.baseBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("together: context cancelled: %w", ctx.Err())
			case <-time.After(backoff):
				backoff *= 2 // Exponential backoff
			}
		}

		raw, err := c.doRequest(ctx, method, url, body, result)
		if err == nil {
			return raw, nil
		}

		// Check if error is retryable
		if !IsRetryable(err) {
			return nil, err
		}

		lastErr = err
	}

	return nil, fmt.Errorf("together: max retries exceeded: %w", lastErr)
}

// doRequest performs a single HTTP request.
func (c *HTTPClient) doRequest(ctx context.Context, method, url string, body []byte, result interface{}) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("together: create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("together: request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("together: read response: %w", err)}
	}

	// Handle non-2xx status codes
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// 5xx errors are retryable
		if resp.StatusCode >= 500 {
			return nil, &retryableError{err: fmt.Errorf("%w %d: %s", ErrServerError, resp.StatusCode, string(respBody))}
		}
		// 429 (rate limit) is retryable
		if resp.StatusCode == 429 {
			return nil, &retryableError{err: fmt.Errorf("%w: %s", ErrRateLimited, string(respBody))}
		}
		// Credential and quota failures are permanent, mapped to sentinels
		// so callers can classify them without re-parsing status codes.
		if resp.StatusCode == 401 || resp.StatusCode == 403 {
			return nil, fmt.Errorf("%w with status %d: %s", ErrUnauthorized, resp.StatusCode, string(respBody))
		}
		if resp.StatusCode == 402 {
			return nil, fmt.Errorf("%w: %s", ErrQuotaExceeded, string(respBody))
		}
		// Other errors are not retryable
		return nil, fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return nil, fmt.Errorf("together: unmarshal response: %w", err)
		}
	}

	return respBody, nil
}

// retryableError wraps errors that should be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// IsRetryable returns true if the error should be retried.
func IsRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

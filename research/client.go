// Package research is the client for the external deep-research service.
// Work is submitted as a group of independent runs; progress comes back on a
// server-sent event stream scoped to the group.
package research

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	// BaseURL is the research service API base URL
	BaseURL = "https://api.parallel.ai"

	// EnvAPIKey is the environment variable holding the API credential
	EnvAPIKey = "PARALLEL_API_KEY"

	// DefaultTimeout for non-streaming API requests
	DefaultTimeout = 2 * time.Minute
)

// Client is the research service API client
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	debug      bool
}

// ClientOption configures the Client
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL (for testing)
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		parsed, err := url.Parse(baseURL)
		if err != nil {
			return
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return
		}
		if parsed.Host == "" {
			return
		}
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the HTTP client timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithDebug enables debug logging
func WithDebug(debug bool) ClientOption {
	return func(c *Client) {
		c.debug = debug
	}
}

// NewClient creates a new research service client
func NewClient(apiKey string, opts ...ClientOption) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	c := &Client{
		apiKey:  apiKey,
		baseURL: BaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// NewClientFromEnv creates a client using the PARALLEL_API_KEY environment variable
func NewClientFromEnv(opts ...ClientOption) (*Client, error) {
	apiKey := os.Getenv(EnvAPIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("%s environment variable not set", EnvAPIKey)
	}
	return NewClient(apiKey, opts...)
}

// CreateGroup creates an empty task group and returns its identifier.
func (c *Client) CreateGroup(ctx context.Context) (string, error) {
	var result struct {
		TaskGroupID string `json:"taskgroup_id"`
	}
	if err := c.doJSON(ctx, "POST", "/v1beta/tasks/groups", struct{}{}, &result); err != nil {
		return "", fmt.Errorf("failed to create task group: %w", err)
	}
	if result.TaskGroupID == "" {
		return "", fmt.Errorf("task group response missing taskgroup_id")
	}
	return result.TaskGroupID, nil
}

// AddRuns submits a batch of runs to a group in a single call. The returned
// run identifiers are in the same order as the submitted inputs.
func (c *Client) AddRuns(ctx context.Context, groupID string, inputs []RunInput) ([]string, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("at least one run input is required")
	}

	body := struct {
		Inputs []RunInput `json:"inputs"`
	}{Inputs: inputs}

	var result struct {
		RunIDs []string  `json:"run_ids"`
		Error  *APIError `json:"error,omitempty"`
	}
	path := fmt.Sprintf("/v1beta/tasks/groups/%s/runs", url.PathEscape(groupID))
	if err := c.doJSON(ctx, "POST", path, body, &result); err != nil {
		return nil, fmt.Errorf("failed to add runs to group %s: %w", groupID, err)
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return result.RunIDs, nil
}

// RunResult fetches the stored result of a single run.
func (c *Client) RunResult(ctx context.Context, runID string) (*RunResult, error) {
	var result RunResult
	path := fmt.Sprintf("/v1beta/tasks/runs/%s/result", url.PathEscape(runID))
	if err := c.doJSON(ctx, "GET", path, nil, &result); err != nil {
		return nil, fmt.Errorf("failed to fetch result for run %s: %w", runID, err)
	}
	return &result, nil
}

// CancelGroup asks the service to stop a group. This is best-effort: runs
// already executing server-side may still finish there.
func (c *Client) CancelGroup(ctx context.Context, groupID string) error {
	path := fmt.Sprintf("/v1beta/tasks/groups/%s/cancel", url.PathEscape(groupID))
	if err := c.doJSON(ctx, "POST", path, struct{}{}, nil); err != nil {
		return fmt.Errorf("failed to cancel group %s: %w", groupID, err)
	}
	return nil
}

// OpenEvents opens the raw event stream for a group. The caller owns the
// returned body and must close it.
func (c *Client) OpenEvents(ctx context.Context, groupID string) (io.ReadCloser, error) {
	streamURL := fmt.Sprintf("%s/v1beta/tasks/groups/%s/events", c.baseURL, url.PathEscape(groupID))

	req, err := http.NewRequestWithContext(ctx, "GET", streamURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create stream request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	if c.debug {
		fmt.Printf("[DEBUG] GET %s\n", streamURL)
	}

	// The stream outlives any per-request timeout, so bypass the client's
	// Timeout and rely on ctx for cancellation.
	streamClient := &http.Client{Transport: c.httpClient.Transport}
	resp, err := streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to open event stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	return resp.Body, nil
}

// doJSON performs a JSON request/response round trip with auth headers.
func (c *Client) doJSON(ctx context.Context, method, path string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.debug {
		fmt.Printf("[DEBUG] %s %s\n", method, path)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if c.debug {
		fmt.Printf("[DEBUG] %s %s -> %d (%d bytes)\n", method, path, resp.StatusCode, len(respBody))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var envelope struct {
			Error *APIError `json:"error"`
		}
		if err := json.Unmarshal(respBody, &envelope); err == nil && envelope.Error != nil {
			apiErr.Message = envelope.Error.Message
			apiErr.Detail = envelope.Error.Detail
		} else {
			apiErr.Message = strings.TrimSpace(string(respBody))
		}
		return apiErr
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

// CheckConfig verifies the research service credential is present.
func CheckConfig() error {
	if os.Getenv(EnvAPIKey) == "" {
		return fmt.Errorf("%s environment variable not set", EnvAPIKey)
	}
	return nil
}

// GetAPIKeyHelp returns help text for setting up the API key
func GetAPIKeyHelp() string {
	return `To fill cells by web research, you need a Parallel API key.

Setup:
  1. Go to https://platform.parallel.ai
  2. Create an API key
  3. Set the environment variable:

     export PARALLEL_API_KEY="your-api-key"

  Or add it to your .env file.`
}

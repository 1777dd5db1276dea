// ABOUTME: HTTP client for the remote answer-generation and job-status endpoints
// ABOUTME: POST {question} per agent path, GET status per job ID, typed HTTP errors

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout bounds each remote call when the config sets none.
const DefaultTimeout = 30 * time.Second

// responseBodyLimit caps how much of a response body is read.
const responseBodyLimit = 1 << 20

// Answer is the answer-generation response. Only Answer is required;
// the remaining fields are displayed when present.
type Answer struct {
	Answer          string   `json:"answer"`
	FilesConsulted  []string `json:"files_consulted,omitempty"`
	ContextDocs     []string `json:"context_docs,omitempty"`
	ResponseTimeSec float64  `json:"response_time_sec,omitempty"`
}

// JobResult is the job-status response.
type JobResult struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message,omitempty"`
	Error     string          `json:"error,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Warnings  []string        `json:"warnings,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// HTTPError is a non-2xx response from the backend. Detail carries the
// JSON "detail" field when the body is parseable, the raw body otherwise.
type HTTPError struct {
	StatusCode int
	Detail     string
}

func (e *HTTPError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Detail)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client (used by tests).
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.client = client
		}
	}
}

// WithTimeout sets the per-call timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.client.Timeout = timeout
		}
	}
}

// Client calls the course backend.
type Client struct {
	baseURL    string
	statusPath string
	client     *http.Client
	logger     *slog.Logger
}

// New creates a backend client for the given base URL. statusPath is
// the job-status route prefix (e.g. "/api/status"); the job ID is
// appended as a path segment. Pass nil logger for default.
func New(baseURL, statusPath string, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		statusPath: statusPath,
		client:     &http.Client{Timeout: DefaultTimeout},
		logger:     logger.With("component", "backend"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// askRequest is the JSON body sent to an answer-generation endpoint.
type askRequest struct {
	Question string `json:"question"`
}

// Ask posts a question to the answer-generation endpoint at path and
// returns the parsed answer. Non-2xx responses return *HTTPError.
func (c *Client) Ask(ctx context.Context, path, question string) (*Answer, error) {
	body, err := json.Marshal(askRequest{Question: question})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	endpoint := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		// Transport failure: pass through so callers can tell the
		// service is unreachable rather than answering with an error.
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.parseError(resp)
	}

	var answer Answer
	if err := json.NewDecoder(io.LimitReader(resp.Body, responseBodyLimit)).Decode(&answer); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}

	c.logger.Debug("question answered",
		"path", path,
		"elapsed", time.Since(start),
		"files_consulted", len(answer.FilesConsulted))
	return &answer, nil
}

// JobStatus fetches the status of one asynchronous job.
func (c *Client) JobStatus(ctx context.Context, jobID string) (*JobResult, error) {
	endpoint := c.baseURL + c.statusPath + "/" + url.PathEscape(jobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.parseError(resp)
	}

	var result JobResult
	if err := json.NewDecoder(io.LimitReader(resp.Body, responseBodyLimit)).Decode(&result); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	return &result, nil
}

// errorEnvelope is the backend's structured error body.
type errorEnvelope struct {
	Detail string `json:"detail"`
}

// parseError builds an *HTTPError from a non-2xx response, preferring
// the JSON detail field and falling back to the raw body.
func (c *Client) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyLimit))
	detail := strings.TrimSpace(string(body))

	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && strings.TrimSpace(envelope.Detail) != "" {
		detail = strings.TrimSpace(envelope.Detail)
	}

	return &HTTPError{StatusCode: resp.StatusCode, Detail: detail}
}

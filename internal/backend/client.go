// Package backend implements the HTTP client for the pipeline backend.
//
// The approval store is transport-agnostic; this client carries the actual
// feedback and approval traffic and reports results back through the store's
// operations (done by the review coordinator, not here).
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fernlabs/gateview/internal/approval"
)

const defaultTimeout = 30 * time.Second

// FeedbackRequest is the body for submitting reviewer feedback.
type FeedbackRequest struct {
	// ID is the client-generated identifier for the submission.
	ID string `json:"id"`

	// Feedback is the reviewer's free text.
	Feedback string `json:"feedback"`

	// Attachments are optional file references.
	Attachments []approval.Attachment `json:"attachments,omitempty"`
}

// UsageSnapshot reports task-run resource usage for the footer meter.
type UsageSnapshot struct {
	TokensUsed  int64   `json:"tokens_used"`
	TokensLimit int64   `json:"tokens_limit"`
	Percent     float64 `json:"percent"`
}

// errorBody is the backend's error envelope.
type errorBody struct {
	Error string `json:"error"`
}

// Client talks to the pipeline backend over HTTP.
type Client struct {
	baseURL string
	httpc   *http.Client
	logger  *zap.Logger
}

// NewClient creates a backend client. baseURL must include the scheme, e.g.
// http://localhost:8787. A zero timeout uses the default.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("backend base URL is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid backend base URL %q: %w", baseURL, err)
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: timeout},
		logger:  logger,
	}, nil
}

// SubmitFeedback posts one reviewer submission and returns the created record.
func (c *Client) SubmitFeedback(ctx context.Context, checkpointID string, req *FeedbackRequest) (*approval.CheckpointFeedback, error) {
	if checkpointID == "" {
		return nil, fmt.Errorf("checkpoint id is required")
	}

	var created approval.CheckpointFeedback
	path := fmt.Sprintf("/api/v1/checkpoints/%s/feedback", url.PathEscape(checkpointID))
	if err := c.do(ctx, http.MethodPost, path, req, &created); err != nil {
		return nil, err
	}

	c.logger.Debug("submitted feedback",
		zap.String("checkpoint_id", checkpointID),
		zap.String("feedback_id", created.ID),
	)
	return &created, nil
}

// ListFeedback fetches all feedback recorded against a checkpoint.
func (c *Client) ListFeedback(ctx context.Context, checkpointID string) ([]approval.CheckpointFeedback, error) {
	if checkpointID == "" {
		return nil, fmt.Errorf("checkpoint id is required")
	}

	var history []approval.CheckpointFeedback
	path := fmt.Sprintf("/api/v1/checkpoints/%s/feedback", url.PathEscape(checkpointID))
	if err := c.do(ctx, http.MethodGet, path, nil, &history); err != nil {
		return nil, err
	}
	return history, nil
}

// ApproveCheckpoint signs off the checkpoint so the pipeline resumes. The
// resume itself is reported back later through the pipeline event listener.
func (c *Client) ApproveCheckpoint(ctx context.Context, checkpointID string) error {
	if checkpointID == "" {
		return fmt.Errorf("checkpoint id is required")
	}

	path := fmt.Sprintf("/api/v1/checkpoints/%s/approve", url.PathEscape(checkpointID))
	if err := c.do(ctx, http.MethodPost, path, nil, nil); err != nil {
		return err
	}

	c.logger.Info("approved checkpoint", zap.String("checkpoint_id", checkpointID))
	return nil
}

// Usage fetches the current task-run usage snapshot.
func (c *Client) Usage(ctx context.Context) (*UsageSnapshot, error) {
	var snap UsageSnapshot
	if err := c.do(ctx, http.MethodGet, "/api/v1/usage", nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// do performs one JSON round trip. A non-2xx response is returned as an error
// carrying the backend's message when one is present.
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("backend request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.errorFromResponse(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) errorFromResponse(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var eb errorBody
	if err := json.Unmarshal(data, &eb); err == nil && eb.Error != "" {
		return fmt.Errorf("backend returned %d: %s", resp.StatusCode, eb.Error)
	}
	return fmt.Errorf("backend returned %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
}

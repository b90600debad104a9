// Package feedback submits user feedback on assistant messages over the
// same HTTP stack as the chat transport.
package feedback

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/capitalize-ai/conversation-core/pkg/logger"
)

// Rating is the user's verdict on one assistant message.
type Rating string

const (
	RatingLike    Rating = "like"
	RatingDislike Rating = "dislike"
)

// Request is the feedback submission payload. Payload follows a
// server-supplied form schema and is opaque to this client.
type Request struct {
	MessageID string         `json:"message_id"`
	Feedback  Rating         `json:"feedback"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Client posts feedback to the backend.
type Client struct {
	url        string
	token      string
	httpClient *http.Client
	log        *logger.Logger
}

// NewClient creates a feedback client.
func NewClient(url, token string, httpClient *http.Client, log *logger.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{url: url, token: token, httpClient: httpClient, log: log}
}

// Submit validates and posts one feedback entry.
func (c *Client) Submit(ctx context.Context, req *Request) error {
	if req.MessageID == "" {
		return errors.New("message id is required")
	}
	if req.Feedback != RatingLike && req.Feedback != RatingDislike {
		return fmt.Errorf("invalid feedback value %q", req.Feedback)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal feedback: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to submit feedback: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 300 {
		return fmt.Errorf("feedback rejected with status %d", resp.StatusCode)
	}
	return nil
}

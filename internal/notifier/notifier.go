// Package notifier posts check-in notifications to a configured webhook. It
// runs off the queue in the worker; failures never affect check-in outcomes.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Notice describes one recorded check-in.
type Notice struct {
	RecordID    string    `json:"record_id"`
	StudentID   string    `json:"student_id"`
	BatchID     string    `json:"batch_id"`
	BatchName   string    `json:"batch_name,omitempty"`
	Institution string    `json:"institution,omitempty"`
	Day         string    `json:"day"`
	MarkedAt    time.Time `json:"marked_at"`
}

// Client delivers notices over HTTP.
type Client struct {
	WebhookURL string
	HTTP       *http.Client
	Skip       bool
}

// New creates a client. Skip short-circuits delivery for dev environments.
func New(webhookURL string, skip bool) *Client {
	return &Client{
		WebhookURL: webhookURL,
		Skip:       skip,
		HTTP:       &http.Client{Timeout: 10 * time.Second},
	}
}

// Notify posts one notice.
func (c *Client) Notify(ctx context.Context, n Notice) error {
	if c.Skip {
		return nil
	}
	if c.WebhookURL == "" {
		return fmt.Errorf("webhook url not configured")
	}

	body, _ := json.Marshal(n)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("webhook error %s: %s", resp.Status, string(respBody))
	}
	return nil
}

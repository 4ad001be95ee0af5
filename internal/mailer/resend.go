// Package mailer sends operator alerts through the Resend HTTP API.
// Alerting is best-effort throughout the service: failures are logged by
// callers and never abort a run.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultBaseURL = "https://api.resend.com"

	sendTimeout = 10 * time.Second
)

type Client struct {
	BaseURL string

	apiKey string
	from   string
	to     string
	client *http.Client
}

func NewClient(apiKey string, from string, to string) *Client {
	return &Client{
		BaseURL: defaultBaseURL,
		apiKey:  apiKey,
		from:    from,
		to:      to,
		client:  &http.Client{},
	}
}

// Configured reports whether alerting is set up at all; an unconfigured
// mailer is allowed and makes SendAlert a no-op error.
func (c *Client) Configured() bool {
	return c.apiKey != "" && c.from != "" && c.to != ""
}

func (c *Client) SendAlert(ctx context.Context, subject string, text string) error {
	if !c.Configured() {
		return fmt.Errorf("mailer not configured")
	}

	payload, err := json.Marshal(map[string]any{
		"from":    c.from,
		"to":      []string{c.to},
		"subject": subject,
		"text":    text,
	})
	if err != nil {
		return fmt.Errorf("failed to encode alert: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/emails", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send alert: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck

	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("resend responded %s: %s", resp.Status, body)
	}

	return nil
}

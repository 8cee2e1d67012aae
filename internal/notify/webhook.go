// Package notify delivers outbound notifications to a configured webhook.
// Delivery is best-effort: failures are logged and never surfaced to the
// request that triggered them.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Client posts JSON payloads to a webhook endpoint. A nil or empty-URL
// client silently discards all notifications.
type Client struct {
	url     string
	httpCli *http.Client
}

// NewClient creates a webhook client. An empty url disables delivery.
func NewClient(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		url:     url,
		httpCli: &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether a webhook URL is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.url != ""
}

// InviteNotice is the payload sent when a group invitation is issued.
type InviteNotice struct {
	Event     string `json:"event"`
	GroupName string `json:"group_name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	AcceptURL string `json:"accept_url"`
	ExpiresAt string `json:"expires_at"`
}

// SendInviteNotice posts an invitation notice. Errors are logged, not
// returned; callers fire and forget.
func (c *Client) SendInviteNotice(ctx context.Context, notice InviteNotice) {
	notice.Event = "group.invite_created"
	c.post(ctx, notice)
}

func (c *Client) post(ctx context.Context, payload any) {
	if !c.Enabled() {
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal webhook payload")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		log.Error().Err(err).Msg("Failed to build webhook request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpCli.Do(req)
	if err != nil {
		log.Warn().Err(err).Msg("Webhook delivery failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		log.Warn().
			Int("status", resp.StatusCode).
			Msg("Webhook endpoint returned non-success status")
	}
}

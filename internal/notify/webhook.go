package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"geowatch-go/internal/config"
	"geowatch-go/internal/domain"
)

// webhookPayload is the JSON body POSTed to each configured URL.
type webhookPayload struct {
	Alert                 *domain.Alert `json:"alert"`
	NotificationTimestamp time.Time     `json:"notification_timestamp"`
	Recipients            []string      `json:"recipients"`
}

// WebhookChannel POSTs alerts as JSON to every configured URL with a bounded
// timeout. Non-2xx responses count as failures; there is no automatic retry.
type WebhookChannel struct {
	cfg    config.WebhookConfig
	client *http.Client
	logger *slog.Logger
}

// NewWebhookChannel creates a webhook channel from configuration.
func NewWebhookChannel(cfg config.WebhookConfig, logger *slog.Logger) *WebhookChannel {
	return &WebhookChannel{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

// Name returns "webhook".
func (c *WebhookChannel) Name() string {
	return "webhook"
}

// Send POSTs the alert payload to each configured URL. A failing URL is
// recorded and the remaining URLs are still attempted.
func (c *WebhookChannel) Send(ctx context.Context, alert *domain.Alert, recipients []string) ChannelResult {
	result := ChannelResult{Attempted: len(c.cfg.URLs)}

	if len(c.cfg.URLs) == 0 {
		result.Errors = append(result.Errors, "webhook channel not configured: no urls")
		return result
	}

	payload := webhookPayload{
		Alert:                 alert,
		NotificationTimestamp: time.Now().UTC(),
		Recipients:            recipients,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("failed to marshal webhook payload: %v", err))
		return result
	}

	for _, url := range c.cfg.URLs {
		if err := c.post(ctx, url, body); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("webhook %s: %v", url, err))
			c.logger.Warn("webhook delivery failed",
				"url", url,
				"alertID", alert.ID,
				"error", err,
			)
			continue
		}
		result.Sent++
	}

	result.Success = result.Sent > 0
	return result
}

// post sends one request and maps non-2xx responses to errors.
func (c *WebhookChannel) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "GeoWatch/1.0")
	if c.cfg.AuthHeader != "" && c.cfg.AuthToken != "" {
		req.Header.Set(c.cfg.AuthHeader, c.cfg.AuthToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("returned status %d", resp.StatusCode)
	}

	return nil
}

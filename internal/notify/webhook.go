// Package notify delivers alerts to external webhook receivers.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/marketpulse/marketpulse/pkg/alerting"
)

// WebhookChannel posts alerts as JSON to a configured webhook URL. It works
// with Slack-compatible receivers via the top-level text field and carries the
// full alert alongside it for structured consumers.
type WebhookChannel struct {
	webhookURL string
	logger     *zap.Logger
	httpClient *http.Client
}

// NewWebhookChannel creates a webhook-backed delivery channel
func NewWebhookChannel(webhookURL string, logger *zap.Logger) *WebhookChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookChannel{
		webhookURL: webhookURL,
		logger:     logger,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type webhookPayload struct {
	Text      string            `json:"text"`
	AlertID   string            `json:"alert_id"`
	Severity  string            `json:"severity"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Source    string            `json:"source"`
	Timestamp time.Time         `json:"timestamp"`
	Tags      map[string]string `json:"tags,omitempty"`
}

// Name returns the channel name
func (c *WebhookChannel) Name() string {
	return "webhook"
}

// Send posts the alert to the webhook URL
func (c *WebhookChannel) Send(ctx context.Context, alert *alerting.Alert) error {
	if c.webhookURL == "" {
		return fmt.Errorf("webhook URL not configured")
	}

	payload := webhookPayload{
		Text:      fmt.Sprintf("[%s] %s: %s", alert.Severity, alert.Title, alert.Message),
		AlertID:   alert.ID,
		Severity:  string(alert.Severity),
		Title:     alert.Title,
		Message:   alert.Message,
		Source:    alert.Source,
		Timestamp: alert.Timestamp,
		Tags:      alert.Tags,
	}

	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.webhookURL, bytes.NewBuffer(jsonPayload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	c.logger.Info("Successfully delivered alert webhook",
		zap.String("alert_id", alert.ID),
		zap.String("severity", string(alert.Severity)),
		zap.String("source", alert.Source),
		zap.String("webhook_url", maskWebhookURL(c.webhookURL)),
	)

	return nil
}

// maskWebhookURL masks the webhook URL for logging
func maskWebhookURL(url string) string {
	if len(url) < 20 {
		return "***"
	}
	return url[:20] + "***"
}

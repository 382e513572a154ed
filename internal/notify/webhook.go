package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ezbridge/internal/core"
)

// WebhookNotifier posts a text message to a user-supplied chat webhook
// (WeCom group robot format) when a privacy transition is observed.
type WebhookNotifier struct {
	url        string
	httpClient *http.Client
}

// NewWebhookNotifier creates a webhook notifier for the given URL
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url: url,
		httpClient: &http.Client{
			Timeout: deliveryTimeout,
		},
	}
}

// Name returns the channel name
func (w *WebhookNotifier) Name() string {
	return "webhook"
}

// Notify posts the formatted change message. The response body is not
// interpreted beyond the HTTP status.
func (w *WebhookNotifier) Notify(ctx context.Context, evt core.ChangeEvent) error {
	payload := map[string]interface{}{
		"msgtype": "text",
		"text": map[string]string{
			"content": FormatChange(evt),
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// FormatChange renders the human-readable notification text
func FormatChange(evt core.ChangeEvent) string {
	ts := evt.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return fmt.Sprintf("Camera privacy mode changed\nDevice: %s\nSerial: %s\nChange: %s → %s\nTime: %s",
		evt.Name,
		evt.Serial,
		evt.OldState,
		evt.NewState,
		ts.Format("2006-01-02 15:04:05"),
	)
}

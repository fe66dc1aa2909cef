package notification

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"github.com/fuomag9/beatkeeper/internal/models"
)

const userAgent = "Beatkeeper/1.0"

// WebhookProvider sends webhook notifications
type WebhookProvider struct {
	Client *http.Client
}

func init() {
	RegisterProvider(&WebhookProvider{})
}

func (w *WebhookProvider) Name() string {
	return "webhook"
}

func (w *WebhookProvider) Send(ctx context.Context, notification *models.Notification, message *Message) error {
	url, _ := notification.Config["webhook_url"].(string)
	method, _ := notification.Config["method"].(string)
	contentType, _ := notification.Config["content_type"].(string)
	customHeaders, _ := notification.Config["headers"].(map[string]interface{})

	if url == "" {
		return fmt.Errorf("webhook_url is required")
	}
	if method == "" {
		method = http.MethodPost
	}
	if contentType == "" {
		contentType = "application/json"
	}

	payload := map[string]interface{}{
		"title":        message.Title,
		"body":         message.Body,
		"text":         FormatMessage(message),
		"monitor_id":   message.MonitorID,
		"monitor_name": message.MonitorName,
		"monitor_url":  message.MonitorURL,
		"status":       message.Status,
		"ping":         message.Ping,
		"duration":     message.Duration,
		"time":         message.Time.UTC().Format(time.RFC3339),
		"important":    message.Important,
	}

	headers := map[string]string{"Content-Type": contentType}
	for key, value := range customHeaders {
		if s, ok := value.(string); ok {
			headers[key] = s
		}
	}

	return postJSON(ctx, w.client(), method, url, payload, headers)
}

func (w *WebhookProvider) Validate(config map[string]interface{}) error {
	url, ok := config["webhook_url"].(string)
	if !ok || url == "" {
		return fmt.Errorf("webhook_url is required")
	}
	if method, ok := config["method"].(string); ok && method != "" {
		switch method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
		default:
			return fmt.Errorf("unsupported webhook method %q", method)
		}
	}
	return nil
}

func (w *WebhookProvider) client() *http.Client {
	if w.Client != nil {
		return w.Client
	}
	return &http.Client{Timeout: 10 * time.Second}
}

// postJSON sends payload and treats any non-2xx answer as a failure.
func postJSON(ctx context.Context, client *http.Client, method, url string, payload interface{}, headers map[string]string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

package notification

import (
	"context"
	"log"
	"net/http"
	"time"
)

// OpsAlerter reports failures of the monitoring system itself, such as
// heartbeats that could not be stored. It is separate from monitor
// notifications: alerts always go to the log and, when configured, to an
// operator webhook.
type OpsAlerter struct {
	webhookURL string
	client     *http.Client
}

// NewOpsAlerter creates an alerter. An empty webhookURL only logs.
func NewOpsAlerter(webhookURL string) *OpsAlerter {
	return &OpsAlerter{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Alert logs the incident and posts it to the operator webhook.
func (a *OpsAlerter) Alert(subject, detail string) {
	log.Printf("ALERT: %s: %s", subject, detail)
	if a.webhookURL == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	payload := map[string]interface{}{
		"subject": subject,
		"detail":  detail,
		"time":    time.Now().UTC().Format(time.RFC3339),
	}
	if err := postJSON(ctx, a.client, http.MethodPost, a.webhookURL, payload, nil); err != nil {
		log.Printf("notification: failed to deliver ops alert %q: %v", subject, err)
	}
}

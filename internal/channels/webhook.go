package channels

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"
)

// WebhookPayload is the JSON body posted to alert webhooks (team chat
// integrations and the like).
type WebhookPayload struct {
	Title    string `json:"title,omitempty"`
	Message  string `json:"message"`
	Event    string `json:"event,omitempty"`
	TargetID int    `json:"target_id,omitempty"`
	SentAt   string `json:"sent_at,omitempty"`
}

// PostWebhook sends a JSON payload to the provided URL. Returns the HTTP
// status code and any error.
func PostWebhook(webhookURL string, payload WebhookPayload) (int, error) {
	if webhookURL == "" {
		return 0, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	client := &http.Client{Timeout: 8 * time.Second}
	req, err := http.NewRequest(http.MethodPost, webhookURL, bytes.NewReader(b))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

// NewWebhookPayload creates a payload with SentAt stamped in RFC3339 format.
func NewWebhookPayload(title, message, event string, targetID int) WebhookPayload {
	return WebhookPayload{
		Title:    title,
		Message:  message,
		Event:    event,
		TargetID: targetID,
		SentAt:   time.Now().UTC().Format(time.RFC3339),
	}
}

package channels

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// SMSGateway posts messages to an HTTP SMS provider endpoint.
type SMSGateway struct {
	Endpoint string
	APIKey   string
	Sender   string
	client   *http.Client
}

// smsPayload is the JSON body accepted by the gateway.
type smsPayload struct {
	To      string `json:"to"`
	From    string `json:"from,omitempty"`
	Message string `json:"message"`
}

// NewSMSGateway creates a gateway client with a bounded request timeout.
func NewSMSGateway(endpoint, apiKey, sender string) *SMSGateway {
	return &SMSGateway{
		Endpoint: strings.TrimSpace(endpoint),
		APIKey:   strings.TrimSpace(apiKey),
		Sender:   strings.TrimSpace(sender),
		client:   &http.Client{Timeout: 8 * time.Second},
	}
}

// SendSMS posts one message to the gateway. A non-2xx response or transport
// failure is returned as a ChannelError.
func (g *SMSGateway) SendSMS(phone, message string) error {
	if g == nil || g.Endpoint == "" {
		return &ChannelError{Kind: "sms_unconfigured"}
	}
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return &ChannelError{Kind: "sms_no_phone"}
	}

	b, err := json.Marshal(smsPayload{To: phone, From: g.Sender, Message: message})
	if err != nil {
		return &ChannelError{Kind: "sms_encode", Err: err}
	}
	req, err := http.NewRequest(http.MethodPost, g.Endpoint, bytes.NewReader(b))
	if err != nil {
		return &ChannelError{Kind: "sms_request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if g.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.APIKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return &ChannelError{Kind: "sms_transport", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ChannelError{Kind: "sms_status", Err: fmt.Errorf("gateway returned status %d", resp.StatusCode)}
	}
	return nil
}

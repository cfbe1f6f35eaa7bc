// Package channels implements the pluggable notification dispatch paths used
// by the alert fan-out: SMS through an HTTP gateway, email through per-admin
// SMTP accounts, and generic JSON webhooks.
package channels

import (
	"errors"
	"fmt"
)

// SMSSender dispatches a short text message to a phone number.
type SMSSender interface {
	SendSMS(phone, message string) error
}

// EmailSender dispatches an email using the supplied account credentials.
type EmailSender interface {
	SendEmail(account SMTPAccount, to, subject, body string) error
}

// SMTPAccount holds the per-admin SMTP credentials used for alert email.
type SMTPAccount struct {
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Secure      string `json:"secure"` // "ssl", "tls", or "" for plain
	Username    string `json:"username"`
	Password    string `json:"-"`
	FromAddress string `json:"from_address"`
	DisplayName string `json:"display_name"`
}

// Configured reports whether the account carries enough data to attempt a send.
func (a SMTPAccount) Configured() bool {
	return a.Host != "" && a.Port > 0 && a.FromAddress != ""
}

// ChannelError wraps a provider-specific dispatch failure. The fan-out treats
// these opaquely; Kind is the only field surfaced in FanOutResult.
type ChannelError struct {
	Kind string
	Err  error
}

func (e *ChannelError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("channel error: %s", e.Kind)
	}
	return fmt.Sprintf("channel error (%s): %v", e.Kind, e.Err)
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}

// ErrorKind extracts the kind label from a dispatch error for reporting.
// Non-ChannelError values are reported under a generic kind.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	var ce *ChannelError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return "channel_error"
}

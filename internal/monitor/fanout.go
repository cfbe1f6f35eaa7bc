package monitor

import (
	"fmt"
	"strings"
	"time"

	"fleetmon/internal/channels"
	"fleetmon/internal/models"
)

// dispatchAlert resolves the tenant's recipients and settings and runs the
// fan-out for one transition event. Best-effort; every failure is logged to
// the alert log and otherwise ignored.
func (m *Monitor) dispatchAlert(tenantID int, event models.TransitionEvent) {
	if m.recipients == nil {
		return
	}

	setting, err := m.recipients.AlertSetting(tenantID)
	if err != nil {
		m.alertLogf("Alert setting lookup failed for tenant %d: %v", tenantID, err)
		return
	}
	if setting != nil && !setting.Enabled {
		m.alertLogf("Alerts disabled for tenant %d; %s transition for %s not dispatched", tenantID, event.Current, event.DisplayName)
		return
	}

	if m.alertLimiter != nil && !m.alertLimiter.Allow() {
		m.alertLogf("Alert for %s (%s -> %s) suppressed by rate limit", event.DisplayName, event.Previous, event.Current)
		return
	}

	recipients, err := m.recipients.ListRecipients(tenantID)
	if err != nil {
		m.alertLogf("Recipient lookup failed for tenant %d: %v", tenantID, err)
		return
	}

	result := m.Notify(event, setting, recipients)
	m.alertLogf("Alert for %s (%s -> %s): %d/%d channel attempts succeeded",
		event.DisplayName, event.Previous, event.Current, result.Succeeded(), result.Attempted())

	m.postAlertWebhook(event)
}

// Notify fans one transition event out to the recipients. Each recipient's
// channels are attempted independently: an opt-out skips the channel, a
// failure is recorded and never blocks other recipients. No retries; at most
// one attempt per recipient per channel per event.
func (m *Monitor) Notify(event models.TransitionEvent, setting *models.AlertSetting, recipients []models.Recipient) models.FanOutResult {
	result := models.FanOutResult{
		TargetID:   event.TargetID,
		Event:      event.Current,
		DispatchAt: time.Now(),
	}

	message := m.alertMessage(event)
	subject := strings.TrimSpace(m.NotifySubject)
	if subject == "" {
		subject = fmt.Sprintf("Server %s", formatStatusLabel(event.Current))
	}

	for _, recipient := range recipients {
		result.Outcomes = append(result.Outcomes, m.sendSMS(recipient, setting, message))
		result.Outcomes = append(result.Outcomes, m.sendEmail(recipient, setting, subject, message))
	}
	return result
}

func (m *Monitor) sendSMS(recipient models.Recipient, setting *models.AlertSetting, message string) models.DispatchOutcome {
	outcome := models.DispatchOutcome{AdminID: recipient.AdminID, Channel: models.ChannelSMS}
	if recipient.SMSOptOut || m.sms == nil {
		return outcome
	}

	phone := strings.TrimSpace(recipient.Phone)
	if phone == "" && setting != nil {
		phone = strings.TrimSpace(setting.AlertPhone)
	}

	outcome.Attempted = true
	if err := m.sms.SendSMS(phone, message); err != nil {
		outcome.ErrorKind = channels.ErrorKind(err)
		m.alertLogf("SMS to admin %d failed: %v", recipient.AdminID, err)
		return outcome
	}
	outcome.Succeeded = true
	return outcome
}

func (m *Monitor) sendEmail(recipient models.Recipient, setting *models.AlertSetting, subject, message string) models.DispatchOutcome {
	outcome := models.DispatchOutcome{AdminID: recipient.AdminID, Channel: models.ChannelEmail}
	if recipient.EmailOptOut || m.mailer == nil {
		return outcome
	}

	to := ""
	if setting != nil {
		to = strings.TrimSpace(setting.AlertEmail)
	}
	if to == "" {
		to = strings.TrimSpace(recipient.Email)
	}

	outcome.Attempted = true
	if m.recipients == nil {
		// No credential source wired means no account to send from.
		outcome.ErrorKind = "email_credentials"
		return outcome
	}
	account, err := m.recipients.SMTPAccountFor(recipient.AdminID)
	if err != nil {
		outcome.ErrorKind = "email_credentials"
		m.alertLogf("SMTP account lookup for admin %d failed: %v", recipient.AdminID, err)
		return outcome
	}
	if err := m.mailer.SendEmail(account, to, subject, message); err != nil {
		outcome.ErrorKind = channels.ErrorKind(err)
		m.alertLogf("Email to admin %d failed: %v", recipient.AdminID, err)
		return outcome
	}
	outcome.Succeeded = true
	return outcome
}

// alertMessage renders the template for the event's classification, falling
// back to a fixed text when no template is configured.
func (m *Monitor) alertMessage(event models.TransitionEvent) string {
	tokens := map[string]string{
		"target_name": event.DisplayName,
		"endpoint":    event.Endpoint,
		"previous":    string(event.Previous),
		"status":      string(event.Current),
		"timestamp":   event.OccurredAt.UTC().Format(time.RFC3339),
	}

	var tmpl string
	switch event.Current {
	case models.StatusOffline:
		tmpl = m.NotifyMsgOffline
	case models.StatusOverloaded:
		tmpl = m.NotifyMsgOverloaded
	case models.StatusOnline:
		tmpl = m.NotifyMsgOnline
	}

	msg := renderTemplate(tmpl, tokens)
	if strings.TrimSpace(msg) == "" {
		msg = fmt.Sprintf("fleetmon informs: server %s (%s) is %s.", event.DisplayName, event.Endpoint, event.Current)
	}
	return msg
}

// postAlertWebhook posts a JSON copy of the alert to the default webhook.
// Best-effort; errors are logged and otherwise ignored.
func (m *Monitor) postAlertWebhook(event models.TransitionEvent) {
	wh := strings.TrimSpace(m.DefaultWebhook)
	if wh == "" {
		return
	}
	payload := channels.NewWebhookPayload(
		fmt.Sprintf("%s %s", event.DisplayName, formatStatusLabel(event.Current)),
		m.alertMessage(event),
		string(event.Current),
		event.TargetID,
	)
	status, err := channels.PostWebhook(wh, payload)
	if err != nil || status < 200 || status >= 300 {
		m.alertLogf("Webhook notify failed (status=%d): %v", status, err)
	}
}

func (m *Monitor) alertLogf(format string, args ...interface{}) {
	if m.AlertLog == nil {
		return
	}
	m.AlertLog.Write(fmt.Sprintf(format, args...))
}

package monitor

import (
	"errors"
	"sync"
	"testing"
	"time"

	"fleetmon/internal/channels"
	"fleetmon/internal/models"
)

type fakeSMS struct {
	mu    sync.Mutex
	sent  []string
	fails map[string]error
}

func (f *fakeSMS) SendSMS(phone, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.fails[phone]; ok {
		return err
	}
	f.sent = append(f.sent, phone)
	return nil
}

type fakeMailer struct {
	mu    sync.Mutex
	sent  []string
	fails map[string]error
}

func (f *fakeMailer) SendEmail(account channels.SMTPAccount, to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.fails[to]; ok {
		return err
	}
	f.sent = append(f.sent, to)
	return nil
}

type fakeRecipientSource struct {
	recipients []models.Recipient
	setting    *models.AlertSetting
	accounts   map[int]channels.SMTPAccount
}

func (f *fakeRecipientSource) ListRecipients(tenantID int) ([]models.Recipient, error) {
	return f.recipients, nil
}

func (f *fakeRecipientSource) AlertSetting(tenantID int) (*models.AlertSetting, error) {
	return f.setting, nil
}

func (f *fakeRecipientSource) SMTPAccountFor(adminID int) (channels.SMTPAccount, error) {
	if f.accounts == nil {
		return channels.SMTPAccount{}, nil
	}
	return f.accounts[adminID], nil
}

func offlineEvent() models.TransitionEvent {
	return models.TransitionEvent{
		TargetID:    1,
		DisplayName: "panel-a",
		Endpoint:    "http://a.example",
		Previous:    models.StatusOnline,
		Current:     models.StatusOffline,
		OccurredAt:  time.Now(),
	}
}

func outcomeFor(t *testing.T, result models.FanOutResult, adminID int, channel models.Channel) models.DispatchOutcome {
	t.Helper()
	for _, o := range result.Outcomes {
		if o.AdminID == adminID && o.Channel == channel {
			return o
		}
	}
	t.Fatalf("no outcome for admin %d channel %s", adminID, channel)
	return models.DispatchOutcome{}
}

func TestNotifyHonorsOptOuts(t *testing.T) {
	sms := &fakeSMS{}
	mailer := &fakeMailer{}
	m := &Monitor{
		sms:    sms,
		mailer: mailer,
		recipients: &fakeRecipientSource{
			setting: &models.AlertSetting{TenantID: 1, Enabled: true},
		},
	}

	recipients := []models.Recipient{
		{AdminID: 1, Phone: "111", Email: "one@example.com"},
		{AdminID: 2, Phone: "222", Email: "two@example.com", SMSOptOut: true},
		{AdminID: 3, Phone: "333", Email: "three@example.com", EmailOptOut: true},
	}

	result := m.Notify(offlineEvent(), &models.AlertSetting{Enabled: true}, recipients)

	if len(result.Outcomes) != 6 {
		t.Fatalf("expected an outcome per recipient per channel, got %d", len(result.Outcomes))
	}

	// Opted-out channels are recorded as not attempted.
	if o := outcomeFor(t, result, 2, models.ChannelSMS); o.Attempted {
		t.Fatal("SMS opt-out should not be attempted")
	}
	if o := outcomeFor(t, result, 3, models.ChannelEmail); o.Attempted {
		t.Fatal("email opt-out should not be attempted")
	}

	// Everyone else got both channels.
	if result.Attempted() != 4 {
		t.Fatalf("expected 4 attempts, got %d", result.Attempted())
	}
	if result.Succeeded() != 4 {
		t.Fatalf("expected 4 successes, got %d", result.Succeeded())
	}
	if len(sms.sent) != 2 {
		t.Fatalf("expected 2 SMS sends, got %v", sms.sent)
	}
	if len(mailer.sent) != 2 {
		t.Fatalf("expected 2 email sends, got %v", mailer.sent)
	}
}

func TestNotifyIsolatesChannelFailures(t *testing.T) {
	sms := &fakeSMS{
		fails: map[string]error{"111": &channels.ChannelError{Kind: "sms_transport", Err: errors.New("gateway down")}},
	}
	mailer := &fakeMailer{}
	m := &Monitor{
		sms:        sms,
		mailer:     mailer,
		recipients: &fakeRecipientSource{},
	}

	recipients := []models.Recipient{
		{AdminID: 1, Phone: "111", Email: "one@example.com"},
		{AdminID: 2, Phone: "222", Email: "two@example.com"},
	}

	result := m.Notify(offlineEvent(), nil, recipients)

	// The failed SMS is recorded with its error kind.
	failed := outcomeFor(t, result, 1, models.ChannelSMS)
	if !failed.Attempted || failed.Succeeded {
		t.Fatalf("expected attempted-but-failed SMS outcome, got %+v", failed)
	}
	if failed.ErrorKind != "sms_transport" {
		t.Fatalf("expected sms_transport error kind, got %q", failed.ErrorKind)
	}

	// The same recipient's email and the other recipient's channels all went out.
	if o := outcomeFor(t, result, 1, models.ChannelEmail); !o.Succeeded {
		t.Fatal("email for recipient 1 should still succeed")
	}
	if o := outcomeFor(t, result, 2, models.ChannelSMS); !o.Succeeded {
		t.Fatal("SMS for recipient 2 should still succeed")
	}
	if result.Attempted() != 4 {
		t.Fatalf("expected 4 attempts, got %d", result.Attempted())
	}
	if result.Succeeded() != 3 {
		t.Fatalf("expected 3 successes, got %d", result.Succeeded())
	}
}

func TestNotifyFallsBackToTenantContacts(t *testing.T) {
	sms := &fakeSMS{}
	mailer := &fakeMailer{}
	m := &Monitor{
		sms:        sms,
		mailer:     mailer,
		recipients: &fakeRecipientSource{},
	}

	setting := &models.AlertSetting{Enabled: true, AlertPhone: "900", AlertEmail: "ops@example.com"}
	recipients := []models.Recipient{{AdminID: 1, Email: "one@example.com"}}

	m.Notify(offlineEvent(), setting, recipients)

	if len(sms.sent) != 1 || sms.sent[0] != "900" {
		t.Fatalf("expected tenant alert phone fallback, got %v", sms.sent)
	}
	// Tenant alert address takes precedence over the personal one.
	if len(mailer.sent) != 1 || mailer.sent[0] != "ops@example.com" {
		t.Fatalf("expected tenant alert email, got %v", mailer.sent)
	}
}

func TestNotifyWithoutChannelsDoesNothing(t *testing.T) {
	m := &Monitor{recipients: &fakeRecipientSource{}}
	result := m.Notify(offlineEvent(), nil, []models.Recipient{{AdminID: 1, Phone: "111", Email: "a@example.com"}})

	if result.Attempted() != 0 {
		t.Fatalf("expected no attempts with no channels wired, got %d", result.Attempted())
	}
	if len(result.Outcomes) != 2 {
		t.Fatalf("expected outcomes to still be recorded, got %d", len(result.Outcomes))
	}
}

func TestNotifyWithoutRecipientSourceRecordsCredentialFailure(t *testing.T) {
	sms := &fakeSMS{}
	mailer := &fakeMailer{}
	m := &Monitor{sms: sms, mailer: mailer}

	result := m.Notify(offlineEvent(), nil, []models.Recipient{
		{AdminID: 1, Phone: "111", Email: "one@example.com"},
	})

	// SMS does not depend on stored credentials and still goes out.
	if o := outcomeFor(t, result, 1, models.ChannelSMS); !o.Succeeded {
		t.Fatalf("expected SMS to succeed, got %+v", o)
	}
	email := outcomeFor(t, result, 1, models.ChannelEmail)
	if !email.Attempted || email.Succeeded {
		t.Fatalf("expected attempted-but-failed email outcome, got %+v", email)
	}
	if email.ErrorKind != "email_credentials" {
		t.Fatalf("expected email_credentials error kind, got %q", email.ErrorKind)
	}
	if len(mailer.sent) != 0 {
		t.Fatalf("no email should reach the mailer, got %v", mailer.sent)
	}
}

func TestNotifyRendersTemplate(t *testing.T) {
	mailer := &fakeMailer{}
	m := &Monitor{
		mailer:           mailer,
		recipients:       &fakeRecipientSource{},
		NotifyMsgOffline: "{{target_name}} ({{endpoint}}) went {{status}} from {{previous}}",
	}

	msg := m.alertMessage(offlineEvent())
	want := "panel-a (http://a.example) went offline from online"
	if msg != want {
		t.Fatalf("expected %q, got %q", want, msg)
	}
}

func TestDispatchAlertRespectsDisabledSetting(t *testing.T) {
	sms := &fakeSMS{}
	m := &Monitor{
		sms: sms,
		recipients: &fakeRecipientSource{
			setting:    &models.AlertSetting{TenantID: 1, Enabled: false},
			recipients: []models.Recipient{{AdminID: 1, Phone: "111"}},
		},
	}

	m.dispatchAlert(1, offlineEvent())

	if len(sms.sent) != 0 {
		t.Fatalf("expected no dispatch while alerts are disabled, got %v", sms.sent)
	}
}

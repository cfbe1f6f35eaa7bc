package channels

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// SMTPMailer sends alert email through the recipient owner's SMTP account.
// Accounts arrive per-send; the mailer itself only carries the dial timeout.
type SMTPMailer struct {
	DialTimeout time.Duration
}

// NewSMTPMailer returns a mailer with the default dial timeout.
func NewSMTPMailer() *SMTPMailer {
	return &SMTPMailer{DialTimeout: 10 * time.Second}
}

// SendEmail delivers one message. "ssl" accounts use implicit TLS on connect;
// anything else dials plain and upgrades via STARTTLS when the server offers it.
func (m *SMTPMailer) SendEmail(account SMTPAccount, to, subject, body string) error {
	if !account.Configured() {
		return &ChannelError{Kind: "email_unconfigured"}
	}
	to = strings.TrimSpace(to)
	if to == "" {
		return &ChannelError{Kind: "email_no_address"}
	}

	addr := net.JoinHostPort(account.Host, strconv.Itoa(account.Port))
	timeout := m.DialTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client, err := m.dial(account, addr, timeout)
	if err != nil {
		return &ChannelError{Kind: "email_connect", Err: err}
	}
	defer client.Close()

	if account.Username != "" {
		auth := smtp.PlainAuth("", account.Username, account.Password, account.Host)
		if err := client.Auth(auth); err != nil {
			return &ChannelError{Kind: "email_auth", Err: err}
		}
	}

	if err := client.Mail(account.FromAddress); err != nil {
		return &ChannelError{Kind: "email_send", Err: err}
	}
	if err := client.Rcpt(to); err != nil {
		return &ChannelError{Kind: "email_send", Err: err}
	}
	w, err := client.Data()
	if err != nil {
		return &ChannelError{Kind: "email_send", Err: err}
	}
	msg := buildMessage(account, to, subject, body)
	if _, err := w.Write([]byte(msg)); err != nil {
		w.Close()
		return &ChannelError{Kind: "email_send", Err: err}
	}
	if err := w.Close(); err != nil {
		return &ChannelError{Kind: "email_send", Err: err}
	}
	return client.Quit()
}

func (m *SMTPMailer) dial(account SMTPAccount, addr string, timeout time.Duration) (*smtp.Client, error) {
	if strings.EqualFold(account.Secure, "ssl") {
		dialer := &net.Dialer{Timeout: timeout}
		conn, err := tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: account.Host})
		if err != nil {
			return nil, err
		}
		return smtp.NewClient(conn, account.Host)
	}

	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	client, err := smtp.NewClient(conn, account.Host)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: account.Host}); err != nil {
			client.Close()
			return nil, err
		}
	}
	return client, nil
}

func buildMessage(account SMTPAccount, to, subject, body string) string {
	from := account.FromAddress
	if account.DisplayName != "" {
		from = fmt.Sprintf("%s <%s>", account.DisplayName, account.FromAddress)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")
	return b.String()
}

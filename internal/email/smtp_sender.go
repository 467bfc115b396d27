package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// SMTPSender sends mail through a single SMTP relay using stdlib
// net/smtp with PLAIN auth. It ignores ctx cancellation mid-send —
// net/smtp has no context-aware API — but honors it before dialing.
type SMTPSender struct {
	host string
	port string
	auth smtp.Auth
}

// NewSMTPSender builds an SMTPSender authenticating with PLAIN auth
// against host:port.
func NewSMTPSender(host, port, username, password string) *SMTPSender {
	return &SMTPSender{
		host: host,
		port: port,
		auth: smtp.PlainAuth("", username, password, host),
	}
}

// Send dispatches one HTML email via the configured relay.
func (s *SMTPSender) Send(ctx context.Context, from, to, subject, html string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := buildMIMEMessage(from, to, subject, html)
	addr := fmt.Sprintf("%s:%s", s.host, s.port)

	if err := smtp.SendMail(addr, s.auth, from, []string{to}, msg); err != nil {
		return fmt.Errorf("email: send failed: %w", err)
	}

	return nil
}

func buildMIMEMessage(from, to, subject, html string) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(html)

	return []byte(b.String())
}

var _ Sender = (*SMTPSender)(nil)

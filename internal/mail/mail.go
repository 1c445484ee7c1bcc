// Package mail is the outbound email boundary. The pipeline composes
// newsletters; a Sender only delivers them.
package mail

import (
	"fmt"
	"log/slog"
	"mime/quotedprintable"
	"net/smtp"
	"strings"

	"github.com/briefwire/briefwire/internal/digest"
)

// Sender delivers one composed newsletter to one recipient.
type Sender interface {
	Send(to string, nl digest.Newsletter) error
}

// SMTPSender delivers newsletters through an SMTP relay.
type SMTPSender struct {
	addr string
	from string
	auth smtp.Auth
}

// NewSMTPSender configures delivery through host:port as from. Username and
// password may be empty for an unauthenticated relay.
func NewSMTPSender(addr, from, username, password string) *SMTPSender {
	var auth smtp.Auth
	if username != "" {
		host := addr
		if i := strings.LastIndex(addr, ":"); i >= 0 {
			host = addr[:i]
		}
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &SMTPSender{addr: addr, from: from, auth: auth}
}

func (s *SMTPSender) Send(to string, nl digest.Newsletter) error {
	msg, err := buildMessage(s.from, to, nl)
	if err != nil {
		return err
	}
	if err := smtp.SendMail(s.addr, s.auth, s.from, []string{to}, msg); err != nil {
		return fmt.Errorf("sending mail to %s: %w", to, err)
	}
	return nil
}

// buildMessage assembles a multipart/alternative message with text and HTML
// bodies.
func buildMessage(from, to string, nl digest.Newsletter) ([]byte, error) {
	const boundary = "briefwire-alt"

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", nl.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary)

	for _, part := range []struct {
		contentType string
		body        string
	}{
		{"text/plain; charset=utf-8", nl.Text},
		{"text/html; charset=utf-8", nl.HTML},
	} {
		fmt.Fprintf(&b, "--%s\r\n", boundary)
		fmt.Fprintf(&b, "Content-Type: %s\r\n", part.contentType)
		b.WriteString("Content-Transfer-Encoding: quoted-printable\r\n\r\n")
		w := quotedprintable.NewWriter(&b)
		if _, err := w.Write([]byte(part.body)); err != nil {
			return nil, fmt.Errorf("encoding message body: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("encoding message body: %w", err)
		}
		b.WriteString("\r\n")
	}
	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return []byte(b.String()), nil
}

// LogSender writes newsletters to the log instead of delivering them. Used
// when no SMTP relay is configured.
type LogSender struct {
	Logger *slog.Logger
}

func (s *LogSender) Send(to string, nl digest.Newsletter) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("newsletter delivery skipped, no mail relay configured",
		"to", to,
		"subject", nl.Subject,
		"items", len(nl.Items))
	return nil
}

package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"gopkg.in/gomail.v2"
)

// SMTPSender delivers email through a plain SMTP relay. Used as the
// fallback channel when the API sender fails.
// Params: relay host, port, and account credentials.
// Returns: email sender dialing per message.
type SMTPSender struct {
	host     string
	port     int
	username string
	password string
}

// NewSMTPSenderFromEnv reads relay settings from the environment.
// Params: SMTP_SERVER, SMTP_PORT, SMTP_USERNAME, SMTP_PASSWORD.
// Returns: sender, or an error naming the missing variable.
func NewSMTPSenderFromEnv() (*SMTPSender, error) {
	host := os.Getenv("SMTP_SERVER")
	if host == "" {
		return nil, fmt.Errorf("SMTP_SERVER not set")
	}
	username := os.Getenv("SMTP_USERNAME")
	if username == "" {
		return nil, fmt.Errorf("SMTP_USERNAME not set")
	}
	password := os.Getenv("SMTP_PASSWORD")
	if password == "" {
		return nil, fmt.Errorf("SMTP_PASSWORD not set")
	}
	port := 587
	if text := os.Getenv("SMTP_PORT"); text != "" {
		parsed, err := strconv.Atoi(text)
		if err != nil {
			return nil, fmt.Errorf("SMTP_PORT %q: %w", text, err)
		}
		port = parsed
	}
	return &SMTPSender{host: host, port: port, username: username, password: password}, nil
}

// Send delivers one email over the relay.
// Params: context (the dial itself is not cancelable mid-flight) and
// email payload.
// Returns: dial or delivery error.
func (s *SMTPSender) Send(ctx context.Context, msg Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.username)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)
	if len(msg.Attachment) > 0 {
		name := msg.Filename
		if name == "" {
			name = "snapshot.jpg"
		}
		m.Attach(name, gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(msg.Attachment)
			return err
		}))
	}

	dialer := gomail.NewDialer(s.host, s.port, s.username, s.password)
	if err := dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

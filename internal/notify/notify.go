// Package notify contains the outbound alert channels: email through the
// Gmail API with an SMTP relay fallback, and voice calls through Twilio.
// Senders are small and interface-shaped so the dispatch worker can be
// tested without credentials.
package notify

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime/multipart"
	"net/textproto"
)

// Email is one outbound alert email.
// Params: recipient, subject, plain-text body, and optional JPEG snapshot.
// Returns: payload accepted by any EmailSender.
type Email struct {
	To         string
	Subject    string
	Body       string
	Attachment []byte
	Filename   string
}

// EmailSender delivers one email.
// Params: context and email payload.
// Returns: transport error when delivery fails.
type EmailSender interface {
	Send(ctx context.Context, msg Email) error
}

// Caller places one voice call with a spoken announcement.
// Params: context, destination number, and announcement text.
// Returns: transport error when the call cannot be placed.
type Caller interface {
	Call(ctx context.Context, to, announcement string) error
}

// buildMIME renders one RFC 2822 message with an optional attachment.
// Params: sender, email payload.
// Returns: full message bytes ready for raw transports.
func buildMIME(from string, msg Email) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", msg.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", writer.Boundary())

	textHeader := textproto.MIMEHeader{}
	textHeader.Set("Content-Type", "text/plain; charset=UTF-8")
	textPart, err := writer.CreatePart(textHeader)
	if err != nil {
		return nil, fmt.Errorf("text part: %w", err)
	}
	if _, err := textPart.Write([]byte(msg.Body)); err != nil {
		return nil, fmt.Errorf("text part: %w", err)
	}

	if len(msg.Attachment) > 0 {
		name := msg.Filename
		if name == "" {
			name = "snapshot.jpg"
		}
		fileHeader := textproto.MIMEHeader{}
		fileHeader.Set("Content-Type", "image/jpeg")
		fileHeader.Set("Content-Transfer-Encoding", "base64")
		fileHeader.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		filePart, err := writer.CreatePart(fileHeader)
		if err != nil {
			return nil, fmt.Errorf("attachment part: %w", err)
		}
		if _, err := filePart.Write(encodeBase64Wrapped(msg.Attachment)); err != nil {
			return nil, fmt.Errorf("attachment part: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close mime: %w", err)
	}
	return buf.Bytes(), nil
}

// encodeBase64Wrapped encodes bytes with RFC 2045 line wrapping.
// Params: raw attachment bytes.
// Returns: base64 text in 76-character lines.
func encodeBase64Wrapped(data []byte) []byte {
	encoded := base64.StdEncoding.EncodeToString(data)
	var buf bytes.Buffer
	for len(encoded) > 76 {
		buf.WriteString(encoded[:76])
		buf.WriteString("\r\n")
		encoded = encoded[76:]
	}
	buf.WriteString(encoded)
	return buf.Bytes()
}

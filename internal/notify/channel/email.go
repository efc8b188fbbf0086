package channel

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/smtp"
	"net/textproto"
)

// Email sends a plain-text message over SMTP, the same SMTP-settings-driven
// notification shape as a scheduled-job mailer: host/port/credentials plus
// from/to addresses carried in the channel's config, no external mail API.
type Email struct{}

func NewEmail() *Email { return &Email{} }

func (e *Email) Send(ctx context.Context, config map[string]any, title, body string, priority int) error {
	host, err := stringField(config, "smtp_host")
	if err != nil {
		return err
	}
	port, err := stringField(config, "smtp_port")
	if err != nil {
		return err
	}
	from, err := stringField(config, "from")
	if err != nil {
		return err
	}
	to, err := stringField(config, "to")
	if err != nil {
		return err
	}

	var auth smtp.Auth
	if username, ok := config["smtp_username"].(string); ok && username != "" {
		password, _ := config["smtp_password"].(string)
		auth = smtp.PlainAuth("", username, password, host)
	}

	msg, err := buildMessage(from, to, title, body)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%s", host, port)
	if err := smtp.SendMail(addr, auth, from, []string{to}, msg); err != nil {
		return fmt.Errorf("email: sendmail to %s: %w", to, err)
	}
	return nil
}

// buildMessage assembles a multipart/mixed MIME message with standard
// RFC 5322 headers and a single text/plain part, using
// mime/multipart.Writer for the boundary and part framing.
func buildMessage(from, to, subject, body string) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s\r\nTo: %s\r\nSubject: %s\r\n", from, to, subject)
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%s\r\n\r\n", writer.Boundary())

	part, err := writer.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/plain; charset=utf-8"}})
	if err != nil {
		return nil, err
	}
	if _, err := part.Write([]byte(body)); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

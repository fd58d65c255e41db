package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net/mail"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/industrialcatalog/catalog-server/internal/config"
)

var ErrDisabled = errors.New("email delivery disabled")

// Message is a rendered email ready for a transport.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Receipt describes an accepted message. PreviewURL is only set by
// transports that keep a local copy.
type Receipt struct {
	MessageID  string
	PreviewURL string
}

type Notifier interface {
	Send(ctx context.Context, msg Message) (Receipt, error)
}

// New picks the transport for cfg. Production requires SMTP; the preview
// transport is never returned there.
func New(cfg *config.Config) (Notifier, error) {
	from := mail.Address{Name: cfg.SMTPFromName, Address: cfg.SMTPFrom}

	if cfg.SMTPConfigured() {
		log.Info().Str("host", cfg.SMTPHost).Int("port", cfg.SMTPPort).Bool("tls", cfg.SMTPUseTLS).Msg("email transport: smtp")
		return NewSMTPNotifier(SMTPOptions{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPass,
			From:     from,
			UseTLS:   cfg.SMTPUseTLS,
			Timeout:  config.SMTPTimeout,
		})
	}

	if cfg.IsProduction() {
		return nil, fmt.Errorf("smtp is not configured")
	}

	if cfg.MailPreviewDir == "" {
		log.Warn().Msg("email transport: disabled (no SMTP and no MAIL_PREVIEW_DIR)")
		return NewDisabledNotifier("no email transport configured"), nil
	}

	if from.Address == "" {
		from.Address = "no-reply@localhost"
	}
	log.Info().Str("dir", cfg.MailPreviewDir).Msg("email transport: preview")
	return NewPreviewNotifier(cfg.MailPreviewDir, from)
}

func newMessageID(from string) string {
	domain := "localhost"
	if i := strings.LastIndex(from, "@"); i >= 0 && i < len(from)-1 {
		domain = from[i+1:]
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}

// buildMIME encodes msg as multipart/alternative with a plain text and an
// HTML part.
func buildMIME(from mail.Address, msg Message, messageID string, date time.Time) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	parts := []struct {
		contentType string
		content     string
	}{
		{"text/plain; charset=UTF-8", msg.Text},
		{"text/html; charset=UTF-8", msg.HTML},
	}
	for _, p := range parts {
		if p.content == "" {
			continue
		}
		w, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {p.contentType},
			"Content-Transfer-Encoding": {"8bit"},
		})
		if err != nil {
			return nil, err
		}
		if _, err := w.Write([]byte(normalizeNewlines(p.content))); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	to := mail.Address{Address: msg.To}
	headers := []string{
		"From: " + from.String(),
		"To: " + to.String(),
		"Subject: " + mime.QEncoding.Encode("utf-8", msg.Subject),
		"Date: " + date.Format(time.RFC1123Z),
		"Message-ID: " + messageID,
		"MIME-Version: 1.0",
		fmt.Sprintf("Content-Type: multipart/alternative; boundary=%q", mw.Boundary()),
	}

	var out bytes.Buffer
	out.WriteString(strings.Join(headers, "\r\n"))
	out.WriteString("\r\n\r\n")
	out.Write(body.Bytes())
	return out.Bytes(), nil
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\n", "\r\n")
}

package notify

import (
	"context"
	"fmt"
	"net/mail"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// PreviewNotifier is the development transport. Each message is written as
// an .eml file and the receipt points at it. Never selected in production.
type PreviewNotifier struct {
	dir  string
	from mail.Address
	now  func() time.Time
}

func NewPreviewNotifier(dir string, from mail.Address) (*PreviewNotifier, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve preview dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create preview dir: %w", err)
	}
	return &PreviewNotifier{dir: abs, from: from, now: time.Now}, nil
}

func (n *PreviewNotifier) Send(ctx context.Context, msg Message) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	if strings.TrimSpace(msg.To) == "" {
		return Receipt{}, fmt.Errorf("to email is required")
	}

	now := n.now()
	messageID := newMessageID(n.from.Address)
	raw, err := buildMIME(n.from, msg, messageID, now)
	if err != nil {
		return Receipt{}, fmt.Errorf("build message: %w", err)
	}

	name := fmt.Sprintf("%s-%s.eml", now.UTC().Format("20060102T150405Z"), uuid.NewString()[:8])
	path := filepath.Join(n.dir, name)
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return Receipt{}, fmt.Errorf("write preview: %w", err)
	}

	preview := (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
	log.Info().Str("to", msg.To).Str("preview", preview).Msg("email written to preview transport")

	return Receipt{MessageID: messageID, PreviewURL: preview}, nil
}

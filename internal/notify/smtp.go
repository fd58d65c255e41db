package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

type SMTPOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	From     mail.Address
	// UseTLS dials with implicit TLS (port 465). Otherwise STARTTLS is used
	// whenever the server offers it.
	UseTLS  bool
	Timeout time.Duration
}

// SMTPNotifier delivers mail through an SMTP relay.
type SMTPNotifier struct {
	opts SMTPOptions
	now  func() time.Time
}

func NewSMTPNotifier(opts SMTPOptions) (*SMTPNotifier, error) {
	if strings.TrimSpace(opts.Host) == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if strings.TrimSpace(opts.From.Address) == "" {
		return nil, fmt.Errorf("smtp from is required")
	}
	if opts.Port == 0 {
		opts.Port = 587
	}
	if opts.Timeout == 0 {
		opts.Timeout = 15 * time.Second
	}
	return &SMTPNotifier{opts: opts, now: time.Now}, nil
}

func (n *SMTPNotifier) Send(ctx context.Context, msg Message) (Receipt, error) {
	if strings.TrimSpace(msg.To) == "" {
		return Receipt{}, fmt.Errorf("to email is required")
	}

	messageID := newMessageID(n.opts.From.Address)
	raw, err := buildMIME(n.opts.From, msg, messageID, n.now())
	if err != nil {
		return Receipt{}, fmt.Errorf("build message: %w", err)
	}

	if err := n.deliver(ctx, msg.To, raw); err != nil {
		return Receipt{}, fmt.Errorf("smtp send: %w", err)
	}
	return Receipt{MessageID: messageID}, nil
}

func (n *SMTPNotifier) deliver(ctx context.Context, to string, raw []byte) error {
	ctx, cancel := context.WithTimeout(ctx, n.opts.Timeout)
	defer cancel()

	addr := net.JoinHostPort(n.opts.Host, strconv.Itoa(n.opts.Port))
	tlsConfig := &tls.Config{ServerName: n.opts.Host, MinVersion: tls.VersionTLS12}

	var conn net.Conn
	var err error
	if n.opts.UseTLS {
		d := &tls.Dialer{Config: tlsConfig}
		conn, err = d.DialContext(ctx, "tcp", addr)
	} else {
		var d net.Dialer
		conn, err = d.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, n.opts.Host)
	if err != nil {
		return err
	}
	defer client.Close()

	if !n.opts.UseTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				return err
			}
		}
	}

	if n.opts.Username != "" {
		auth := smtp.PlainAuth("", n.opts.Username, n.opts.Password, n.opts.Host)
		if err := client.Auth(auth); err != nil {
			return err
		}
	}

	if err := client.Mail(n.opts.From.Address); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(raw); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

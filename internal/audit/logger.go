package audit

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventAccountCheck        EventType = "account_check"
	EventCodeIssue           EventType = "code_issue"
	EventCodeDeliveryFailure EventType = "code_delivery_failure"
	EventCodeVerifySuccess   EventType = "code_verify_success"
	EventCodeVerifyFailure   EventType = "code_verify_failure"
	EventLogout              EventType = "logout"
	EventRateLimitExceed     EventType = "rate_limit_exceeded"
	EventCSRFFailure         EventType = "csrf_failure"
	EventAuthFailure         EventType = "auth_failure"
)

type Event struct {
	Type      EventType
	AdminID   int64
	Email     string
	IP        string
	UserAgent string
	Details   map[string]interface{}
}

func Log(ctx context.Context, event Event) {
	logger := log.Ctx(ctx)
	if logger.GetLevel() == zerolog.Disabled {
		logger = &log.Logger
	}

	l := logger.With().
		Str("audit", "security").
		Str("event_type", string(event.Type)).
		Time("timestamp", time.Now()).
		Logger()

	if event.AdminID != 0 {
		l = l.With().Int64("admin_id", event.AdminID).Logger()
	}
	if event.Email != "" {
		l = l.With().Str("email", event.Email).Logger()
	}
	if event.IP != "" {
		l = l.With().Str("ip", event.IP).Logger()
	}
	if event.UserAgent != "" {
		l = l.With().Str("user_agent", event.UserAgent).Logger()
	}

	logEvent := l.Info()
	for k, v := range event.Details {
		logEvent = addField(logEvent, k, v)
	}
	logEvent.Msg("security audit event")
}

func addField(e *zerolog.Event, key string, value interface{}) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return e.Str(key, v)
	case int:
		return e.Int(key, v)
	case int64:
		return e.Int64(key, v)
	case bool:
		return e.Bool(key, v)
	case time.Time:
		return e.Time(key, v)
	default:
		return e.Interface(key, v)
	}
}

func LogFromRequest(r *http.Request, event Event) {
	event.IP = ClientIP(r)
	event.UserAgent = r.UserAgent()
	Log(r.Context(), event)
}

// ClientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// peer address. Any port is dropped.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return stripPort(strings.TrimSpace(first))
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return stripPort(strings.TrimSpace(realIP))
	}
	return stripPort(r.RemoteAddr)
}

func stripPort(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

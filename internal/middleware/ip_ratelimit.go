package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/industrialcatalog/catalog-server/internal/audit"
	apperrors "github.com/industrialcatalog/catalog-server/internal/errors"
	"github.com/industrialcatalog/catalog-server/internal/metrics"
	"github.com/industrialcatalog/catalog-server/internal/service"
)

// IPRateLimitMiddleware caps requests per client address using the shared
// Redis sliding window, so the cap holds across replicas.
type IPRateLimitMiddleware struct {
	limiter *service.RateLimiter
	limit   int
	window  time.Duration
	prefix  string
	metrics *metrics.Registry
	now     func() time.Time
}

func NewIPRateLimitMiddleware(
	limiter *service.RateLimiter,
	limit int,
	window time.Duration,
	prefix string,
	m *metrics.Registry,
) *IPRateLimitMiddleware {
	return &IPRateLimitMiddleware{
		limiter: limiter,
		limit:   limit,
		window:  window,
		prefix:  prefix,
		metrics: m,
		now:     time.Now,
	}
}

func (m *IPRateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := audit.ClientIP(r)

		allowed, resetAt := m.limiter.CheckLimit(r.Context(), "ip:"+m.prefix+":"+ip, m.limit, m.window)
		if !allowed {
			secondsLeft := int(resetAt.Sub(m.now()).Seconds()) + 1
			if secondsLeft < 1 {
				secondsLeft = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secondsLeft))
			m.metrics.ObserveRateLimited("ip_" + m.prefix)
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventRateLimitExceed,
				Details: map[string]interface{}{"scope": "ip", "prefix": m.prefix},
			})
			writeError(w, apperrors.RateLimitExceeded())
			return
		}

		next.ServeHTTP(w, r)
	})
}

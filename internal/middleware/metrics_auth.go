package middleware

import (
	"net/http"
	"strings"

	"github.com/industrialcatalog/catalog-server/internal/audit"
	apperrors "github.com/industrialcatalog/catalog-server/internal/errors"
	"github.com/industrialcatalog/catalog-server/internal/util"
)

// MetricsAuthMiddleware requires a static bearer token on the scrape endpoint.
type MetricsAuthMiddleware struct {
	token string
}

func NewMetricsAuthMiddleware(token string) *MetricsAuthMiddleware {
	return &MetricsAuthMiddleware{token: token}
}

func (m *MetricsAuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		presented, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || !util.ConstantTimeEqual(presented, m.token) {
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventAuthFailure,
				Details: map[string]interface{}{"reason": "metrics_token"},
			})
			writeError(w, apperrors.Unauthorized("Unauthorized"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

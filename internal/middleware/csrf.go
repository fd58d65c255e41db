package middleware

import (
	"net/http"
	"time"

	"github.com/industrialcatalog/catalog-server/internal/audit"
	"github.com/industrialcatalog/catalog-server/internal/util"
)

const (
	CSRFCookieName   = "csrf_token"
	CSRFHeaderName   = "X-CSRF-Token"
	CSRFCookieMaxAge = 24 * time.Hour
)

// CSRFMiddleware applies the double-submit cookie check to state-changing
// requests that rely on the admin session cookie. Bearer-only requests
// carry no ambient credentials and pass through.
type CSRFMiddleware struct {
	isProduction bool
}

func NewCSRFMiddleware(isProduction bool) *CSRFMiddleware {
	return &CSRFMiddleware{isProduction: isProduction}
}

func (m *CSRFMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(CSRFCookieName)
		if err != nil || cookie.Value == "" {
			token, err := util.GenerateToken()
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{
					"error": "Failed to generate security token",
				})
				return
			}
			m.setCSRFCookie(w, token)
			cookie = &http.Cookie{Value: token}
		}

		if isSafeMethod(r.Method) || !usesSessionCookie(r) {
			next.ServeHTTP(w, r)
			return
		}

		headerToken := r.Header.Get(CSRFHeaderName)
		if headerToken == "" || !util.ConstantTimeEqual(cookie.Value, headerToken) {
			reason := "mismatch"
			if headerToken == "" {
				reason = "missing"
			}
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventCSRFFailure,
				Details: map[string]interface{}{"reason": reason, "path": r.URL.Path},
			})
			writeJSON(w, http.StatusForbidden, map[string]string{
				"error": "Invalid CSRF token",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *CSRFMiddleware) setCSRFCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(CSRFCookieMaxAge.Seconds()),
		HttpOnly: false, // read by the admin UI and echoed in the header
		Secure:   m.isProduction,
		SameSite: http.SameSiteLaxMode,
	})
}

func usesSessionCookie(r *http.Request) bool {
	cookie, err := r.Cookie(AdminSessionCookie)
	return err == nil && cookie.Value != ""
}

func isSafeMethod(method string) bool {
	return method == http.MethodGet ||
		method == http.MethodHead ||
		method == http.MethodOptions
}

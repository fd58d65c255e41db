package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/industrialcatalog/catalog-server/internal/audit"
	apperrors "github.com/industrialcatalog/catalog-server/internal/errors"
	"github.com/industrialcatalog/catalog-server/internal/service"
)

type contextKey string

const AdminPrincipalContextKey contextKey = "adminPrincipal"

func GetAdminPrincipal(ctx context.Context) *service.AdminPrincipal {
	if principal, ok := ctx.Value(AdminPrincipalContextKey).(*service.AdminPrincipal); ok {
		return principal
	}
	return nil
}

func WithAdminPrincipal(ctx context.Context, principal *service.AdminPrincipal) context.Context {
	return context.WithValue(ctx, AdminPrincipalContextKey, principal)
}

type TokenParser interface {
	Parse(token string) (*service.AdminPrincipal, error)
}

// AdminAuthMiddleware admits requests carrying a valid admin session token,
// either in the session cookie or as a Bearer header.
type AdminAuthMiddleware struct {
	tokens TokenParser
}

func NewAdminAuthMiddleware(tokens TokenParser) *AdminAuthMiddleware {
	return &AdminAuthMiddleware{tokens: tokens}
}

func (m *AdminAuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			writeError(w, apperrors.Unauthorized("Missing authentication token"))
			return
		}

		principal, err := m.tokens.Parse(token)
		if err != nil {
			log.Debug().Err(err).Msg("admin auth: token rejected")
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventAuthFailure,
				Details: map[string]interface{}{"reason": "invalid_token"},
			})
			writeError(w, apperrors.InvalidToken("Invalid or expired session"))
			return
		}

		next.ServeHTTP(w, r.WithContext(WithAdminPrincipal(r.Context(), principal)))
	})
}

func extractToken(r *http.Request) string {
	if cookie, err := r.Cookie(AdminSessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	return ""
}

package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/industrialcatalog/catalog-server/internal/audit"
	apperrors "github.com/industrialcatalog/catalog-server/internal/errors"
	"github.com/industrialcatalog/catalog-server/internal/metrics"
	"github.com/industrialcatalog/catalog-server/internal/middleware"
	"github.com/industrialcatalog/catalog-server/internal/model"
	"github.com/industrialcatalog/catalog-server/internal/repository"
	"github.com/industrialcatalog/catalog-server/internal/service"
	"github.com/industrialcatalog/catalog-server/internal/util"
)

const sessionCookiePath = "/api/admin"

type Authenticator interface {
	CheckAccount(ctx context.Context, email string) (service.CheckResult, error)
	IssueCode(ctx context.Context, adminID int64, email string) (service.IssueResult, error)
	VerifyCode(ctx context.Context, adminID int64, code string) (service.VerifyResult, error)
}

type SessionTokens interface {
	middleware.TokenParser
	Issue(admin model.AdminProfile) (token string, expiresAt time.Time, err error)
}

type AuthHandler struct {
	auth         Authenticator
	tokens       SessionTokens
	admins       repository.AdminRepository
	limiter      service.SignInLimiter
	metrics      *metrics.Registry
	csrf         func(http.Handler) http.Handler
	isProduction bool
}

func NewAuthHandler(
	auth Authenticator,
	tokens SessionTokens,
	admins repository.AdminRepository,
	limiter service.SignInLimiter,
	m *metrics.Registry,
	isProduction bool,
) *AuthHandler {
	return &AuthHandler{
		auth:         auth,
		tokens:       tokens,
		admins:       admins,
		limiter:      limiter,
		metrics:      m,
		csrf:         middleware.NewCSRFMiddleware(isProduction).Handler,
		isProduction: isProduction,
	}
}

func (h *AuthHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/check", h.Check)
	r.Post("/send-code", h.SendCode)
	r.Post("/verify-code", h.VerifyCode)

	r.Group(func(r chi.Router) {
		r.Use(h.csrf)
		r.Post("/logout", h.Logout)
		r.With(middleware.NewAdminAuthMiddleware(h.tokens).Handler).Get("/me", h.Me)
	})

	return r
}

func (h *AuthHandler) Check(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		writeError(w, apperrors.MissingRequired("email"))
		return
	}
	if !util.IsValidEmail(email) {
		writeError(w, apperrors.InvalidInput("email", "not a valid address"))
		return
	}

	result, err := h.auth.CheckAccount(r.Context(), email)
	if err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("account check failed")
		writeError(w, apperrors.Internal("Could not check account, please retry"))
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:    audit.EventAccountCheck,
		Email:   util.MaskEmail(email),
		Details: map[string]interface{}{"result": string(result.Status)},
	})

	switch result.Status {
	case service.AccountFound:
		writeJSON(w, http.StatusOK, map[string]any{
			"exists": true,
			"admin":  result.Account.Summary(),
		})
	case service.AccountDeactivated:
		writeError(w, apperrors.AccountDeactivated())
	default:
		writeJSON(w, http.StatusOK, map[string]any{"exists": false})
	}
}

func (h *AuthHandler) SendCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AdminID int64  `json:"adminId"`
		Email   string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.AdminID <= 0 {
		writeError(w, apperrors.MissingRequired("adminId"))
		return
	}
	if req.Email == "" {
		writeError(w, apperrors.MissingRequired("email"))
		return
	}

	if allowed, resetAt := h.limiter.AllowSendCode(r.Context(), req.AdminID); !allowed {
		h.rejectRateLimited(w, r, "send_code", req.AdminID, resetAt)
		return
	}

	result, err := h.auth.IssueCode(r.Context(), req.AdminID, req.Email)
	if err != nil {
		log.Ctx(r.Context()).Error().Err(err).Int64("adminId", req.AdminID).Msg("code issue failed")
		writeError(w, apperrors.Internal("Could not send code, please retry"))
		return
	}

	switch result.Status {
	case service.IssueSent:
		audit.LogFromRequest(r, audit.Event{Type: audit.EventCodeIssue, AdminID: req.AdminID})
		resp := map[string]any{
			"sent":      true,
			"expiresAt": formatTime(result.ExpiresAt),
		}
		if result.PreviewURL != "" && !h.isProduction {
			resp["previewUrl"] = result.PreviewURL
		}
		writeJSON(w, http.StatusOK, resp)
	case service.IssueDeliveryFailed:
		audit.LogFromRequest(r, audit.Event{Type: audit.EventCodeDeliveryFailure, AdminID: req.AdminID})
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"sent":  false,
			"code":  apperrors.ErrCodeDeliveryFailed,
			"error": apperrors.DeliveryFailed().Message,
		})
	default:
		writeJSON(w, http.StatusNotFound, map[string]any{
			"sent":  false,
			"code":  apperrors.ErrCodeAccountNotFound,
			"error": apperrors.AccountNotFound().Message,
		})
	}
}

func (h *AuthHandler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AdminID int64  `json:"adminId"`
		Code    string `json:"code"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if req.AdminID > 0 {
		if allowed, resetAt := h.limiter.AllowVerifyCode(r.Context(), req.AdminID, audit.ClientIP(r)); !allowed {
			h.rejectRateLimited(w, r, "verify_code", req.AdminID, resetAt)
			return
		}
	}

	result, err := h.auth.VerifyCode(r.Context(), req.AdminID, strings.TrimSpace(req.Code))
	if err != nil {
		log.Ctx(r.Context()).Error().Err(err).Int64("adminId", req.AdminID).Msg("code verification failed")
		writeError(w, apperrors.Internal("Could not verify code, please retry"))
		return
	}

	if result.Status != service.VerifyAuthenticated {
		audit.LogFromRequest(r, audit.Event{Type: audit.EventCodeVerifyFailure, AdminID: req.AdminID})
		writeError(w, apperrors.InvalidCode())
		return
	}

	token, expiresAt, err := h.tokens.Issue(*result.Admin)
	if err != nil {
		log.Ctx(r.Context()).Error().Err(err).Int64("adminId", req.AdminID).Msg("session token issue failed")
		writeError(w, apperrors.Internal("Could not start session, please retry"))
		return
	}

	audit.LogFromRequest(r, audit.Event{Type: audit.EventCodeVerifySuccess, AdminID: result.Admin.ID})

	middleware.SetSessionCookie(w, middleware.AdminSessionCookie, token, sessionCookiePath, time.Until(expiresAt), h.isProduction)
	writeJSON(w, http.StatusOK, map[string]any{
		"admin":     result.Admin,
		"token":     token,
		"expiresAt": formatTime(expiresAt),
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var adminID int64
	if cookie, err := r.Cookie(middleware.AdminSessionCookie); err == nil && cookie.Value != "" {
		if principal, err := h.tokens.Parse(cookie.Value); err == nil {
			adminID = principal.AdminID
		}
	}

	audit.LogFromRequest(r, audit.Event{Type: audit.EventLogout, AdminID: adminID})
	middleware.ClearSessionCookie(w, middleware.AdminSessionCookie, sessionCookiePath, h.isProduction)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetAdminPrincipal(r.Context())
	if principal == nil {
		writeError(w, apperrors.Unauthorized("Unauthorized"))
		return
	}

	admin, err := h.admins.FindByID(r.Context(), principal.AdminID)
	if err != nil {
		log.Ctx(r.Context()).Error().Err(err).Int64("adminId", principal.AdminID).Msg("failed to load admin")
		writeError(w, apperrors.Database(err))
		return
	}
	if admin == nil {
		audit.LogFromRequest(r, audit.Event{
			Type:    audit.EventAuthFailure,
			AdminID: principal.AdminID,
			Details: map[string]interface{}{"reason": "admin_missing"},
		})
		writeError(w, apperrors.NotFound("Admin"))
		return
	}
	if !admin.IsActive {
		audit.LogFromRequest(r, audit.Event{
			Type:    audit.EventAuthFailure,
			AdminID: principal.AdminID,
			Details: map[string]interface{}{"reason": "admin_deactivated"},
		})
		writeError(w, apperrors.Forbidden("Admin account is deactivated"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"admin":            admin.Profile(),
		"lastLogin":        admin.LastLogin,
		"sessionExpiresAt": formatTime(principal.ExpiresAt),
	})
}

func (h *AuthHandler) rejectRateLimited(w http.ResponseWriter, r *http.Request, action string, adminID int64, resetAt time.Time) {
	h.metrics.ObserveRateLimited(action)
	audit.LogFromRequest(r, audit.Event{
		Type:    audit.EventRateLimitExceed,
		AdminID: adminID,
		Details: map[string]interface{}{"action": action},
	})

	retryAfter := int(time.Until(resetAt).Seconds()) + 1
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	writeError(w, apperrors.RateLimitExceeded().WithDetails(map[string]int{"retryAfter": retryAfter}))
}

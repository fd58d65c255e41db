package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/industrialcatalog/catalog-server/internal/database"
	"github.com/industrialcatalog/catalog-server/internal/metrics"
	"github.com/industrialcatalog/catalog-server/internal/model"
	"github.com/industrialcatalog/catalog-server/internal/notify"
	"github.com/industrialcatalog/catalog-server/internal/repository"
	"github.com/industrialcatalog/catalog-server/internal/util"
)

// TestBypassCode is issued to the configured test address instead of a
// random code. Random draws never produce it.
const TestBypassCode = "123456"

const (
	DefaultCodeTTL         = 10 * time.Minute
	DefaultMaxMintAttempts = 32
)

var (
	// ErrMintExhausted means no unused code was found within the attempt cap.
	ErrMintExhausted = errors.New("could not mint an unused sign-in code")
	// ErrAdminVanished means the session matched but its administrator row is gone.
	ErrAdminVanished = errors.New("administrator disappeared during verification")

	errCodeConsumed = errors.New("sign-in code already consumed")
)

type AccountStatus string

const (
	AccountFound       AccountStatus = "found"
	AccountNotFound    AccountStatus = "not_found"
	AccountDeactivated AccountStatus = "deactivated"
)

type CheckResult struct {
	Status AccountStatus
	// Account is only set for AccountFound.
	Account *model.Admin
}

type IssueStatus string

const (
	IssueSent           IssueStatus = "sent"
	IssueAdminNotFound  IssueStatus = "admin_not_found"
	IssueDeliveryFailed IssueStatus = "delivery_failed"
)

type IssueResult struct {
	Status    IssueStatus
	ExpiresAt time.Time
	MessageID string
	// PreviewURL is set by the development mail transport only.
	PreviewURL string
}

type VerifyStatus string

const (
	VerifyAuthenticated VerifyStatus = "authenticated"
	VerifyInvalid       VerifyStatus = "invalid"
)

type VerifyResult struct {
	Status VerifyStatus
	Admin  *model.AdminProfile
}

// TxRunner runs fn inside a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn database.TxFunc) error
}

type OTPConfig struct {
	CodeTTL         time.Duration
	MaxMintAttempts int
	// TestEmail receives TestBypassCode. Empty disables the bypass.
	TestEmail string
	AppName   string
}

type OTPOption func(*OTPService)

func WithClock(now func() time.Time) OTPOption {
	return func(s *OTPService) { s.now = now }
}

func WithCodeGenerator(g CodeGenerator) OTPOption {
	return func(s *OTPService) { s.codes = g }
}

func WithMetrics(m *metrics.Registry) OTPOption {
	return func(s *OTPService) { s.metrics = m }
}

// OTPService runs the emailed one-time code sign-in for administrators.
// It keeps no state between calls.
type OTPService struct {
	db       TxRunner
	admins   repository.AdminRepository
	sessions repository.OTPSessionRepository
	notifier notify.Notifier
	codes    CodeGenerator
	metrics  *metrics.Registry
	now      func() time.Time
	cfg      OTPConfig
}

func NewOTPService(
	db TxRunner,
	admins repository.AdminRepository,
	sessions repository.OTPSessionRepository,
	notifier notify.Notifier,
	cfg OTPConfig,
	opts ...OTPOption,
) *OTPService {
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = DefaultCodeTTL
	}
	if cfg.MaxMintAttempts <= 0 {
		cfg.MaxMintAttempts = DefaultMaxMintAttempts
	}

	s := &OTPService{
		db:       db,
		admins:   admins,
		sessions: sessions,
		notifier: notifier,
		codes:    RandomCodeGenerator{},
		now:      time.Now,
		cfg:      cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CheckAccount looks up an administrator by exact email.
func (s *OTPService) CheckAccount(ctx context.Context, email string) (CheckResult, error) {
	if email == "" {
		s.metrics.ObserveAccountCheck(string(AccountNotFound))
		return CheckResult{Status: AccountNotFound}, nil
	}

	admin, err := s.admins.FindByEmail(ctx, email)
	if err != nil {
		s.metrics.ObserveAccountCheck("error")
		return CheckResult{}, fmt.Errorf("find admin by email: %w", err)
	}

	var result CheckResult
	switch {
	case admin == nil:
		result = CheckResult{Status: AccountNotFound}
	case !admin.IsActive:
		result = CheckResult{Status: AccountDeactivated}
	default:
		result = CheckResult{Status: AccountFound, Account: admin}
	}

	s.metrics.ObserveAccountCheck(string(result.Status))
	return result, nil
}

// IssueCode mints a code for adminID, stores it over any previous one and
// emails it. The row stays stored even when delivery fails.
func (s *OTPService) IssueCode(ctx context.Context, adminID int64, email string) (IssueResult, error) {
	admin, err := s.admins.FindByID(ctx, adminID)
	if err != nil {
		s.metrics.ObserveCodeIssued("error")
		return IssueResult{}, fmt.Errorf("find admin: %w", err)
	}
	if admin == nil || !admin.IsActive || admin.Email != email {
		log.Warn().Int64("adminId", adminID).Str("email", util.MaskEmail(email)).Msg("code requested for unknown, inactive or mismatched admin")
		s.metrics.ObserveCodeIssued(string(IssueAdminNotFound))
		return IssueResult{Status: IssueAdminNotFound}, nil
	}

	now := s.now()
	expiresAt := now.Add(s.cfg.CodeTTL)

	code, err := s.storeCode(ctx, admin, now, expiresAt)
	if err != nil {
		s.metrics.ObserveCodeIssued("error")
		return IssueResult{}, err
	}

	msg, err := notify.RenderCode(notify.CodeEmail{
		AppName: s.cfg.AppName,
		To:      admin.Email,
		Code:    code,
		TTL:     s.cfg.CodeTTL,
	})
	if err != nil {
		s.metrics.ObserveCodeIssued("error")
		return IssueResult{}, fmt.Errorf("render code email: %w", err)
	}

	receipt, err := s.notifier.Send(ctx, msg)
	if err != nil {
		log.Error().Err(err).Int64("adminId", admin.ID).Msg("failed to deliver sign-in code")
		s.metrics.ObserveCodeIssued(string(IssueDeliveryFailed))
		return IssueResult{Status: IssueDeliveryFailed, ExpiresAt: expiresAt}, nil
	}

	log.Info().
		Int64("adminId", admin.ID).
		Str("code", util.MaskCode(code)).
		Time("expiresAt", expiresAt).
		Msg("sign-in code issued")
	s.metrics.ObserveCodeIssued(string(IssueSent))

	return IssueResult{
		Status:     IssueSent,
		ExpiresAt:  expiresAt,
		MessageID:  receipt.MessageID,
		PreviewURL: receipt.PreviewURL,
	}, nil
}

// storeCode picks a code and upserts it. Random codes already held by an
// active session are redrawn, as are draws that lose the race to another
// writer, up to MaxMintAttempts.
func (s *OTPService) storeCode(ctx context.Context, admin *model.Admin, now, expiresAt time.Time) (string, error) {
	params := model.UpsertOTPSessionParams{
		AdminID:   admin.ID,
		ExpiresAt: expiresAt,
		Now:       now,
	}

	if s.cfg.TestEmail != "" && admin.Email == s.cfg.TestEmail {
		params.Code = TestBypassCode
		if err := s.sessions.Upsert(ctx, params); err != nil {
			return "", fmt.Errorf("store test code: %w", err)
		}
		log.Warn().Int64("adminId", admin.ID).Msg("issued fixed test sign-in code")
		return TestBypassCode, nil
	}

	for attempt := 1; attempt <= s.cfg.MaxMintAttempts; attempt++ {
		code, err := s.codes.Generate()
		if err != nil {
			return "", err
		}
		if code == TestBypassCode {
			continue
		}

		inUse, err := s.sessions.IsCodeActive(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check code in use: %w", err)
		}
		if inUse {
			log.Debug().Int("attempt", attempt).Msg("drawn code already active, redrawing")
			continue
		}

		params.Code = code
		err = s.sessions.Upsert(ctx, params)
		if errors.Is(err, repository.ErrCodeInUse) {
			log.Debug().Int("attempt", attempt).Msg("code taken concurrently, redrawing")
			continue
		}
		if err != nil {
			return "", fmt.Errorf("store code: %w", err)
		}
		return code, nil
	}

	log.Error().Int64("adminId", admin.ID).Int("attempts", s.cfg.MaxMintAttempts).Msg("sign-in code mint exhausted")
	return "", ErrMintExhausted
}

// VerifyCode accepts code for adminID once. Every rejection is the same
// VerifyInvalid result regardless of cause.
func (s *OTPService) VerifyCode(ctx context.Context, adminID int64, code string) (VerifyResult, error) {
	invalid := func() (VerifyResult, error) {
		s.metrics.ObserveCodeVerification(string(VerifyInvalid))
		return VerifyResult{Status: VerifyInvalid}, nil
	}
	fail := func(err error) (VerifyResult, error) {
		s.metrics.ObserveCodeVerification("error")
		return VerifyResult{}, err
	}

	if adminID <= 0 || code == "" {
		return invalid()
	}

	session, err := s.sessions.FindByAdminID(ctx, adminID)
	if err != nil {
		return fail(fmt.Errorf("find session: %w", err))
	}

	now := s.now()
	if session == nil || !session.Accepts(now) || !util.ConstantTimeEqual(session.Code, code) {
		log.Info().Int64("adminId", adminID).Msg("sign-in code rejected")
		return invalid()
	}

	admin, err := s.admins.FindByID(ctx, adminID)
	if err != nil {
		return fail(fmt.Errorf("find admin: %w", err))
	}
	if admin == nil {
		return fail(fmt.Errorf("admin %d: %w", adminID, ErrAdminVanished))
	}
	if !admin.IsActive {
		log.Warn().Int64("adminId", adminID).Msg("sign-in code presented for deactivated admin")
		return invalid()
	}

	err = s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		consumed, err := s.sessions.WithTx(tx).Deactivate(ctx, adminID, code, now)
		if err != nil {
			return fmt.Errorf("deactivate session: %w", err)
		}
		if !consumed {
			return errCodeConsumed
		}
		if err := s.admins.WithTx(tx).TouchLastLogin(ctx, adminID, now); err != nil {
			return fmt.Errorf("touch last login: %w", err)
		}
		return nil
	})
	if errors.Is(err, errCodeConsumed) {
		log.Info().Int64("adminId", adminID).Msg("sign-in code consumed by a concurrent request")
		return invalid()
	}
	if err != nil {
		return fail(err)
	}

	admin.LastLogin = &now
	profile := admin.Profile()

	log.Info().Int64("adminId", adminID).Msg("admin signed in")
	s.metrics.ObserveCodeVerification(string(VerifyAuthenticated))
	return VerifyResult{Status: VerifyAuthenticated, Admin: &profile}, nil
}

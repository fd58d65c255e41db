package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/industrialcatalog/catalog-server/internal/database"
	"github.com/industrialcatalog/catalog-server/internal/model"
)

// ErrCodeInUse is returned by Upsert when another active session already
// holds the same code.
var ErrCodeInUse = errors.New("session code already in use")

const otpSessionColumns = `id, user_id, session_code, is_active, expires_at, created_at, updated_at`

// OTPSessionRepository is the code store: one row per administrator in
// admin_sessions, overwritten on every issue.
type OTPSessionRepository interface {
	Upsert(ctx context.Context, params model.UpsertOTPSessionParams) error
	FindByAdminID(ctx context.Context, adminID int64) (*model.OTPSession, error)
	IsCodeActive(ctx context.Context, code string) (bool, error)
	// Deactivate flips the row to inactive only if it is still active,
	// unexpired and holds code. It reports whether this call did the flip.
	Deactivate(ctx context.Context, adminID int64, code string, now time.Time) (bool, error)
	DeleteStale(ctx context.Context, now time.Time) (int64, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) OTPSessionRepository
}

type otpSessionRepo struct {
	db database.DBTX
}

func NewOTPSessionRepository(db *sqlx.DB) OTPSessionRepository {
	return &otpSessionRepo{db: db}
}

func (r *otpSessionRepo) WithTx(tx *sqlx.Tx) OTPSessionRepository {
	return &otpSessionRepo{db: tx}
}

func (r *otpSessionRepo) Upsert(ctx context.Context, params model.UpsertOTPSessionParams) error {
	var query string
	switch database.DialectOf(r.db) {
	case database.DialectMySQL:
		query = `
			INSERT INTO admin_sessions (user_id, session_code, is_active, expires_at, created_at, updated_at)
			VALUES (?, ?, TRUE, ?, ?, ?)
			ON DUPLICATE KEY UPDATE
				session_code = VALUES(session_code),
				is_active = TRUE,
				expires_at = VALUES(expires_at),
				updated_at = VALUES(updated_at)
		`
	default:
		query = `
			INSERT INTO admin_sessions (user_id, session_code, is_active, expires_at, created_at, updated_at)
			VALUES (?, ?, TRUE, ?, ?, ?)
			ON CONFLICT (user_id) DO UPDATE SET
				session_code = excluded.session_code,
				is_active = TRUE,
				expires_at = excluded.expires_at,
				updated_at = excluded.updated_at
		`
	}

	now := params.Now.UTC()
	_, err := r.db.ExecContext(ctx, r.db.Rebind(query),
		params.AdminID, params.Code, params.ExpiresAt.UTC(), now, now)
	if database.IsUniqueViolation(err) {
		return ErrCodeInUse
	}
	return err
}

func (r *otpSessionRepo) FindByAdminID(ctx context.Context, adminID int64) (*model.OTPSession, error) {
	return findOne[model.OTPSession](ctx, r.db, `
		SELECT `+otpSessionColumns+` FROM admin_sessions WHERE user_id = ?
	`, adminID)
}

// IsCodeActive reports whether any active row currently holds code.
func (r *otpSessionRepo) IsCodeActive(ctx context.Context, code string) (bool, error) {
	var count int
	err := r.db.GetContext(ctx, &count, r.db.Rebind(`
		SELECT COUNT(*) FROM admin_sessions WHERE session_code = ? AND is_active = TRUE
	`), code)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *otpSessionRepo) Deactivate(ctx context.Context, adminID int64, code string, now time.Time) (bool, error) {
	now = now.UTC()
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE admin_sessions
		SET is_active = FALSE, updated_at = ?
		WHERE user_id = ? AND session_code = ? AND is_active = TRUE AND expires_at > ?
	`), now, adminID, code, now)
	return affectedExactlyOne(result, err)
}

// DeleteStale removes consumed rows and rows whose code has expired.
func (r *otpSessionRepo) DeleteStale(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`
		DELETE FROM admin_sessions WHERE is_active = FALSE OR expires_at <= ?
	`), now.UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

package model

import (
	"time"
)

// OTPSession is the single sign-in code row held for an administrator.
type OTPSession struct {
	ID        int64     `db:"id" json:"id"`
	AdminID   int64     `db:"user_id" json:"adminId"`
	Code      string    `db:"session_code" json:"-"`
	IsActive  bool      `db:"is_active" json:"isActive"`
	ExpiresAt time.Time `db:"expires_at" json:"expiresAt"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Accepts reports whether the session is still usable at now.
func (s *OTPSession) Accepts(now time.Time) bool {
	return s.IsActive && now.Before(s.ExpiresAt)
}

type UpsertOTPSessionParams struct {
	AdminID   int64
	Code      string
	ExpiresAt time.Time
	Now       time.Time
}

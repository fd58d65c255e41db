package model

import (
	"time"
)

type AdminRole string

const (
	AdminRoleAdmin      AdminRole = "admin"
	AdminRoleSuperAdmin AdminRole = "super_admin"
)

func (r AdminRole) Valid() bool {
	return r == AdminRoleAdmin || r == AdminRoleSuperAdmin
}

type Admin struct {
	ID            int64      `db:"id" json:"id"`
	Email         string     `db:"email" json:"email"`
	Role          AdminRole  `db:"role" json:"role"`
	FirstName     string     `db:"first_name" json:"firstName"`
	LastName      string     `db:"last_name" json:"lastName"`
	Phone         *string    `db:"phone" json:"phone,omitempty"`
	IsActive      bool       `db:"is_active" json:"isActive"`
	EmailVerified bool       `db:"email_verified" json:"emailVerified"`
	CreatedAt     time.Time  `db:"created_at" json:"createdAt"`
	LastLogin     *time.Time `db:"last_login" json:"lastLogin,omitempty"`
}

// Profile is the public view returned after a successful sign-in.
func (a *Admin) Profile() AdminProfile {
	return AdminProfile{
		ID:        a.ID,
		Email:     a.Email,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Phone:     a.Phone,
		Role:      a.Role,
	}
}

// Summary is the account view returned by the email lookup. It carries no
// code or session data.
func (a *Admin) Summary() AccountSummary {
	return AccountSummary{
		ID:            a.ID,
		Email:         a.Email,
		FirstName:     a.FirstName,
		LastName:      a.LastName,
		Phone:         a.Phone,
		Role:          a.Role,
		IsActive:      a.IsActive,
		EmailVerified: a.EmailVerified,
		CreatedAt:     a.CreatedAt.UTC(),
		LastLogin:     utcPtr(a.LastLogin),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

type AccountSummary struct {
	ID            int64      `json:"id"`
	Email         string     `json:"email"`
	FirstName     string     `json:"firstName"`
	LastName      string     `json:"lastName"`
	Phone         *string    `json:"phone,omitempty"`
	Role          AdminRole  `json:"role"`
	IsActive      bool       `json:"isActive"`
	EmailVerified bool       `json:"emailVerified"`
	CreatedAt     time.Time  `json:"createdAt"`
	LastLogin     *time.Time `json:"lastLogin"`
}

type AdminProfile struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Phone     *string   `json:"phone,omitempty"`
	Role      AdminRole `json:"role"`
}

type CreateAdminParams struct {
	Email         string
	Role          AdminRole
	FirstName     string
	LastName      string
	Phone         *string
	IsActive      bool
	EmailVerified bool
	CreatedAt     time.Time
}

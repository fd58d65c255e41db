package database

import (
	"context"
	"fmt"
	"strings"
)

var postgresMigrations = []string{
	`CREATE TABLE IF NOT EXISTS admins (
		id BIGSERIAL PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		role TEXT NOT NULL DEFAULT 'admin',
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		phone TEXT,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		email_verified BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_login TIMESTAMPTZ
	)`,

	`CREATE TABLE IF NOT EXISTS admin_sessions (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL UNIQUE REFERENCES admins(id) ON DELETE CASCADE,
		session_code TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		expires_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE UNIQUE INDEX IF NOT EXISTS idx_admin_sessions_active_code
		ON admin_sessions(session_code) WHERE is_active`,
	`CREATE INDEX IF NOT EXISTS idx_admin_sessions_expires_at ON admin_sessions(expires_at)`,
}

// MySQL has no partial indexes; active-code uniqueness relies on the
// check-then-write loop in the authenticator.
var mysqlMigrations = []string{
	`CREATE TABLE IF NOT EXISTS admins (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		email VARCHAR(255) NOT NULL UNIQUE,
		role VARCHAR(32) NOT NULL DEFAULT 'admin',
		first_name VARCHAR(255) NOT NULL DEFAULT '',
		last_name VARCHAR(255) NOT NULL DEFAULT '',
		phone VARCHAR(64) NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		email_verified BOOLEAN NOT NULL DEFAULT FALSE,
		created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		last_login DATETIME(6) NULL
	)`,

	`CREATE TABLE IF NOT EXISTS admin_sessions (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		user_id BIGINT NOT NULL UNIQUE,
		session_code VARCHAR(16) NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		expires_at DATETIME(6) NOT NULL,
		created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		updated_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		INDEX idx_admin_sessions_code (session_code),
		INDEX idx_admin_sessions_expires_at (expires_at),
		CONSTRAINT fk_admin_sessions_admin FOREIGN KEY (user_id) REFERENCES admins(id) ON DELETE CASCADE
	)`,
}

var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS admins (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT NOT NULL UNIQUE,
		role TEXT NOT NULL DEFAULT 'admin',
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		phone TEXT,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		email_verified BOOLEAN NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		last_login TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS admin_sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL UNIQUE REFERENCES admins(id) ON DELETE CASCADE,
		session_code TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		expires_at TIMESTAMP NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,

	`CREATE UNIQUE INDEX IF NOT EXISTS idx_admin_sessions_active_code
		ON admin_sessions(session_code) WHERE is_active`,
	`CREATE INDEX IF NOT EXISTS idx_admin_sessions_expires_at ON admin_sessions(expires_at)`,
}

// Migrate applies the schema for the connection's dialect. Every statement
// is idempotent, so it runs on each start.
func (db *DB) Migrate(ctx context.Context) error {
	var migrations []string
	switch db.Dialect() {
	case DialectMySQL:
		migrations = mysqlMigrations
	case DialectSQLite:
		migrations = sqliteMigrations
	default:
		migrations = postgresMigrations
	}

	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			if strings.Contains(err.Error(), "duplicate column") {
				continue
			}
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

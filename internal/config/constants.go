package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 30 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerWriteTimeout    = 30 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Background job intervals
const CleanupJobInterval = 5 * time.Minute

// Rate limiting
const (
	SendCodeLimit       = 3
	SendCodeWindow      = 5 * time.Minute
	VerifyCodeLimit     = 10
	VerifyCodeWindow    = 10 * time.Minute
	AuthRequestsPerIP   = 20
	AuthIPLimiterWindow = time.Minute
)

// SMTP dial/send deadline
const SMTPTimeout = 15 * time.Second

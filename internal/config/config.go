package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

var knownWeakSecrets = []string{
	"change-me", "dev-secret-change-me", "secret", "admin", "password",
}

type Config struct {
	Port                 int      `env:"PORT" envDefault:"8080"`
	AppEnv               string   `env:"APP_ENV" envDefault:"development"`
	AppName              string   `env:"APP_NAME" envDefault:"Industrial Catalogue"`
	DatabaseURL          string   `env:"DATABASE_URL,required"`
	RedisURL             string   `env:"REDIS_URL"`
	LogLevel             string   `env:"LOG_LEVEL" envDefault:"info"`
	AdminSessionSecret   string   `env:"ADMIN_SESSION_SECRET" envDefault:"dev-secret-change-me"`
	AdminSessionTTLHours int      `env:"ADMIN_SESSION_TTL_HOURS" envDefault:"24"`
	OTPTTLMinutes        int      `env:"OTP_TTL_MINUTES" envDefault:"10"`
	OTPMaxMintAttempts   int      `env:"OTP_MAX_MINT_ATTEMPTS" envDefault:"32"`
	OTPTestEmail         string   `env:"OTP_TEST_EMAIL"`
	SMTPHost             string   `env:"SMTP_HOST"`
	SMTPPort             int      `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser             string   `env:"SMTP_USER"`
	SMTPPass             string   `env:"SMTP_PASS"`
	SMTPFrom             string   `env:"SMTP_FROM"`
	SMTPFromName         string   `env:"SMTP_FROM_NAME"`
	SMTPUseTLS           bool     `env:"SMTP_USE_TLS" envDefault:"false"`
	MailPreviewDir       string   `env:"MAIL_PREVIEW_DIR" envDefault:"tmp/mail"`
	CORSAllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	StaticDir            string   `env:"STATIC_DIR"`
	MetricsToken         string   `env:"METRICS_TOKEN"`
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, EnvProduction)
}

func (c *Config) OTPTTL() time.Duration {
	return time.Duration(c.OTPTTLMinutes) * time.Minute
}

func (c *Config) AdminSessionTTL() time.Duration {
	return time.Duration(c.AdminSessionTTLHours) * time.Hour
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// SMTPConfigured reports whether outbound mail credentials are present.
func (c *Config) SMTPConfigured() bool {
	return c.SMTPHost != "" && c.SMTPFrom != ""
}

// TestBypassEmail returns the address that receives the fixed test code.
// It is always empty in production.
func (c *Config) TestBypassEmail() string {
	if c.IsProduction() {
		return ""
	}
	return c.OTPTestEmail
}

// MetricsEnabled reports whether /metrics is mounted. Production needs a
// scrape token.
func (c *Config) MetricsEnabled() bool {
	return !c.IsProduction() || c.MetricsToken != ""
}

func (c *Config) Validate() error {
	if c.OTPTTLMinutes <= 0 {
		return fmt.Errorf("OTP_TTL_MINUTES must be positive")
	}
	if c.OTPMaxMintAttempts <= 0 {
		return fmt.Errorf("OTP_MAX_MINT_ATTEMPTS must be positive")
	}
	if c.AdminSessionTTLHours <= 0 {
		return fmt.Errorf("ADMIN_SESSION_TTL_HOURS must be positive")
	}

	if !c.IsProduction() {
		if c.OTPTestEmail != "" {
			log.Warn().Str("email", c.OTPTestEmail).Msg("OTP test bypass enabled: this address always receives a fixed code")
		}
		if !c.SMTPConfigured() {
			log.Warn().Str("dir", c.MailPreviewDir).Msg("SMTP not configured: emails are written to the preview directory")
		}
		return nil
	}

	if err := validateSecret("ADMIN_SESSION_SECRET", c.AdminSessionSecret); err != nil {
		return err
	}
	if c.OTPTestEmail != "" {
		return fmt.Errorf("OTP_TEST_EMAIL must not be set in production")
	}
	if !c.SMTPConfigured() {
		return fmt.Errorf("SMTP_HOST and SMTP_FROM are required in production")
	}
	if c.MetricsToken == "" {
		log.Warn().Msg("METRICS_TOKEN is empty in production: /metrics is not served")
	}
	if c.RedisURL == "" {
		log.Warn().Msg("REDIS_URL is empty in production: sign-in rate limits are not shared between instances")
	} else if strings.HasPrefix(c.RedisURL, "redis://") {
		log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
	}
	if !c.SMTPUseTLS && c.SMTPPort != 587 {
		log.Warn().Int("port", c.SMTPPort).Msg("SMTP_USE_TLS is false on a non-submission port: mail may be sent in clear text")
	}

	return nil
}

func validateSecret(name, value string) error {
	if len(value) < 32 {
		return fmt.Errorf("%s must be at least 32 characters in production (generate with: openssl rand -base64 32)", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong secret in production", name)
		}
	}
	return nil
}

// Load reads .env (when present) and then the process environment.
// Variables already set in the environment take precedence over .env.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

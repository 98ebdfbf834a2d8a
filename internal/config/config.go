package config

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"workshopreg/internal/domain/intake"
	"workshopreg/internal/domain/session"
)

// EnvProduction is the WORKSHOP_ENV value that turns on production hardening.
const EnvProduction = "production"

// csrfKeyLength is the size gorilla/csrf expects for its authentication key.
const csrfKeyLength = 32

var (
	ErrMissingCSRFKey = errors.New("WORKSHOP_CSRF_KEY is required in production")
	ErrInvalidCSRFKey = errors.New("WORKSHOP_CSRF_KEY must decode to 32 bytes (hex or base64)")
)

// Config is the deployment configuration read from WORKSHOP_* variables.
type Config struct {
	Env            string   `env:"ENV" envDefault:"development"`
	Addr           string   `env:"ADDR" envDefault:":8080"`
	DBPath         string   `env:"DB_PATH" envDefault:"workshopreg.db"`
	RegistryFile   string   `env:"REGISTRY_FILE" envDefault:"workshops.yaml"`
	CSRFKey        string   `env:"CSRF_KEY"`
	TrustedOrigins []string `env:"TRUSTED_ORIGINS" envSeparator:","`
	LogLevel       string   `env:"LOG_LEVEL" envDefault:"info"`
	Timezone       string   `env:"TIMEZONE" envDefault:"Africa/Cairo"`

	SessionTimeout      time.Duration `env:"SESSION_TIMEOUT" envDefault:"30m"`
	MaxLoginAttempts    int           `env:"MAX_LOGIN_ATTEMPTS" envDefault:"3"`
	LockoutWindow       time.Duration `env:"LOCKOUT_WINDOW" envDefault:"5m"`
	RegistrationLimit   int           `env:"REGISTRATION_LIMIT" envDefault:"3"`
	RegistrationWindow  time.Duration `env:"REGISTRATION_WINDOW" envDefault:"1h"`
	PageSize            int           `env:"PAGE_SIZE" envDefault:"10"`
	RateLimitPerSecond  int           `env:"RATE_LIMIT_PER_SECOND" envDefault:"10"`
	PhoneMinDigits      int           `env:"PHONE_MIN_DIGITS" envDefault:"10"`
	PhoneMaxDigits      int           `env:"PHONE_MAX_DIGITS" envDefault:"11"`
	RequireDemographics bool          `env:"REQUIRE_DEMOGRAPHICS" envDefault:"true"`

	ResendKey  string `env:"RESEND_KEY"`
	ResendFrom string `env:"RESEND_FROM" envDefault:"Workshop Registration <noreply@example.com>"`
	ReplyTo    string `env:"REPLY_TO"`

	SlowQueryMs   int `env:"SLOW_QUERY_MS" envDefault:"100"`
	SlowRequestMs int `env:"SLOW_REQUEST_MS" envDefault:"200"`
}

// Load reads an optional .env file and then the process environment.
// PRE: none
// POST: Returns a validated Config; variables already set win over .env
func Load() (Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return Config{}, fmt.Errorf("load .env: %w", err)
		}
	}
	return Parse()
}

// Parse reads the process environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "WORKSHOP_"}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints env tags cannot express.
func (c Config) Validate() error {
	if c.PhoneMinDigits <= 0 || c.PhoneMaxDigits < c.PhoneMinDigits {
		return fmt.Errorf("phone digits: need 0 < min <= max, got %d..%d", c.PhoneMinDigits, c.PhoneMaxDigits)
	}
	if c.MaxLoginAttempts <= 0 || c.RegistrationLimit <= 0 {
		return errors.New("login attempts and registration limit must be positive")
	}
	if c.SessionTimeout <= 0 || c.LockoutWindow <= 0 || c.RegistrationWindow <= 0 {
		return errors.New("session timeout, lockout window and registration window must be positive")
	}
	if c.PageSize <= 0 {
		return errors.New("page size must be positive")
	}
	return nil
}

// IsProduction reports whether the deployment runs in production mode.
func (c Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// Lockout returns the login lockout policy.
func (c Config) Lockout() session.Lockout {
	return session.Lockout{MaxAttempts: c.MaxLoginAttempts, Window: c.LockoutWindow}
}

// RegistrationLimitPolicy returns the per-session registration cap.
func (c Config) RegistrationLimitPolicy() session.RegistrationLimit {
	return session.RegistrationLimit{Max: c.RegistrationLimit, Window: c.RegistrationWindow}
}

// IntakePolicy returns the form validation policy.
func (c Config) IntakePolicy() intake.Policy {
	return intake.Policy{
		PhoneMinDigits:      c.PhoneMinDigits,
		PhoneMaxDigits:      c.PhoneMaxDigits,
		RequireDemographics: c.RequireDemographics,
	}
}

// SlowQuery is the threshold above which queries are logged.
func (c Config) SlowQuery() time.Duration {
	return time.Duration(c.SlowQueryMs) * time.Millisecond
}

// SlowRequest is the threshold above which requests are logged.
func (c Config) SlowRequest() time.Duration {
	return time.Duration(c.SlowRequestMs) * time.Millisecond
}

// Location resolves the calendar used for "today" counts and export dates.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// CSRFKeyBytes decodes the forgery-protection key.
// POST: Outside production a missing key yields a random one, so tokens die on restart
func (c Config) CSRFKeyBytes() ([]byte, error) {
	if c.CSRFKey == "" {
		if c.IsProduction() {
			return nil, ErrMissingCSRFKey
		}
		key := make([]byte, csrfKeyLength)
		if _, err := rand.Read(key); err != nil {
			return nil, err
		}
		slog.Warn("csrf_key_generated", "reason", "WORKSHOP_CSRF_KEY not set")
		return key, nil
	}
	if key, err := hex.DecodeString(c.CSRFKey); err == nil && len(key) == csrfKeyLength {
		return key, nil
	}
	if key, err := base64.StdEncoding.DecodeString(c.CSRFKey); err == nil && len(key) == csrfKeyLength {
		return key, nil
	}
	return nil, ErrInvalidCSRFKey
}

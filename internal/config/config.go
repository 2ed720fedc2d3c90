// Package config parses and validates all application configuration from
// environment variables using caarlos0/env/v11.
//
// Call [Load] once at startup; pass the resulting [Config] to subcommands.
// Server exits if any field tagged "required" is missing.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/robfig/cron/v3"

	"github.com/patroncollective/patron/internal/access"
)

// Config holds all application configuration sourced from environment variables.
// Defaults suit local development.
type Config struct {
	// ── Database ─────────────────────────────────────────────────────────────────
	DatabaseURL          string        `env:"DATABASE_URL,required"`
	DatabaseURLMigrate   string        `env:"DATABASE_URL_MIGRATE"`
	DBMaxConns           int32         `env:"DB_MAX_CONNS"            envDefault:"25"`
	DBMaxConnIdleTime    time.Duration `env:"DB_MAX_CONN_IDLE_TIME"   envDefault:"5m"`
	DBStatementTimeoutMS int           `env:"DB_STATEMENT_TIMEOUT_MS" envDefault:"14000"`
	// DBQueryExecMode: "simple_protocol" (PgBouncer-compatible) or "extended_protocol".
	DBQueryExecMode string `env:"DB_QUERY_EXEC_MODE" envDefault:"simple_protocol"`

	// ── Server ───────────────────────────────────────────────────────────────────
	ListenAddr             string `env:"LISTEN_ADDR"              envDefault:":8080"`
	AppEnv                 string `env:"APP_ENV"                  envDefault:"development"`
	ExternalURL            string `env:"EXTERNAL_URL"             envDefault:"http://localhost:3000"`
	ShutdownTimeoutSeconds int    `env:"SHUTDOWN_TIMEOUT_SECONDS" envDefault:"60"`
	// Extra origins allowed to send state-changing requests, comma separated.
	// EXTERNAL_URL is always allowed.
	AllowedOrigins string `env:"ALLOWED_ORIGINS"`

	// ── Auth: JWT ─────────────────────────────────────────────────────────────────
	JWTSecret     string        `env:"JWT_SECRET,required"`
	SessionMaxAge time.Duration `env:"SESSION_MAX_AGE" envDefault:"168h"`

	// ── Auth: Cookies ─────────────────────────────────────────────────────────────
	// Must be false for http://localhost; must be true in production with TLS.
	CookieSecure bool `env:"COOKIE_SECURE" envDefault:"false"`

	// ── Auth: Argon2id ────────────────────────────────────────────────────────────
	// Max simultaneous hash operations; each allocates ~19.5 MB.
	Argon2MaxConcurrent int `env:"ARGON2_MAX_CONCURRENT" envDefault:"5"`

	// ── OAuth: Google ─────────────────────────────────────────────────────────────
	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`

	// ── Email: SMTP ───────────────────────────────────────────────────────────────
	// Empty SMTP_HOST disables outbound email; invitation links are still
	// returned to the inviting admin.
	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"1025"`
	SMTPFrom     string `env:"SMTP_FROM" envDefault:"reminders@patron.local"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	SMTPTLS      bool   `env:"SMTP_TLS"  envDefault:"false"`

	// ── Reminders ────────────────────────────────────────────────────────────────
	// CronSecret authorizes POST /cron/reminders. Empty disables the endpoint.
	CronSecret       string `env:"CRON_SECRET"`
	ReminderSchedule string `env:"REMINDER_SCHEDULE" envDefault:"0 9 * * *"`

	// ── Access & billing ─────────────────────────────────────────────────────────
	TrialDays int `env:"TRIAL_DAYS" envDefault:"14"`
	// RoleLookupFailurePolicy decides how a transient role lookup failure
	// resolves: "fail_open" (admin defaults) or "fail_closed" (read-only user).
	RoleLookupFailurePolicy string `env:"ROLE_LOOKUP_FAILURE_POLICY" envDefault:"fail_open"`

	// ── Rate limiting ────────────────────────────────────────────────────────────
	RateLimitEvictTTL time.Duration `env:"RATE_LIMIT_EVICT_TTL" envDefault:"15m"`

	// ── Logging ──────────────────────────────────────────────────────────────────
	LogLevel  string `env:"LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load parses and returns Config from environment variables.
// Returns an error if any required field is missing or a value is invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values env tags cannot express.
func (c *Config) Validate() error {
	var errs []error
	if len(c.JWTSecret) < 32 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 32 bytes"))
	}
	if _, err := access.ParseDegradePolicy(c.RoleLookupFailurePolicy); err != nil {
		errs = append(errs, fmt.Errorf("ROLE_LOOKUP_FAILURE_POLICY: %w", err))
	}
	if _, err := cron.ParseStandard(c.ReminderSchedule); err != nil {
		errs = append(errs, fmt.Errorf("REMINDER_SCHEDULE: %w", err))
	}
	if c.TrialDays < 0 {
		errs = append(errs, errors.New("TRIAL_DAYS cannot be negative"))
	}
	if u, err := url.Parse(c.ExternalURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("EXTERNAL_URL %q is not an absolute URL", c.ExternalURL))
	}
	switch c.DBQueryExecMode {
	case "simple_protocol", "extended_protocol":
	default:
		errs = append(errs, fmt.Errorf("DB_QUERY_EXEC_MODE %q is not supported", c.DBQueryExecMode))
	}
	return errors.Join(errs...)
}

// IsDevelopment reports whether the application is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// DegradePolicy returns the parsed role lookup failure policy. Load has
// already validated it.
func (c *Config) DegradePolicy() access.DegradePolicy {
	p, _ := access.ParseDegradePolicy(c.RoleLookupFailurePolicy)
	return p
}

// Origins returns AllowedOrigins split on commas.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, strings.TrimRight(o, "/"))
		}
	}
	return out
}

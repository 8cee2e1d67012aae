package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration.
type Config struct {
	Env      string
	HTTPAddr string
	BaseURL  string

	DBDSN     string
	JWTSecret string

	LogLevel string

	RateLimitRPM int

	SessionDays     int
	InviteTTLDays   int
	NotifyURL       string
	NotifyTimeoutMS int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Env = strings.TrimSpace(os.Getenv("BH_ENV"))
	if cfg.Env == "" {
		return nil, fmt.Errorf("BH_ENV is required")
	}
	if cfg.Env != "dev" && cfg.Env != "prod" {
		return nil, fmt.Errorf("BH_ENV must be one of: dev, prod (got: %s)", cfg.Env)
	}

	cfg.HTTPAddr = getEnvOrDefault("BH_HTTP_ADDR", ":8080")

	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("BH_BASE_URL")), "/")
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("BH_BASE_URL is required")
	}

	cfg.DBDSN = strings.TrimSpace(os.Getenv("BH_DB_DSN"))
	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("BH_DB_DSN is required")
	}

	cfg.JWTSecret = os.Getenv("BH_JWT_SECRET")
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("BH_JWT_SECRET is required")
	}
	if cfg.Env == "prod" && len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("BH_JWT_SECRET must be at least 32 characters (currently %d)", len(cfg.JWTSecret))
	}

	cfg.LogLevel = getEnvOrDefault("BH_LOG_LEVEL", "info")
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("BH_LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", cfg.LogLevel)
	}

	var err error
	cfg.RateLimitRPM, err = getEnvIntOrDefault("BH_RATE_LIMIT_RPM", 120)
	if err != nil {
		return nil, err
	}

	cfg.SessionDays, err = getEnvIntOrDefault("BH_SESSION_DAYS", 7)
	if err != nil {
		return nil, err
	}

	cfg.InviteTTLDays, err = getEnvIntOrDefault("BH_INVITE_TTL_DAYS", 7)
	if err != nil {
		return nil, err
	}
	if cfg.InviteTTLDays <= 0 || cfg.InviteTTLDays > 90 {
		return nil, fmt.Errorf("BH_INVITE_TTL_DAYS must be between 1 and 90 (got: %d)", cfg.InviteTTLDays)
	}

	// Optional webhook for invitation notices; email delivery is best-effort.
	cfg.NotifyURL = strings.TrimSpace(os.Getenv("BH_NOTIFY_WEBHOOK_URL"))

	cfg.NotifyTimeoutMS, err = getEnvIntOrDefault("BH_NOTIFY_TIMEOUT_MS", 2000)
	if err != nil {
		return nil, err
	}
	if cfg.NotifyTimeoutMS <= 0 || cfg.NotifyTimeoutMS > 30000 {
		return nil, fmt.Errorf("BH_NOTIFY_TIMEOUT_MS must be between 1 and 30000 (got: %d)", cfg.NotifyTimeoutMS)
	}

	return cfg, nil
}

// IsDev returns true if running in development mode.
func (c *Config) IsDev() bool {
	return c.Env == "dev"
}

// RedactedValues returns a map of config values with secrets redacted.
func (c *Config) RedactedValues() map[string]string {
	return map[string]string{
		"BH_ENV":                c.Env,
		"BH_HTTP_ADDR":          c.HTTPAddr,
		"BH_BASE_URL":           c.BaseURL,
		"BH_DB_DSN":             redactDSN(c.DBDSN),
		"BH_JWT_SECRET":         "[REDACTED]",
		"BH_LOG_LEVEL":          c.LogLevel,
		"BH_RATE_LIMIT_RPM":     fmt.Sprintf("%d", c.RateLimitRPM),
		"BH_SESSION_DAYS":       fmt.Sprintf("%d", c.SessionDays),
		"BH_INVITE_TTL_DAYS":    fmt.Sprintf("%d", c.InviteTTLDays),
		"BH_NOTIFY_WEBHOOK_URL": redactDSN(c.NotifyURL),
		"BH_NOTIFY_TIMEOUT_MS":  fmt.Sprintf("%d", c.NotifyTimeoutMS),
	}
}

func redactDSN(dsn string) string {
	if start := strings.Index(dsn, "://"); start != -1 {
		if end := strings.Index(dsn[start+3:], "@"); end != -1 {
			return dsn[:start+3] + "[REDACTED]" + dsn[start+3+end:]
		}
	}
	return dsn
}

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(key string, defaultValue int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer (got: %q)", key, value)
	}
	return parsed, nil
}

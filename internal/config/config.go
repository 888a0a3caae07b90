package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

type Config struct {
	Host string
	Port string

	DatabaseURL string

	ResendAPIKey  string
	ResendBaseURL string

	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string

	NotifyFrom     string
	NotifyTo       string
	NotifyTimezone string

	RateLimitMax       int
	RateLimitWindow    time.Duration
	RateLimitRetention time.Duration
	TrustForwardedFor  bool

	Redirect string
}

// LoadConfig reads the environment, after merging an optional .env file.
// Only the database connection is mandatory; leaving both RESEND_API_KEY
// and SMTP_SERVER unset disables subscriber notifications.
func LoadConfig() (*Config, error) {
	godotenv.Load()

	cfg := &Config{
		Host:           getEnv("HOST", "0.0.0.0"),
		Port:           getEnv("PORT", "8080"),
		DatabaseURL:    getEnv("DATABASE_URL", getEnv("NETLIFY_DATABASE_URL", "")),
		ResendAPIKey:   getEnv("RESEND_API_KEY", ""),
		ResendBaseURL:  getEnv("RESEND_BASE_URL", "https://api.resend.com"),
		SMTPHost:       getEnv("SMTP_SERVER", ""),
		SMTPUser:       getEnv("SMTP_USER", ""),
		SMTPPass:       getEnv("SMTP_PASSWORD", ""),
		NotifyFrom:     getEnv("NOTIFY_FROM", "marcoswift.com <noreply@marcoswift.com>"),
		NotifyTo:       getEnv("NOTIFY_TO", "decunningham@marcoswift.com"),
		NotifyTimezone: getEnv("NOTIFY_TIMEZONE", "America/New_York"),
		Redirect:       getEnv("SIGNUP_REDIRECT", "/download"),
	}

	var err error
	if cfg.SMTPPort, err = getInt("SMTP_PORT", 587); err != nil {
		return nil, err
	}
	if cfg.RateLimitMax, err = getInt("RATE_LIMIT_MAX", 5); err != nil {
		return nil, err
	}
	if cfg.RateLimitWindow, err = getDuration("RATE_LIMIT_WINDOW", time.Hour); err != nil {
		return nil, err
	}
	if cfg.RateLimitRetention, err = getDuration("RATE_LIMIT_RETENTION", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.TrustForwardedFor, err = getBool("TRUST_FORWARDED_FOR", false); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL not configured")
	}
	if c.RateLimitMax <= 0 {
		return fmt.Errorf("RATE_LIMIT_MAX must be positive, got %d", c.RateLimitMax)
	}
	if c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive, got %s", c.RateLimitWindow)
	}
	// attempts still inside the window must survive pruning
	if c.RateLimitRetention < c.RateLimitWindow {
		return fmt.Errorf(
			"RATE_LIMIT_RETENTION (%s) must not be shorter than RATE_LIMIT_WINDOW (%s)",
			c.RateLimitRetention,
			c.RateLimitWindow,
		)
	}
	if _, err := time.LoadLocation(c.NotifyTimezone); err != nil {
		return fmt.Errorf("invalid NOTIFY_TIMEZONE %q: %w", c.NotifyTimezone, err)
	}
	return nil
}

// NotificationsEnabled reports whether any mail transport is configured.
func (c *Config) NotificationsEnabled() bool {
	return c.ResendAPIKey != "" || c.SMTPHost != ""
}

func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getInt(key string, defaultVal int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultVal, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultVal, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func getBool(key string, defaultVal bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultVal, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

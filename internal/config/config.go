package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	DBAutoMigrate      bool
	RedisURL           string
	CORSAllowedOrigins []string
	BodyLimitBytes     int64

	AdminTokenHash      string
	AdminSessionSecret  string
	AdminSessionTTL     time.Duration
	AdminCookieSecure   bool
	AdminCookieSameSite http.SameSite
	AdminLoginRate      string
	AuditEnabled        bool

	SalesInbox    string
	MailFrom      string
	MailProvider  string
	SMTPHost      string
	SMTPPort      int
	SMTPUser      string
	SMTPPassword  string
	ResendAPIKey  string
	ResendBaseURL string

	PricingCacheTTL          time.Duration
	PricingWindowFixedCharge bool
	CatalogCacheTTL          time.Duration
	AdminListDefaultLimit    int
	AdminListMaxLimit        int

	MediaPublicBaseURL     string
	MediaS3Bucket          string
	MediaS3Endpoint        string
	MediaS3Region          string
	MediaS3AccessKeyID     string
	MediaS3SecretAccessKey string
	MediaPresignTTL        time.Duration

	QuoteRateLimitMax    int
	QuoteRateLimitWindow time.Duration
	IdempotencyTTL       time.Duration

	QueueRedisPrefix       string
	QueueMaxAttempts       int
	QueueConcurrency       int
	QueueVisibilityTimeout time.Duration
	QueueBackoffBase       time.Duration
	QueuePollInterval      time.Duration

	OutboundTimeout  time.Duration
	RetryMaxAttempts int
	RetryBase        time.Duration
	BreakerFailures  int
	BreakerCooldown  time.Duration
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		DBAutoMigrate:      parseBool(k.String("DB_AUTO_MIGRATE")),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		BodyLimitBytes:     int64(parseInt(k.String("BODY_LIMIT_BYTES"), 1<<20)),

		AdminTokenHash:      strings.TrimSpace(k.String("ADMIN_TOKEN_HASH")),
		AdminSessionSecret:  k.String("ADMIN_SESSION_SECRET"),
		AdminSessionTTL:     parseDuration(k.String("ADMIN_SESSION_TTL"), "8h"),
		AdminCookieSecure:   parseBoolDefault(k.String("ADMIN_COOKIE_SECURE"), true),
		AdminCookieSameSite: parseSameSite(k.String("ADMIN_COOKIE_SAMESITE")),
		AdminLoginRate:      valueOrDefault(k.String("ADMIN_LOGIN_RATE"), "10-M"),
		AuditEnabled:        parseBoolDefault(k.String("AUDIT_ENABLED"), true),

		SalesInbox:    strings.TrimSpace(k.String("SALES_INBOX")),
		MailFrom:      valueOrDefault(k.String("MAIL_FROM"), "SDeal Quotes <quotes@sdeal.ie>"),
		MailProvider:  strings.ToLower(valueOrDefault(k.String("MAIL_PROVIDER"), "log")),
		SMTPHost:      strings.TrimSpace(k.String("SMTP_HOST")),
		SMTPPort:      parseInt(k.String("SMTP_PORT"), 587),
		SMTPUser:      k.String("SMTP_USER"),
		SMTPPassword:  k.String("SMTP_PASSWORD"),
		ResendAPIKey:  k.String("RESEND_API_KEY"),
		ResendBaseURL: valueOrDefault(k.String("RESEND_BASE_URL"), "https://api.resend.com"),

		PricingCacheTTL:          parseDuration(k.String("PRICING_CACHE_TTL"), "5m"),
		PricingWindowFixedCharge: parseBool(k.String("PRICING_WINDOW_FIXED_CHARGE")),
		CatalogCacheTTL:          parseDuration(k.String("CATALOG_CACHE_TTL"), "10m"),
		AdminListDefaultLimit:    parseInt(k.String("ADMIN_LIST_DEFAULT_LIMIT"), 20),
		AdminListMaxLimit:        parseInt(k.String("ADMIN_LIST_MAX_LIMIT"), 100),

		MediaPublicBaseURL:     strings.TrimSpace(k.String("MEDIA_PUBLIC_BASE_URL")),
		MediaS3Bucket:          strings.TrimSpace(k.String("MEDIA_S3_BUCKET")),
		MediaS3Endpoint:        strings.TrimSpace(k.String("MEDIA_S3_ENDPOINT")),
		MediaS3Region:          valueOrDefault(k.String("MEDIA_S3_REGION"), "auto"),
		MediaS3AccessKeyID:     k.String("MEDIA_S3_ACCESS_KEY_ID"),
		MediaS3SecretAccessKey: k.String("MEDIA_S3_SECRET_ACCESS_KEY"),
		MediaPresignTTL:        parseDuration(k.String("MEDIA_PRESIGN_TTL"), "15m"),

		QuoteRateLimitMax:    parseInt(k.String("QUOTE_RATE_LIMIT_MAX"), 5),
		QuoteRateLimitWindow: parseDuration(k.String("QUOTE_RATE_LIMIT_WINDOW"), "10m"),
		IdempotencyTTL:       parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),

		QueueRedisPrefix:       valueOrDefault(k.String("QUEUE_REDIS_PREFIX"), "sdeal:q"),
		QueueMaxAttempts:       parseInt(k.String("QUEUE_MAX_ATTEMPTS"), 8),
		QueueConcurrency:       parseInt(k.String("QUEUE_CONCURRENCY"), 2),
		QueueVisibilityTimeout: parseDuration(k.String("QUEUE_VISIBILITY_TIMEOUT"), "60s"),
		QueueBackoffBase:       parseDuration(k.String("QUEUE_BACKOFF_BASE"), "2s"),
		QueuePollInterval:      parseDuration(k.String("QUEUE_POLL_INTERVAL"), "1s"),

		OutboundTimeout:  parseDuration(k.String("OUTBOUND_TIMEOUT"), "10s"),
		RetryMaxAttempts: parseInt(k.String("RETRY_MAX_ATTEMPTS"), 3),
		RetryBase:        parseDuration(k.String("RETRY_BASE"), "200ms"),
		BreakerFailures:  parseInt(k.String("BREAKER_FAILURES"), 5),
		BreakerCooldown:  parseDuration(k.String("BREAKER_COOLDOWN"), "30s"),
	}

	if cfg.AdminCookieSameSite == http.SameSiteDefaultMode {
		cfg.AdminCookieSameSite = http.SameSiteLaxMode
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	switch cfg.MailProvider {
	case "smtp":
		if cfg.SMTPHost == "" {
			return nil, errors.New("SMTP_HOST is required when MAIL_PROVIDER=smtp")
		}
	case "resend":
		if cfg.ResendAPIKey == "" {
			return nil, errors.New("RESEND_API_KEY is required when MAIL_PROVIDER=resend")
		}
	case "log":
	default:
		return nil, fmt.Errorf("unsupported MAIL_PROVIDER %q", cfg.MailProvider)
	}

	return cfg, nil
}

// AdminEnabled reports whether the admin gate has the secrets it needs.
func (c *Config) AdminEnabled() bool {
	return c.AdminTokenHash != "" && len(c.AdminSessionSecret) >= 32
}

// MediaPresignEnabled reports whether image URLs should be presigned.
func (c *Config) MediaPresignEnabled() bool {
	return c.MediaS3Bucket != "" && c.MediaS3AccessKeyID != "" && c.MediaS3SecretAccessKey != ""
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string) bool {
	return parseBoolDefault(value, false)
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func parseSameSite(value string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	case "lax":
		return http.SameSiteLaxMode
	default:
		return http.SameSiteDefaultMode
	}
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}

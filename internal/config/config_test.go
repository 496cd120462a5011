package config_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-sdeal/internal/config"
)

func baseEnv() map[string]string {
	return map[string]string{
		"DATABASE_URL":  "postgres://localhost/sdeal",
		"REDIS_URL":     "redis://localhost:6379/0",
		"MAIL_PROVIDER": "",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.LoadForTests(baseEnv())
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddr())
	require.Equal(t, "log", cfg.MailProvider)
	require.Equal(t, 8*time.Hour, cfg.AdminSessionTTL)
	require.True(t, cfg.AdminCookieSecure)
	require.Equal(t, http.SameSiteLaxMode, cfg.AdminCookieSameSite)
	require.False(t, cfg.PricingWindowFixedCharge)
	require.Equal(t, 5, cfg.QuoteRateLimitMax)
	require.False(t, cfg.AdminEnabled())
	require.False(t, cfg.MediaPresignEnabled())
}

func TestLoadRequiresDatabaseAndRedis(t *testing.T) {
	env := baseEnv()
	env["DATABASE_URL"] = ""
	_, err := config.LoadForTests(env)
	require.ErrorContains(t, err, "DATABASE_URL")

	env = baseEnv()
	env["REDIS_URL"] = ""
	_, err = config.LoadForTests(env)
	require.ErrorContains(t, err, "REDIS_URL")
}

func TestLoadMailProviderValidation(t *testing.T) {
	env := baseEnv()
	env["MAIL_PROVIDER"] = "smtp"
	env["SMTP_HOST"] = ""
	_, err := config.LoadForTests(env)
	require.ErrorContains(t, err, "SMTP_HOST")

	env["MAIL_PROVIDER"] = "pigeon"
	_, err = config.LoadForTests(env)
	require.ErrorContains(t, err, "MAIL_PROVIDER")

	env["MAIL_PROVIDER"] = "resend"
	env["RESEND_API_KEY"] = "re_test"
	cfg, err := config.LoadForTests(env)
	require.NoError(t, err)
	require.Equal(t, "https://api.resend.com", cfg.ResendBaseURL)
}

func TestLoadOverrides(t *testing.T) {
	env := baseEnv()
	env["PORT"] = "9090"
	env["PRICING_WINDOW_FIXED_CHARGE"] = "true"
	env["ADMIN_COOKIE_SECURE"] = "false"
	env["ADMIN_TOKEN_HASH"] = "$argon2id$v=19$m=65536,t=1,p=2$c2FsdA$aGFzaA"
	env["ADMIN_SESSION_SECRET"] = "0123456789abcdef0123456789abcdef"
	env["QUOTE_RATE_LIMIT_WINDOW"] = "1m"
	env["CORS_ALLOWED_ORIGINS"] = "https://sdeal.ie, https://www.sdeal.ie"
	env["QUEUE_MAX_ATTEMPTS"] = "not-a-number"

	cfg, err := config.LoadForTests(env)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.HTTPAddr())
	require.True(t, cfg.PricingWindowFixedCharge)
	require.False(t, cfg.AdminCookieSecure)
	require.True(t, cfg.AdminEnabled())
	require.Equal(t, time.Minute, cfg.QuoteRateLimitWindow)
	require.Equal(t, []string{"https://sdeal.ie", "https://www.sdeal.ie"}, cfg.CORSAllowedOrigins)
	require.Equal(t, 8, cfg.QueueMaxAttempts)
}

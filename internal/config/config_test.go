package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/ourcourses")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_123")
}

func TestLoadConfig_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
	assert.Equal(t, "usd", cfg.Stripe.Currency)
	assert.Equal(t, "http://localhost:5173/course-progress/{courseId}", cfg.Stripe.SuccessURL)
	assert.Equal(t, "http://localhost:5173/course-detail/{courseId}", cfg.Stripe.CancelURL)
	assert.Equal(t, 10*time.Second, cfg.GatewayTimeout)
	assert.Equal(t, 5*time.Second, cfg.StoreTimeout)
	assert.Equal(t, 10*time.Second, cfg.Email.Timeout)
	assert.Equal(t, 60, cfg.RateLimitMax)
	assert.Equal(t, time.Minute, cfg.RateLimitWindow)
	assert.False(t, cfg.SeedDemoData)
	assert.False(t, cfg.EmailEnabled())
	assert.Empty(t, cfg.Stripe.AllowedCountries)
}

func TestLoadConfig_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PAYMENT_CURRENCY", "EUR")
	t.Setenv("PAYMENT_ALLOWED_COUNTRIES", "us, tr ,")
	t.Setenv("GATEWAY_TIMEOUT", "3s")
	t.Setenv("RATE_LIMIT_MAX", "10")
	t.Setenv("SEED_DEMO_DATA", "true")
	t.Setenv("RESEND_API_KEY", "re_123")
	t.Setenv("EMAIL_FROM_ADDRESS", "hello@ourcourses.dev")
	t.Setenv("EMAIL_TIMEOUT", "4s")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, StoreDriverMemory, cfg.StoreDriver)
	assert.Equal(t, "eur", cfg.Stripe.Currency)
	assert.Equal(t, []string{"US", "TR"}, cfg.Stripe.AllowedCountries)
	assert.Equal(t, 3*time.Second, cfg.GatewayTimeout)
	assert.Equal(t, 10, cfg.RateLimitMax)
	assert.True(t, cfg.SeedDemoData)
	assert.True(t, cfg.EmailEnabled())
	assert.Equal(t, 4*time.Second, cfg.Email.Timeout)
}

func TestLoadConfig_MissingSecrets(t *testing.T) {
	setRequired(t)
	t.Setenv("JWT_SECRET", "")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWTSecret is required")
	assert.Contains(t, err.Error(), "WebhookSecret is required")
}

func TestLoadConfig_PostgresNeedsDatabaseURL(t *testing.T) {
	setRequired(t)
	t.Setenv("DATABASE_URL", "")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DatabaseURL")
}

func TestLoadConfig_UnknownStoreDriver(t *testing.T) {
	setRequired(t)
	t.Setenv("STORE_DRIVER", "mongo")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "StoreDriver is not a supported store driver")
}

func TestLoadConfig_BadDuration(t *testing.T) {
	setRequired(t)
	t.Setenv("STORE_TIMEOUT", "soon")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORE_TIMEOUT")
}

func TestLoadConfig_RejectsThreeDecimalCurrency(t *testing.T) {
	setRequired(t)
	t.Setenv("PAYMENT_CURRENCY", "KWD")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Currency is not a supported payment currency")
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sefazor/ourcourses-backend/pkg/utils"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type StripeConfig struct {
	SecretKey        string `validate:"required"`
	WebhookSecret    string `validate:"required"`
	Currency         string `validate:"required,payment_currency"`
	AllowedCountries []string
	SuccessURL       string `validate:"required,url"`
	CancelURL        string `validate:"required,url"`
}

type EmailConfig struct {
	ResendAPIKey string
	FromAddress  string
	FromName     string
	Timeout      time.Duration `validate:"gt=0"`
}

type Config struct {
	AppEnv      string `validate:"required"`
	Port        string `validate:"required,numeric"`
	StoreDriver string `validate:"store_driver"`
	DatabaseURL string `validate:"required_if=StoreDriver postgres"`
	JWTSecret   string `validate:"required"`

	Stripe StripeConfig
	Email  EmailConfig

	GatewayTimeout time.Duration `validate:"gt=0"`
	StoreTimeout   time.Duration `validate:"gt=0"`

	CORSAllowOrigins string
	RateLimitMax     int           `validate:"gt=0"`
	RateLimitWindow  time.Duration `validate:"gt=0"`
	SeedDemoData     bool
}

// EmailEnabled reports whether enrollment emails can be sent.
func (c *Config) EmailEnabled() bool {
	return c.Email.ResendAPIKey != "" && c.Email.FromAddress != ""
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		StoreDriver: getEnv("STORE_DRIVER", StoreDriverPostgres),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		JWTSecret:   os.Getenv("JWT_SECRET"),

		Stripe: StripeConfig{
			SecretKey:        os.Getenv("STRIPE_SECRET_KEY"),
			WebhookSecret:    os.Getenv("STRIPE_WEBHOOK_SECRET"),
			Currency:         strings.ToLower(getEnv("PAYMENT_CURRENCY", "usd")),
			AllowedCountries: getEnvList("PAYMENT_ALLOWED_COUNTRIES"),
			SuccessURL:       getEnv("CHECKOUT_SUCCESS_URL", "http://localhost:5173/course-progress/{courseId}"),
			CancelURL:        getEnv("CHECKOUT_CANCEL_URL", "http://localhost:5173/course-detail/{courseId}"),
		},
		Email: EmailConfig{
			ResendAPIKey: os.Getenv("RESEND_API_KEY"),
			FromAddress:  os.Getenv("EMAIL_FROM_ADDRESS"),
			FromName:     getEnv("EMAIL_FROM_NAME", "OurCourses"),
		},

		CORSAllowOrigins: getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173"),
	}

	var err error
	if cfg.GatewayTimeout, err = getEnvDuration("GATEWAY_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.StoreTimeout, err = getEnvDuration("STORE_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.Email.Timeout, err = getEnvDuration("EMAIL_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.RateLimitWindow, err = getEnvDuration("RATE_LIMIT_WINDOW", time.Minute); err != nil {
		return nil, err
	}
	if cfg.RateLimitMax, err = getEnvInt("RATE_LIMIT_MAX", 60); err != nil {
		return nil, err
	}
	if cfg.SeedDemoData, err = getEnvBool("SEED_DEMO_DATA", false); err != nil {
		return nil, err
	}

	if err := utils.NewValidator().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %s", utils.Describe(err))
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.ToUpper(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func getEnvInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

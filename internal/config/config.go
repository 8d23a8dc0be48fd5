package config

import (
	"errors"
	"fmt"
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
	AppEnv  string
	Port    string
	Sandbox bool

	LogFormat string
	LogLevel  string

	OTLPEndpoint  string
	TraceSampling float64

	CORSAllowedOrigins []string

	RedisURL string

	// Active checkout provider: "paypal" or "stripe".
	Provider string

	PayPalClientID     string
	PayPalClientSecret string
	PayPalBaseURL      string
	PayPalSuccessURL   string
	PayPalCancelURL    string

	StripeSecretKey      string
	StripePublishableKey string
	StripeBaseURL        string
	StripeSuccessURL     string
	StripeCancelURL      string

	CurrencyCode string

	ApprovalPollInterval time.Duration
	CheckoutTTL          time.Duration
	IdempotencyTTL       time.Duration
	RequestTimeout       time.Duration

	RateLimitWindow time.Duration
	RateLimitMax    int
}

const (
	paypalSandboxURL = "https://api.sandbox.paypal.com/"
	paypalLiveURL    = "https://api.paypal.com/"
	stripeURL        = "https://api.stripe.com/"
)

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	sandbox := parseBool(valueOrDefault(k.String("CHECKOUT_SANDBOX"), "true"))

	cfg := &Config{
		AppEnv:  valueOrDefault(k.String("APP_ENV"), "development"),
		Port:    valueOrDefault(k.String("PORT"), "8080"),
		Sandbox: sandbox,

		LogFormat: valueOrDefault(k.String("LOG_FORMAT"), "json"),
		LogLevel:  valueOrDefault(k.String("LOG_LEVEL"), "info"),

		OTLPEndpoint:  k.String("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TraceSampling: parseFloat(k.String("TRACE_SAMPLING_RATIO"), 1),

		CORSAllowedOrigins: parseCSV(valueOrDefault(k.String("CORS_ALLOWED_ORIGINS"), "*")),

		RedisURL: k.String("REDIS_URL"),

		Provider: strings.ToLower(valueOrDefault(k.String("CHECKOUT_PROVIDER"), "paypal")),

		PayPalClientID:     k.String("PAYPAL_CLIENT_ID"),
		PayPalClientSecret: k.String("PAYPAL_CLIENT_SECRET"),
		PayPalBaseURL:      valueOrDefault(k.String("PAYPAL_BASE_URL"), paypalDefaultURL(sandbox)),
		PayPalSuccessURL:   k.String("PAYPAL_SUCCESS_URL"),
		PayPalCancelURL:    k.String("PAYPAL_CANCEL_URL"),

		StripeSecretKey:      k.String("STRIPE_SECRET_KEY"),
		StripePublishableKey: k.String("STRIPE_PUBLISHABLE_KEY"),
		StripeBaseURL:        valueOrDefault(k.String("STRIPE_BASE_URL"), stripeURL),
		StripeSuccessURL:     k.String("STRIPE_SUCCESS_URL"),
		StripeCancelURL:      k.String("STRIPE_CANCEL_URL"),

		CurrencyCode: strings.ToUpper(valueOrDefault(k.String("CURRENCY_CODE"), "USD")),

		ApprovalPollInterval: parseDuration(k.String("APPROVAL_POLL_INTERVAL"), "1s"),
		CheckoutTTL:          parseDuration(k.String("CHECKOUT_TTL"), "1h"),
		IdempotencyTTL:       parseDuration(k.String("IDEMPOTENCY_TTL"), "10m"),
		RequestTimeout:       parseDuration(k.String("PROVIDER_REQUEST_TIMEOUT"), "30s"),

		RateLimitWindow: parseDuration(k.String("RATE_LIMIT_WINDOW"), "1m"),
		RateLimitMax:    parseInt(k.String("RATE_LIMIT_MAX"), 30),
	}

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	switch cfg.Provider {
	case "paypal":
		if cfg.PayPalClientID == "" || cfg.PayPalClientSecret == "" {
			return nil, errors.New("PAYPAL_CLIENT_ID and PAYPAL_CLIENT_SECRET are required")
		}
	case "stripe":
		if cfg.StripeSecretKey == "" {
			return nil, errors.New("STRIPE_SECRET_KEY is required")
		}
	default:
		return nil, fmt.Errorf("unsupported CHECKOUT_PROVIDER: %s", cfg.Provider)
	}
	if len(cfg.CurrencyCode) != 3 {
		return nil, fmt.Errorf("CURRENCY_CODE must be a three-letter ISO code, got %q", cfg.CurrencyCode)
	}

	return cfg, nil
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

func paypalDefaultURL(sandbox bool) string {
	if sandbox {
		return paypalSandboxURL
	}
	return paypalLiveURL
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
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseFloat(value string, fallback float64) float64 {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return fallback
	}
	return f
}

func parseCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseInt(value string, fallback int) int {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return fallback
	}
	return n
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

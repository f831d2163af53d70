package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	RedisURL    string

	PublicBaseURL      string
	CORSAllowedOrigins []string

	// PAYONE merchant account credentials.
	PayoneMerchantID   string
	PayoneSubAccountID string
	PayonePortalID     string
	PayoneKey          string
	PayoneEndpoint     string
	PayoneTestMode     bool

	// Comma-separated list of enabled payment methods
	// (creditcard, giropay, sepadebit, paypal).
	PayoneMethods []string

	GatewayTimeout time.Duration

	RedirectSigningKey string

	SessionTTL       time.Duration
	WebhookReplayTTL time.Duration
	IdempotencyTTL   time.Duration

	RateLimitWindow time.Duration
	RateLimitMax    int

	MigrationsDir string
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
		RedisURL:           k.String("REDIS_URL"),
		PublicBaseURL:      strings.TrimRight(strings.TrimSpace(k.String("PUBLIC_BASE_URL")), "/"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		PayoneMerchantID:   strings.TrimSpace(k.String("PAYONE_MID")),
		PayoneSubAccountID: strings.TrimSpace(k.String("PAYONE_AID")),
		PayonePortalID:     strings.TrimSpace(k.String("PAYONE_PORTAL_ID")),
		PayoneKey:          k.String("PAYONE_KEY"),
		PayoneEndpoint:     valueOrDefault(k.String("PAYONE_ENDPOINT"), "https://api.pay1.de/post-gateway/"),
		PayoneTestMode:     parseBool(k.String("PAYONE_TEST_MODE")),
		PayoneMethods:      splitAndTrim(valueOrDefault(k.String("PAYONE_METHODS"), "creditcard,giropay,sepadebit,paypal")),
		GatewayTimeout:     parseDuration(k.String("PAYONE_GATEWAY_TIMEOUT"), "20s"),
		RedirectSigningKey: k.String("REDIRECT_SIGNING_KEY"),
		SessionTTL:         parseDuration(k.String("CHECKOUT_SESSION_TTL"), "1h"),
		WebhookReplayTTL:   parseDuration(k.String("WEBHOOK_REPLAY_TTL"), "24h"),
		IdempotencyTTL:     parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		RateLimitWindow:    parseDuration(k.String("RATE_LIMIT_WINDOW"), "1m"),
		RateLimitMax:       int(k.Int64("RATE_LIMIT_MAX")),
		MigrationsDir:      valueOrDefault(k.String("MIGRATIONS_DIR"), "migrations"),
	}
	if cfg.RateLimitMax <= 0 {
		cfg.RateLimitMax = 30
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.PublicBaseURL == "" {
		return nil, errors.New("PUBLIC_BASE_URL is required")
	}
	if cfg.PayoneMerchantID == "" || cfg.PayoneSubAccountID == "" || cfg.PayonePortalID == "" || cfg.PayoneKey == "" {
		return nil, errors.New("PAYONE_MID, PAYONE_AID, PAYONE_PORTAL_ID and PAYONE_KEY are required")
	}
	if cfg.RedirectSigningKey == "" {
		return nil, errors.New("REDIRECT_SIGNING_KEY is required")
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

// MethodEnabled reports whether the given payment method identifier is toggled on.
func (c *Config) MethodEnabled(id string) bool {
	for _, m := range c.PayoneMethods {
		if strings.EqualFold(m, id) {
			return true
		}
	}
	return false
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
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
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

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

	"github.com/noah-isme/gocardless-connect/internal/connect"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	RedisURL           string
	CORSAllowedOrigins []string

	Environment string
	BaseURL     string
	AppID       string
	AppSecret   string
	AccessToken string
	MerchantID  string
	RedirectURI string
	CancelURI   string

	WebhookReplayTTL time.Duration
	WebhookRateLimit string
	IdempotencyTTL   time.Duration
	OutboundTimeout  time.Duration
	RetryMaxAttempts int
	RetryBase        time.Duration
	CircuitMinReq    int
	CircuitFailRatio float64
	CircuitOpenFor   time.Duration
	QueueConcurrency int
	QueueMaxRetry    int
	ConfirmTaskTTL   time.Duration
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
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		Environment:        strings.ToLower(valueOrDefault(k.String("GC_ENVIRONMENT"), "production")),
		AppID:              strings.TrimSpace(k.String("GC_APP_ID")),
		AppSecret:          strings.TrimSpace(k.String("GC_APP_SECRET")),
		AccessToken:        strings.TrimSpace(k.String("GC_ACCESS_TOKEN")),
		MerchantID:         strings.TrimSpace(k.String("GC_MERCHANT_ID")),
		RedirectURI:        strings.TrimSpace(k.String("GC_REDIRECT_URI")),
		CancelURI:          strings.TrimSpace(k.String("GC_CANCEL_URI")),
		WebhookReplayTTL:   parseDuration(k.String("WEBHOOK_REPLAY_TTL"), "24h"),
		WebhookRateLimit:   valueOrDefault(k.String("RATE_LIMIT_WEBHOOK"), "120-M"),
		IdempotencyTTL:     parseDuration(k.String("IDEMPOTENCY_TTL"), "10m"),
		OutboundTimeout:    parseDuration(k.String("OUTBOUND_TIMEOUT"), "10s"),
		RetryMaxAttempts:   parseInt(k.String("RETRY_MAX_ATTEMPTS"), 1),
		RetryBase:          parseDuration(k.String("RETRY_BASE"), "200ms"),
		CircuitMinReq:      parseInt(k.String("CIRCUIT_MIN_REQUESTS"), 5),
		CircuitFailRatio:   parseFloat(k.String("CIRCUIT_FAILURE_RATIO"), 0.5),
		CircuitOpenFor:     parseDuration(k.String("CIRCUIT_OPEN_FOR"), "30s"),
		QueueConcurrency:   parseInt(k.String("QUEUE_CONCURRENCY"), 5),
		QueueMaxRetry:      parseInt(k.String("QUEUE_MAX_RETRY"), 5),
		ConfirmTaskTTL:     parseDuration(k.String("CONFIRM_TASK_TTL"), "1h"),
	}

	baseURL, err := connect.BaseURL(cfg.Environment, k.String("GC_BASE_URL"))
	if err != nil {
		return nil, err
	}
	cfg.BaseURL = baseURL

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if err := cfg.Credentials().Validate(); err != nil {
		return nil, fmt.Errorf("GC credentials: %w", err)
	}

	return cfg, nil
}

// Credentials returns the account credentials snapshot described by the config.
func (c *Config) Credentials() connect.Credentials {
	return connect.Credentials{
		AppID:       c.AppID,
		AppSecret:   c.AppSecret,
		AccessToken: c.AccessToken,
		MerchantID:  c.MerchantID,
	}
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
		return strings.TrimSpace(value)
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

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
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

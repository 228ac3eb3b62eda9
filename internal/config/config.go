// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const EnvDevelopment = "Development"

type RuntimeConfig struct {
	Dev bool
}

type HTTPConfig struct {
	Port            int           `yaml:"port"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// PublicURL is where providers and browsers reach this service (redirects, webhooks).
	PublicURL string `yaml:"public_url"`
	// FrontendURL prefixes relative success/cancel URLs.
	FrontendURL string `yaml:"frontend_url"`
	// TrustProxy honours X-Forwarded-For; only set behind a proxy that rewrites it.
	TrustProxy bool `yaml:"trust_proxy"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

type StripeConfig struct {
	SecretKey     string `yaml:"secret_key"`
	WebhookSecret string `yaml:"webhook_secret"`
	APIBase       string `yaml:"api_base"` // empty = api.stripe.com
}

type PayPalConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	WebhookID    string `yaml:"webhook_id"`
	APIBase      string `yaml:"api_base"`
	BrandName    string `yaml:"brand_name"`
}

type PaymobConfig struct {
	APIKey        string `yaml:"api_key"`
	IntegrationID int64  `yaml:"integration_id"`
	IframeID      int64  `yaml:"iframe_id"`
	HMACSecret    string `yaml:"hmac_secret"`
	APIBase       string `yaml:"api_base"`
}

type PaymentConfig struct {
	// Accept webhooks with a bad signature. Honoured only when Environment is Development.
	AllowInvalidWebhookInDev bool          `yaml:"allow_invalid_webhook_in_dev"`
	ProviderTimeout          time.Duration `yaml:"provider_timeout"`
	SessionTTL               time.Duration `yaml:"session_ttl"`
	// Sandbox replaces providers without credentials by a local fake. Dev only.
	Sandbox bool `yaml:"sandbox"`

	Stripe StripeConfig `yaml:"stripe"`
	PayPal PayPalConfig `yaml:"paypal"`
	Paymob PaymobConfig `yaml:"paymob"`
}

type SchedulerConfig struct {
	ReconcileCron string        `yaml:"reconcile_cron"`
	StaleAfter    time.Duration `yaml:"stale_after"`
	BatchSize     int           `yaml:"batch_size"`
	Workers       int           `yaml:"workers"`
}

type RateLimitConfig struct {
	VerifyPerMinute int `yaml:"verify_per_minute"`
}

type Config struct {
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Log         LogConfig       `yaml:"log"`
	Database    DatabaseConfig  `yaml:"database"`
	Redis       RedisConfig     `yaml:"redis"`
	Auth        AuthConfig      `yaml:"auth"`
	Payment     PaymentConfig   `yaml:"payment"`
	Scheduler   SchedulerConfig `yaml:"scheduler"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`

	Runtime RuntimeConfig `yaml:"-"`
}

// IsDevelopment compares the environment name case-insensitively.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), EnvDevelopment)
}

// SignatureBypassEnabled requires both the flag and a Development environment.
func (c *Config) SignatureBypassEnabled() bool {
	return c.Payment.AllowInvalidWebhookInDev && c.IsDevelopment()
}

// LoadConfig reads the YAML file, then lets a .env file and the process
// environment override secrets.
func LoadConfig(path string, dev bool) (*Config, error) {
	// a missing .env is normal outside local development
	_ = godotenv.Load()

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	cfg.Runtime.Dev = dev

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = "Production"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.RequestTimeout <= 0 {
		cfg.HTTP.RequestTimeout = 30 * time.Second
	}
	if cfg.HTTP.ShutdownTimeout <= 0 {
		cfg.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if cfg.HTTP.FrontendURL == "" {
		cfg.HTTP.FrontendURL = "http://localhost:4200"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)
	if cfg.Payment.ProviderTimeout <= 0 {
		cfg.Payment.ProviderTimeout = 15 * time.Second
	}
	if cfg.Payment.SessionTTL <= 0 {
		cfg.Payment.SessionTTL = 24 * time.Hour
	}
	if cfg.Payment.PayPal.BrandName == "" {
		cfg.Payment.PayPal.BrandName = "Careera"
	}
	if cfg.Scheduler.ReconcileCron == "" {
		cfg.Scheduler.ReconcileCron = "@every 5m"
	}
	if cfg.Scheduler.StaleAfter <= 0 {
		cfg.Scheduler.StaleAfter = 15 * time.Minute
	}
	if cfg.Scheduler.BatchSize <= 0 {
		cfg.Scheduler.BatchSize = 200
	}
	if cfg.Scheduler.Workers <= 0 {
		cfg.Scheduler.Workers = 4
	}
	if cfg.RateLimit.VerifyPerMinute <= 0 {
		cfg.RateLimit.VerifyPerMinute = 60
	}
}

// applyEnv overrides secrets with environment variables when present.
func applyEnv(cfg *Config) error {
	str := map[string]*string{
		"APP_ENVIRONMENT":       &cfg.Environment,
		"DATABASE_URL":          &cfg.Database.URL,
		"REDIS_URL":             &cfg.Redis.URL,
		"REDIS_PASSWORD":        &cfg.Redis.Password,
		"JWT_SECRET":            &cfg.Auth.JWTSecret,
		"STRIPE_SECRET_KEY":     &cfg.Payment.Stripe.SecretKey,
		"STRIPE_WEBHOOK_SECRET": &cfg.Payment.Stripe.WebhookSecret,
		"PAYPAL_CLIENT_ID":      &cfg.Payment.PayPal.ClientID,
		"PAYPAL_CLIENT_SECRET":  &cfg.Payment.PayPal.ClientSecret,
		"PAYPAL_WEBHOOK_ID":     &cfg.Payment.PayPal.WebhookID,
		"PAYMOB_API_KEY":        &cfg.Payment.Paymob.APIKey,
		"PAYMOB_HMAC_SECRET":    &cfg.Payment.Paymob.HMACSecret,
	}
	for name, dst := range str {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			*dst = v
		}
	}
	if v := os.Getenv("ALLOW_INVALID_WEBHOOK_IN_DEV"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("ALLOW_INVALID_WEBHOOK_IN_DEV: %w", err)
		}
		cfg.Payment.AllowInvalidWebhookInDev = b
	}
	return nil
}

// Validate performs minimal checks; provider credentials are optional because a
// provider without them is simply not registered.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if c.Redis.URL == "" {
		return errors.New("redis.url is required")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if c.Payment.Sandbox && !c.IsDevelopment() {
		return errors.New("payment.sandbox is only allowed in the Development environment")
	}
	return nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}

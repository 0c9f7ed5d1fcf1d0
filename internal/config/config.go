// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	Port           int           `yaml:"port"`
	PublicBaseURL  string        `yaml:"public_base_url"` // used to build gateway notification urls
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
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

type PushinPayConfig struct {
	BaseURL       string `yaml:"base_url"`
	APIKey        string `yaml:"api_key"`
	WebhookSecret string `yaml:"webhook_secret"`
}

type MercadoPagoConfig struct {
	BaseURL          string `yaml:"base_url"`
	AccessToken      string `yaml:"access_token"`
	WebhookSecret    string `yaml:"webhook_secret"`
	PayerEmailDomain string `yaml:"payer_email_domain"`
}

type PaymentConfig struct {
	CallTimeout time.Duration     `yaml:"call_timeout"`
	OfferTTL    time.Duration     `yaml:"offer_ttl"`
	PushinPay   PushinPayConfig   `yaml:"pushinpay"`
	MercadoPago MercadoPagoConfig `yaml:"mercadopago"`
	Sandbox     struct {
		Enabled       bool   `yaml:"enabled"`
		WebhookSecret string `yaml:"webhook_secret"`
	} `yaml:"sandbox"`
}

type TelegramConfig struct {
	APIEndpoint string `yaml:"api_endpoint"` // tgbotapi format string: ".../bot%s/%s"
	Noop        bool   `yaml:"noop"`         // log instead of calling the platform
	Locale      string `yaml:"locale"`       // bot texts, see internal/infra/i18n/locales
}

type ActivationConfig struct {
	CodeTTL     time.Duration `yaml:"code_ttl"`
	MaxAttempts int           `yaml:"max_attempts"`
	Window      time.Duration `yaml:"window"`
}

type SchedulerConfig struct {
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	RecoveryInterval  time.Duration `yaml:"recovery_interval"`
	ExpiryInterval    time.Duration `yaml:"expiry_interval"`
	StaleAfter        time.Duration `yaml:"stale_after"`
	BatchSize         int           `yaml:"batch_size"`
}

type WorkerConfig struct {
	PoolSize      int           `yaml:"pool_size"`
	QueueSize     int           `yaml:"queue_size"`
	DeliveryLease time.Duration `yaml:"delivery_lease"`
}

type Config struct {
	Log        LogConfig        `yaml:"log"`
	HTTP       HTTPConfig       `yaml:"http"`
	Auth       AuthConfig       `yaml:"auth"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Payment    PaymentConfig    `yaml:"payment"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Activation ActivationConfig `yaml:"activation"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Worker     WorkerConfig     `yaml:"worker"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path, applies environment overrides for
// secrets and fills defaults.
func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b, dev)
}

func Parse(b []byte, dev bool) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	cfg.Runtime.Dev = dev

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("auth.jwt_secret is required")
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	override := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	override(&c.Database.URL, "DATABASE_URL")
	override(&c.Redis.URL, "REDIS_URL")
	override(&c.Auth.JWTSecret, "JWT_SECRET")
	override(&c.Payment.PushinPay.APIKey, "PUSHINPAY_API_KEY")
	override(&c.Payment.MercadoPago.AccessToken, "MERCADOPAGO_ACCESS_TOKEN")
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.HTTP.Port <= 0 {
		c.HTTP.Port = 8080
	}
	c.HTTP.RequestTimeout = orDefault(c.HTTP.RequestTimeout, 15*time.Second)
	if c.Database.MaxConns <= 0 {
		c.Database.MaxConns = 10
	}
	c.Redis.TTL = orDefault(c.Redis.TTL, 5*time.Minute)
	c.Payment.CallTimeout = orDefault(c.Payment.CallTimeout, 10*time.Second)
	c.Payment.OfferTTL = orDefault(c.Payment.OfferTTL, 30*time.Minute)
	if c.Telegram.APIEndpoint == "" {
		c.Telegram.APIEndpoint = "https://api.telegram.org/bot%s/%s"
	}
	if c.Telegram.Locale == "" {
		c.Telegram.Locale = "en"
	}
	c.Activation.CodeTTL = orDefault(c.Activation.CodeTTL, 10*time.Minute)
	if c.Activation.MaxAttempts <= 0 {
		c.Activation.MaxAttempts = 5
	}
	c.Activation.Window = orDefault(c.Activation.Window, 10*time.Minute)
	c.Scheduler.ReconcileInterval = orDefault(c.Scheduler.ReconcileInterval, time.Minute)
	c.Scheduler.RecoveryInterval = orDefault(c.Scheduler.RecoveryInterval, time.Minute)
	c.Scheduler.ExpiryInterval = orDefault(c.Scheduler.ExpiryInterval, 10*time.Minute)
	c.Scheduler.StaleAfter = orDefault(c.Scheduler.StaleAfter, 5*time.Minute)
	if c.Scheduler.BatchSize <= 0 {
		c.Scheduler.BatchSize = 50
	}
	if c.Worker.PoolSize <= 0 {
		c.Worker.PoolSize = 8
	}
	if c.Worker.QueueSize <= 0 {
		c.Worker.QueueSize = 256
	}
	c.Worker.DeliveryLease = orDefault(c.Worker.DeliveryLease, 2*time.Minute)
}

// SandboxActive reports whether the sandbox gateway and its simulate-approval
// route are served: only when enabled and in dev mode.
func (c *Config) SandboxActive() bool {
	return c.Payment.Sandbox.Enabled && c.Runtime.Dev
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

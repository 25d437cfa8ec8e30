// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type HTTPConfig struct {
	Port            int           `yaml:"port"`
	BasePath        string        `yaml:"base_path"` // routes are mounted under this prefix, e.g. /api
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RateLimit       int           `yaml:"rate_limit"` // POST requests per client per minute; 0 disables
	// TrustedProxies lists CIDRs or addresses of reverse proxies whose
	// X-Forwarded-For header is believed. Empty trusts nobody.
	TrustedProxies []string       `yaml:"trusted_proxies"`
	TrustedNets    []netip.Prefix `yaml:"-"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL            string `yaml:"url"`
	MaxConns       int32  `yaml:"max_conns"`
	MigrateOnStart bool   `yaml:"migrate_on_start"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"` // package cache entries
}

type CheckoutConfig struct {
	SessionTTL     time.Duration `yaml:"session_ttl"`
	FeePercent     *float64      `yaml:"fee_percent"`     // nil defaults to 5; 0 is a valid fee
	PublicBaseURL  string        `yaml:"public_base_url"` // storefront origin used for redirect URLs
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`
}

type StripeConfig struct {
	SecretKey     string `yaml:"secret_key"`
	WebhookSecret string `yaml:"webhook_secret"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"` // HS256; empty disables bearer verification
	Issuer    string `yaml:"issuer"`
}

type SchedulerConfig struct {
	ExpiryInterval  time.Duration `yaml:"expiry_interval"`
	ExpiryBatchSize int           `yaml:"expiry_batch_size"`
	WebhookWorkers  int           `yaml:"webhook_workers"`
	WebhookQueue    int           `yaml:"webhook_queue"`
}

type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Checkout  CheckoutConfig  `yaml:"checkout"`
	Stripe    StripeConfig    `yaml:"stripe"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Auth      AuthConfig      `yaml:"auth"`
	Scheduler SchedulerConfig `yaml:"scheduler"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path, applies defaults and validates it.
func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b, dev)
}

// Parse is LoadConfig without the file read.
func Parse(b []byte, dev bool) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	// defaults
	if cfg.HTTP.Port <= 0 {
		cfg.HTTP.Port = 3001
	}
	if cfg.HTTP.BasePath == "" {
		cfg.HTTP.BasePath = "/api"
	}
	cfg.HTTP.BasePath = "/" + strings.Trim(cfg.HTTP.BasePath, "/")
	if cfg.HTTP.ReadTimeout <= 0 {
		cfg.HTTP.ReadTimeout = 10 * time.Second
	}
	if cfg.HTTP.WriteTimeout <= 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.ShutdownTimeout <= 0 {
		cfg.HTTP.ShutdownTimeout = 10 * time.Second
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
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL, 10*time.Minute)
	cfg.Checkout.SessionTTL = normalizeTTL(cfg.Checkout.SessionTTL, 30*time.Minute)
	cfg.Checkout.IdempotencyTTL = normalizeTTL(cfg.Checkout.IdempotencyTTL, 24*time.Hour)
	if cfg.Checkout.FeePercent == nil {
		fee := 5.0
		cfg.Checkout.FeePercent = &fee
	}
	if cfg.Checkout.PublicBaseURL == "" {
		cfg.Checkout.PublicBaseURL = "http://localhost:3000"
	}
	cfg.Checkout.PublicBaseURL = strings.TrimRight(cfg.Checkout.PublicBaseURL, "/")
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "purchase-events"
	}
	cfg.Scheduler.ExpiryInterval = normalizeTTL(cfg.Scheduler.ExpiryInterval, time.Minute)
	if cfg.Scheduler.ExpiryBatchSize <= 0 {
		cfg.Scheduler.ExpiryBatchSize = 100
	}
	if cfg.Scheduler.WebhookWorkers <= 0 {
		cfg.Scheduler.WebhookWorkers = 4
	}
	if cfg.Scheduler.WebhookQueue <= 0 {
		cfg.Scheduler.WebhookQueue = 64
	}

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if fee := *cfg.Checkout.FeePercent; fee < 0 || fee >= 100 {
		return nil, errors.New("checkout.fee_percent must be in [0, 100)")
	}
	nets, err := parsePrefixes(cfg.HTTP.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("http.trusted_proxies: %w", err)
	}
	cfg.HTTP.TrustedNets = nets
	if cfg.Stripe.SecretKey != "" && cfg.Stripe.WebhookSecret == "" {
		return nil, errors.New("stripe.webhook_secret is required when stripe.secret_key is set")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func normalizeTTL(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// parsePrefixes accepts CIDRs and bare addresses; an address becomes a
// single-host prefix.
func parsePrefixes(in []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(in))
	for _, raw := range in {
		raw = strings.TrimSpace(raw)
		if strings.Contains(raw, "/") {
			p, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, err
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

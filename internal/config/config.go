package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variable names that override file-based settings.
const (
	EnvConfigPath          = "CONFIG_PATH"
	EnvDBConnection        = "DB_CONNECTION"
	EnvJWTSecret           = "JWT_SECRET"
	EnvJWTExpiry           = "JWT_EXPIRY"
	EnvOpenRouterAPIKey    = "OPENROUTER_API_KEY"
	EnvStripeSecretKey     = "STRIPE_SECRET_KEY"
	EnvStripeWebhookSecret = "STRIPE_WEBHOOK_SECRET"
	EnvRedisAddr           = "REDIS_ADDR"
	EnvPort                = "PORT"
)

// Defaults applied when the config file omits a value.
const (
	defaultJWTExpiry          = time.Hour
	defaultRateLimitPerUser   = 10
	defaultRateLimitWindow    = time.Hour
	defaultRetriesPerModel    = 2
	defaultRetryDelay         = time.Second
	defaultPrimaryModel       = "openai/gpt-4o-mini"
	defaultFallbackModel      = "meta-llama/llama-3.1-70b-instruct"
	defaultOpenRouterEndpoint = "https://openrouter.ai/api/v1/chat/completions"
	defaultPort               = 8318
)

// JWTConfig holds token signing settings.
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
}

// OpenRouterConfig holds language-model provider settings.
type OpenRouterConfig struct {
	APIKey          string        `yaml:"api-key"`
	Endpoint        string        `yaml:"endpoint"`
	PrimaryModel    string        `yaml:"primary-model"`
	FallbackModel   string        `yaml:"fallback-model"`
	RetriesPerModel int           `yaml:"retries-per-model"`
	RetryDelay      time.Duration `yaml:"retry-delay"`
}

// Models returns the candidate model list in fallback order.
func (c OpenRouterConfig) Models() []string {
	models := make([]string, 0, 2)
	if m := strings.TrimSpace(c.PrimaryModel); m != "" {
		models = append(models, m)
	}
	if m := strings.TrimSpace(c.FallbackModel); m != "" {
		models = append(models, m)
	}
	return models
}

// StripeConfig holds payment-processor settings.
type StripeConfig struct {
	SecretKey      string `yaml:"secret-key"`
	WebhookSecret  string `yaml:"webhook-secret"`
	StarterPriceID string `yaml:"starter-price-id"`
	GrowthPriceID  string `yaml:"growth-price-id"`
	FrontendURL    string `yaml:"frontend-url"`
}

// RedisConfig holds settings for the shared key-value store.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// RateLimitConfig holds sliding-window limiter settings.
type RateLimitConfig struct {
	PerUser int           `yaml:"per-user"`
	Window  time.Duration `yaml:"window"`
}

// Config is the process-wide configuration, constructed once at startup
// and passed by reference to every component that needs it.
type Config struct {
	Port        int              `yaml:"port"`
	DatabaseDSN string           `yaml:"database-dsn"`
	JWT         JWTConfig        `yaml:"jwt"`
	OpenRouter  OpenRouterConfig `yaml:"openrouter"`
	Stripe      StripeConfig     `yaml:"stripe"`
	Redis       RedisConfig      `yaml:"redis"`
	RateLimit   RateLimitConfig  `yaml:"rate-limit"`
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = strings.TrimSpace(os.Getenv(EnvConfigPath))
	}
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// Load reads the YAML config file and applies environment overrides.
// A missing file is not an error; required values are validated by the
// components that consume them.
func Load(configPath string) (Config, error) {
	cfg := Config{
		Port: defaultPort,
		JWT:  JWTConfig{Expiry: defaultJWTExpiry},
		OpenRouter: OpenRouterConfig{
			Endpoint:        defaultOpenRouterEndpoint,
			PrimaryModel:    defaultPrimaryModel,
			FallbackModel:   defaultFallbackModel,
			RetriesPerModel: defaultRetriesPerModel,
			RetryDelay:      defaultRetryDelay,
		},
		RateLimit: RateLimitConfig{
			PerUser: defaultRateLimitPerUser,
			Window:  defaultRateLimitWindow,
		},
	}

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
			return Config{}, fmt.Errorf("parse config file: %w", errUnmarshal)
		}
	} else if !os.IsNotExist(errRead) {
		return Config{}, fmt.Errorf("read config file: %w", errRead)
	}

	applyEnvOverrides(&cfg)
	applyBounds(&cfg)
	return cfg, nil
}

// applyEnvOverrides replaces file values with environment settings.
func applyEnvOverrides(cfg *Config) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		cfg.DatabaseDSN = dsn
	}
	if secret := strings.TrimSpace(os.Getenv(EnvJWTSecret)); secret != "" {
		cfg.JWT.Secret = secret
	}
	if expiryRaw := strings.TrimSpace(os.Getenv(EnvJWTExpiry)); expiryRaw != "" {
		if expiry, errParse := time.ParseDuration(expiryRaw); errParse == nil && expiry > 0 {
			cfg.JWT.Expiry = expiry
		}
	}
	if key := strings.TrimSpace(os.Getenv(EnvOpenRouterAPIKey)); key != "" {
		cfg.OpenRouter.APIKey = key
	}
	if key := strings.TrimSpace(os.Getenv(EnvStripeSecretKey)); key != "" {
		cfg.Stripe.SecretKey = key
	}
	if secret := strings.TrimSpace(os.Getenv(EnvStripeWebhookSecret)); secret != "" {
		cfg.Stripe.WebhookSecret = secret
	}
	if addr := strings.TrimSpace(os.Getenv(EnvRedisAddr)); addr != "" {
		cfg.Redis.Addr = addr
		cfg.Redis.Enabled = true
	}
	if portRaw := strings.TrimSpace(os.Getenv(EnvPort)); portRaw != "" {
		if port, errParse := strconv.Atoi(portRaw); errParse == nil && port > 0 && port <= 65535 {
			cfg.Port = port
		}
	}
}

// applyBounds clamps invalid values back to defaults.
func applyBounds(cfg *Config) {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		cfg.Port = defaultPort
	}
	if cfg.JWT.Expiry <= 0 {
		cfg.JWT.Expiry = defaultJWTExpiry
	}
	if cfg.OpenRouter.RetriesPerModel <= 0 {
		cfg.OpenRouter.RetriesPerModel = defaultRetriesPerModel
	}
	if cfg.OpenRouter.RetryDelay < 0 {
		cfg.OpenRouter.RetryDelay = defaultRetryDelay
	}
	if strings.TrimSpace(cfg.OpenRouter.Endpoint) == "" {
		cfg.OpenRouter.Endpoint = defaultOpenRouterEndpoint
	}
	if cfg.RateLimit.PerUser <= 0 {
		cfg.RateLimit.PerUser = defaultRateLimitPerUser
	}
	if cfg.RateLimit.Window <= 0 {
		cfg.RateLimit.Window = defaultRateLimitWindow
	}
	if cfg.Redis.DB < 0 {
		cfg.Redis.DB = 0
	}
}

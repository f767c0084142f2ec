package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (GOMART_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (GOMART_DATABASE_URL or DATABASE_URL)" flag:"database-url"`

	// APIKeyPepper keys the HMAC used to hash client API keys at rest.
	APIKeyPepper string `usage:"HMAC pepper for API key hashing" flag:"api-key-pepper"`

	Gateway   GatewayConfig
	Pricing   PricingConfig
	Notify    NotifyConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Graceful  GracefulConfig
}

// GatewayConfig configures the external payment provider client.
type GatewayConfig struct {
	BaseURL   string        `default:"" usage:"Payment provider API base URL (empty for production default)" flag:"gateway-base-url"`
	KeyID     string        `usage:"Payment provider key id" flag:"gateway-key-id"`
	KeySecret string        `usage:"Payment provider key secret" flag:"gateway-key-secret"`
	Timeout   time.Duration `default:"10s" usage:"Per-call provider timeout; must stay under the server write timeout" flag:"gateway-timeout"`
}

// PricingConfig controls the shipping fee policy, in minor currency units.
type PricingConfig struct {
	FlatShippingFee       int64 `default:"50" usage:"Flat shipping fee below the free-shipping threshold" flag:"flat-shipping-fee"`
	FreeShippingThreshold int64 `default:"5000" usage:"Item subtotal at which shipping becomes free" flag:"free-shipping-threshold"`
}

// NotifyConfig controls lifecycle event delivery.
type NotifyConfig struct {
	WebhookURL string        `default:"" usage:"Notification webhook endpoint; empty logs events instead" flag:"notify-webhook-url"`
	Timeout    time.Duration `default:"5s" usage:"Per-event delivery timeout" flag:"notify-timeout"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "GOMART",
		Files:     []string{"config.yaml", "/etc/gomart/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set GOMART_DATABASE_URL or DATABASE_URL")
	}
	if cfg.Gateway.KeyID == "" || cfg.Gateway.KeySecret == "" {
		return nil, errors.New("gateway credentials are required: set GOMART_GATEWAY_KEY_ID and GOMART_GATEWAY_KEY_SECRET")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables
// (Railway, Render, etc.) that use standard names like DATABASE_URL and PORT
// to the application's GOMART_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}

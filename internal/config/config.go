// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Payment provider credentials. The SHA-256 digests of these two values
	// authenticate inbound payment notifications.
	ProviderAPIKey    string
	ProviderAPISecret string
	ProviderBaseURL   string
	ProviderMode      string // "test" or "prod", forwarded on every payment request

	// Merchant settings
	Currency string // settlement currency, ISO code
	BaseURL  string // public base URL for success/cancel redirects
	IPNURL   string // notification URL advertised to the provider

	// Observability
	OTLPEndpoint string // OTLP gRPC endpoint (optional, tracing disabled if empty)
	RateLimitRPM int
}

const (
	DefaultPort            = "8080"
	DefaultEnv             = "development"
	DefaultLogLevel        = "info"
	DefaultProviderBaseURL = "https://paytech.sn"
	DefaultProviderMode    = "test"
	DefaultCurrency        = "XOF"
	DefaultRateLimit       = 120
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", DefaultPort),
		Env:               getEnv("ENV", DefaultEnv),
		LogLevel:          getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:       os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		ProviderAPIKey:    os.Getenv("PAYTECH_API_KEY"),
		ProviderAPISecret: os.Getenv("PAYTECH_API_SECRET"),
		ProviderBaseURL:   getEnv("PAYTECH_BASE_URL", DefaultProviderBaseURL),
		ProviderMode:      getEnv("PAYTECH_MODE", DefaultProviderMode),
		Currency:          getEnv("CURRENCY", DefaultCurrency),
		BaseURL:           os.Getenv("BASE_URL"),
		IPNURL:            os.Getenv("IPN_URL"),
		OTLPEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		RateLimitRPM:      getEnvInt("RATE_LIMIT_RPM", DefaultRateLimit),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present.
// A missing credential must fail loudly here rather than let a payment
// request proceed unsigned.
func (c *Config) Validate() error {
	if c.ProviderAPIKey == "" {
		return fmt.Errorf("PAYTECH_API_KEY is required")
	}
	if c.ProviderAPISecret == "" {
		return fmt.Errorf("PAYTECH_API_SECRET is required")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("BASE_URL is required")
	}
	if c.ProviderMode != "test" && c.ProviderMode != "prod" {
		return fmt.Errorf("PAYTECH_MODE must be \"test\" or \"prod\", got %q", c.ProviderMode)
	}
	if c.IPNURL == "" {
		// Fall back to the conventional route on our own base URL.
		c.IPNURL = c.BaseURL + "/v1/payments/ipn"
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// Package config defines the global configuration for the Wayfarer billing
// service. Configuration is loaded once at process initialization and is
// immutable thereafter, following 12-Factor principles: values come from the
// OS environment (highest priority) or a local .env file.
//
// Any missing required value or invalid format causes startup to fail
// immediately (fail fast).
package config

import (
	"time"

	"wayfarer/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging of sensitive
// values.
type SecretString = types.SecretString

// Config is the top-level configuration struct. It is populated once during
// process initialization and never modified. Sub-components receive only the
// specific config subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Server   ServerConfig
	Database DatabaseConfig
	Billing  BillingConfig
	Auth     AuthConfig
	Security SecurityConfig
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// Public dashboard URL for checkout/portal redirects (no trailing slash).
	DashboardURL   string        `envconfig:"DASHBOARD_URL" validate:"required,url"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"29s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns        int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
}

// BillingConfig holds Stripe credentials and the static price table.
// The price identifiers map each (tier, billing period) pair to a Stripe
// Price; the mapping is read once at startup and never changes at runtime.
type BillingConfig struct {
	StripeSecretKey     SecretString `envconfig:"STRIPE_SECRET_KEY" validate:"required"`
	StripeWebhookSecret SecretString `envconfig:"STRIPE_WEBHOOK_SECRET" validate:"required"`

	PriceProMonthly        string `envconfig:"STRIPE_PRICE_PRO_MONTHLY" validate:"required"`
	PriceProYearly         string `envconfig:"STRIPE_PRICE_PRO_YEARLY" validate:"required"`
	PriceEnterpriseMonthly string `envconfig:"STRIPE_PRICE_ENTERPRISE_MONTHLY" validate:"required"`
	PriceEnterpriseYearly  string `envconfig:"STRIPE_PRICE_ENTERPRISE_YEARLY" validate:"required"`

	// GatewayTimeout bounds every outbound Stripe call.
	GatewayTimeout time.Duration `envconfig:"STRIPE_TIMEOUT" default:"10s"`

	// EventRetention bounds the processed-event log; Stripe does not redeliver
	// events older than 30 days.
	EventRetention time.Duration `envconfig:"EVENT_RETENTION" default:"720h"`
}

// AuthConfig holds JWT signing configuration for the identity layer.
type AuthConfig struct {
	JWTSecret SecretString  `envconfig:"JWT_SECRET" validate:"required,min=32"`
	TokenTTL  time.Duration `envconfig:"JWT_TTL" default:"24h"`
}

// SecurityConfig holds CORS and related HTTP security settings.
type SecurityConfig struct {
	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

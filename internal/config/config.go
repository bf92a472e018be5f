package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config captures runtime configuration values used by the backend service.
type Config struct {
	// ServerAddress is the host:port pair the HTTP server listens on. Defaults to ":8080".
	ServerAddress string

	// DatabaseURL is the Postgres DSN used by database/sql.
	DatabaseURL string

	// StripeAPIKey is the secret key used to authenticate against the Stripe API.
	StripeAPIKey string

	// StripeWebhookSecret is the shared secret used to verify webhook signatures.
	StripeWebhookSecret string

	// StripeTimeout bounds each outbound Stripe API call.
	StripeTimeout time.Duration

	// WebhookTolerance is the allowed clock skew on webhook signature timestamps.
	WebhookTolerance time.Duration

	// AppURL is the frontend base URL; default checkout redirect URLs are
	// derived from it when a request omits its own.
	AppURL string
}

const (
	defaultServerAddress    = ":8080"
	defaultAppURL           = "http://localhost:3000"
	defaultStripeTimeout    = 10 * time.Second
	defaultWebhookTolerance = 5 * time.Minute

	envServerAddress    = "BACKEND_ADDR"
	envDatabaseURL      = "DATABASE_URL"
	envStripeAPIKey     = "STRIPE_API_KEY"
	envWebhookSecret    = "STRIPE_WEBHOOK_SECRET"
	envStripeTimeout    = "STRIPE_API_TIMEOUT"
	envWebhookTolerance = "STRIPE_WEBHOOK_TOLERANCE"
	envAppURL           = "APP_URL"
)

// Load reads configuration from environment variables, applies defaults, and
// returns a Config structure. Required values return an error when missing.
func Load() (Config, error) {
	cfg := Config{
		ServerAddress:       firstNonEmpty(os.Getenv(envServerAddress), defaultServerAddress),
		DatabaseURL:         os.Getenv(envDatabaseURL),
		StripeAPIKey:        os.Getenv(envStripeAPIKey),
		StripeWebhookSecret: os.Getenv(envWebhookSecret),
		StripeTimeout:       defaultStripeTimeout,
		WebhookTolerance:    defaultWebhookTolerance,
		AppURL:              firstNonEmpty(strings.TrimRight(os.Getenv(envAppURL), "/"), defaultAppURL),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("%s is required", envDatabaseURL)
	}
	if cfg.StripeAPIKey == "" {
		return Config{}, fmt.Errorf("%s is required", envStripeAPIKey)
	}
	if cfg.StripeWebhookSecret == "" {
		return Config{}, fmt.Errorf("%s is required", envWebhookSecret)
	}

	if raw := os.Getenv(envStripeTimeout); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envStripeTimeout, err)
		}
		cfg.StripeTimeout = d
	}
	if raw := os.Getenv(envWebhookTolerance); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envWebhookTolerance, err)
		}
		cfg.WebhookTolerance = d
	}

	return cfg, nil
}

// SuccessURL is the default redirect target after a completed checkout.
func (c Config) SuccessURL() string {
	return c.AppURL + "/checkout/success"
}

// CancelURL is the default redirect target after an abandoned checkout.
func (c Config) CancelURL() string {
	return c.AppURL + "/checkout/cancel"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

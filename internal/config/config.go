// Package config loads the service configuration from the environment.
package config

import (
	"fmt"
	"os"

	"github.com/CreateIntelligens/voicetextpro/internal/crypto"
)

// Defaults for the listen addresses.
const (
	DefaultHTTPAddr    = ":8080"
	DefaultMetricsAddr = ":9090"
)

// Config is the full service configuration. Secrets are kept as loaded;
// nothing here is logged wholesale.
type Config struct {
	// Google OAuth client settings. All three must be set for the
	// calendar integration to be considered configured.
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// TokenKeyHex is the hex-encoded 256-bit key credentials are sealed
	// under. Changing it orphans every stored credential.
	TokenKeyHex string

	// DatabaseURL selects the Postgres credential store; empty falls back
	// to the in-memory store (single instance, development only).
	DatabaseURL string

	HTTPAddr    string
	MetricsAddr string
}

// FromEnv reads the configuration from environment variables.
func FromEnv() Config {
	return Config{
		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURL:  os.Getenv("GOOGLE_REDIRECT_URL"),
		TokenKeyHex:        os.Getenv("CALENDAR_TOKEN_KEY"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		HTTPAddr:           envOr("HTTP_ADDR", DefaultHTTPAddr),
		MetricsAddr:        envOr("METRICS_ADDR", DefaultMetricsAddr),
	}
}

// CalendarConfigured reports whether the OAuth client and token key are
// all present. When false the service starts but the calendar endpoints
// answer 503.
func (c Config) CalendarConfigured() bool {
	return c.GoogleClientID != "" &&
		c.GoogleClientSecret != "" &&
		c.GoogleRedirectURL != "" &&
		c.TokenKeyHex != ""
}

// TokenKey decodes and validates the credential encryption key.
func (c Config) TokenKey() ([]byte, error) {
	key, err := crypto.ParseKeyHex(c.TokenKeyHex)
	if err != nil {
		return nil, fmt.Errorf("CALENDAR_TOKEN_KEY: %w", err)
	}
	return key, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

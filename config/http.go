package config

import (
	"strings"
	"time"
)

// HTTPConfig contains read API server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// CompressionEnabled enables gzip compression for JSON responses.
	CompressionEnabled bool `env:"HTTP_COMPRESSION_ENABLED" envDefault:"false"`

	// CompressionLevel is the gzip compression level (1-9).
	CompressionLevel int `env:"HTTP_COMPRESSION_LEVEL" envDefault:"6"`

	ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" envDefault:"10s"`
	ReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"2m"`

	// Auth configures bearer-token verification for /api routes.
	Auth APIAuthConfig `envPrefix:"API_OIDC_"`
}

// APIAuthConfig enables OIDC bearer-token verification when an issuer is set.
type APIAuthConfig struct {
	IssuerURL string `env:"ISSUER_URL"`
	ClientID  string `env:"CLIENT_ID" envDefault:"domain-enricher"`
}

// Enabled reports whether tokens must be verified.
func (a APIAuthConfig) Enabled() bool {
	return a.IssuerURL != ""
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	// Clamp compression level to valid gzip range (1-9)
	if h.CompressionLevel < 1 {
		h.CompressionLevel = 1
	}
	if h.CompressionLevel > 9 {
		h.CompressionLevel = 9
	}
	h.ReadHeaderTimeout = orDuration(h.ReadHeaderTimeout, 10*time.Second)
	h.ReadTimeout = orDuration(h.ReadTimeout, 30*time.Second)
	h.WriteTimeout = orDuration(h.WriteTimeout, 30*time.Second)
	h.IdleTimeout = orDuration(h.IdleTimeout, 2*time.Minute)
	h.Auth.IssuerURL = strings.TrimRight(strings.TrimSpace(h.Auth.IssuerURL), "/")
}

func orDuration(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

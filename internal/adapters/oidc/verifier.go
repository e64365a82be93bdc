// Package oidc verifies bearer tokens issued by an OpenID Connect provider.
package oidc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
)

// VerifierConfig holds configuration for the token verifier.
type VerifierConfig struct {
	IssuerURL  string
	ClientID   string
	HTTPClient *http.Client // Optional, defaults to a client with a 10s timeout
}

// Verifier checks ID token signatures, issuer, audience and expiry against the issuer's JWKS.
type Verifier struct {
	verifier *gooidc.IDTokenVerifier
}

// NewVerifier runs discovery against the issuer.
func NewVerifier(ctx context.Context, cfg VerifierConfig) (*Verifier, error) {
	if cfg.IssuerURL == "" {
		return nil, errors.New("issuer URL is required")
	}
	if cfg.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	provider, err := gooidc.NewProvider(gooidc.ClientContext(ctx, client), cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery: %w", err)
	}
	return &Verifier{verifier: provider.Verifier(&gooidc.Config{ClientID: cfg.ClientID})}, nil
}

// NewStaticVerifier verifies against a fixed key set, mainly for tests.
func NewStaticVerifier(issuer, clientID string, keys gooidc.KeySet, now func() time.Time) *Verifier {
	return &Verifier{verifier: gooidc.NewVerifier(issuer, keys, &gooidc.Config{ClientID: clientID, Now: now})}
}

// Verify returns the token subject.
func (v *Verifier) Verify(ctx context.Context, rawToken string) (string, error) {
	tok, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return "", fmt.Errorf("verify token: %w", err)
	}
	return tok.Subject, nil
}

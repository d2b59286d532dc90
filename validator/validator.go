// Package validator verifies access tokens and produces normalized protocol
// claims. Two interchangeable strategies satisfy the same contract: in-memory
// JWT verification against the issuer's signing keys, and remote introspection
// against the Authorization Server. Introspection honors revocation instantly
// at the cost of a network round trip per uncached token; JWT verification is
// zero-round-trip but only sees revocation once the token expires.
package validator

import (
	"context"
	"net/http"
	"time"

	"github.com/open-rails/claimskit/autherr"
	"github.com/open-rails/claimskit/claims"
	"github.com/open-rails/claimskit/jwks"
)

// Strategy selects the token validation mechanism.
type Strategy string

const (
	// StrategyJWT verifies signatures in memory against the JWKS.
	StrategyJWT Strategy = "jwt"
	// StrategyIntrospection asks the Authorization Server per token.
	StrategyIntrospection Strategy = "introspection"
)

// TokenValidator is the single extension point for token validation. On
// success the returned claims have a non-empty subject and scope and an
// expiry in the future.
type TokenValidator interface {
	ValidateToken(ctx context.Context, accessToken string) (claims.BaseClaims, error)
}

// Config selects and parameterizes a validation strategy.
type Config struct {
	Strategy Strategy

	// Issuer is the expected iss claim. Required for the JWT strategy.
	Issuer string
	// Audience is the expected aud claim. Optional; empty skips the check.
	Audience string
	// Keys supplies signing keys for the JWT strategy.
	Keys *jwks.KeyRetriever
	// ClockSkew is the acceptable leeway when checking time claims.
	ClockSkew time.Duration

	// IntrospectionURL is the Authorization Server's introspection endpoint.
	IntrospectionURL string
	// ClientID and ClientSecret are the confidential client credentials sent
	// as client_secret_basic on introspection calls.
	ClientID     string
	ClientSecret string
	// HTTPTimeout bounds each introspection request.
	HTTPTimeout time.Duration
	// HTTPClient overrides the default introspection client. Mainly for tests.
	HTTPClient *http.Client
}

// New builds the validator for the configured strategy.
func New(cfg Config) (TokenValidator, error) {
	switch cfg.Strategy {
	case StrategyJWT, "":
		return NewJWTValidator(cfg)
	case StrategyIntrospection:
		return NewIntrospectionValidator(cfg)
	default:
		return nil, autherr.Newf(autherr.CodeServer, "unknown validation strategy %q", cfg.Strategy)
	}
}

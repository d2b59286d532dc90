package validator

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/open-rails/claimskit/autherr"
	"github.com/open-rails/claimskit/claims"
	"github.com/open-rails/claimskit/jwks"
)

const defaultClockSkew = 30 * time.Second

// JWTValidator verifies RS256-signed tokens in memory against the issuer's
// published signing keys.
type JWTValidator struct {
	issuer   string
	audience string
	keys     *jwks.KeyRetriever
	skew     time.Duration
}

// NewJWTValidator builds the in-memory strategy from cfg.
func NewJWTValidator(cfg Config) (*JWTValidator, error) {
	if cfg.Keys == nil {
		return nil, autherr.Newf(autherr.CodeServer, "jwt strategy requires a key retriever")
	}
	if cfg.Issuer == "" {
		return nil, autherr.Newf(autherr.CodeServer, "jwt strategy requires an expected issuer")
	}
	skew := cfg.ClockSkew
	if skew <= 0 {
		skew = defaultClockSkew
	}
	return &JWTValidator{
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		keys:     cfg.Keys,
		skew:     skew,
	}, nil
}

// ValidateToken verifies signature, issuer, audience, and expiry, then
// extracts the normalized protocol claims.
func (v *JWTValidator) ValidateToken(ctx context.Context, accessToken string) (claims.BaseClaims, error) {
	// Read the header without verifying to learn which key signed the token.
	kid, err := signingKeyID(accessToken)
	if err != nil {
		return claims.BaseClaims{}, err
	}

	key, err := v.keys.Key(ctx, kid)
	if err != nil {
		return claims.BaseClaims{}, err
	}

	parsed, err := jwt.ParseString(
		accessToken,
		jwt.WithKey(jwa.RS256, key),
		jwt.WithValidate(false),
	)
	if err != nil {
		return claims.BaseClaims{}, autherr.New(autherr.CodeInvalidToken, err)
	}

	validateOpts := []jwt.ValidateOption{
		jwt.WithAcceptableSkew(v.skew),
		jwt.WithIssuer(v.issuer),
	}
	if v.audience != "" {
		validateOpts = append(validateOpts, jwt.WithAudience(v.audience))
	}
	if err := jwt.Validate(parsed, validateOpts...); err != nil {
		return claims.BaseClaims{}, classifyValidationError(err)
	}

	base := claims.BaseClaims{
		Subject:   parsed.Subject(),
		ExpiresAt: parsed.Expiration().Unix(),
	}
	if raw, ok := parsed.Get("scope"); ok {
		if scope, ok := raw.(string); ok {
			base.Scopes = claims.ParseScopes(scope)
		}
	}
	if err := base.Validate(time.Now()); err != nil {
		return claims.BaseClaims{}, err
	}
	return base, nil
}

// signingKeyID extracts the kid from the protected header. Only RS256 is
// accepted; anything else is rejected before a key lookup happens.
func signingKeyID(accessToken string) (string, error) {
	msg, err := jws.ParseString(accessToken)
	if err != nil {
		return "", autherr.New(autherr.CodeInvalidToken, err)
	}
	sigs := msg.Signatures()
	if len(sigs) == 0 {
		return "", autherr.Newf(autherr.CodeInvalidToken, "token has no signature")
	}
	headers := sigs[0].ProtectedHeaders()
	if alg := headers.Algorithm(); alg != jwa.RS256 {
		return "", autherr.Newf(autherr.CodeInvalidToken, "unexpected signing algorithm %q", alg)
	}
	kid := headers.KeyID()
	if kid == "" {
		return "", autherr.Newf(autherr.CodeInvalidToken, "token header has no kid")
	}
	return kid, nil
}

func classifyValidationError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired()):
		return autherr.New(autherr.CodeTokenExpired, err)
	case errors.Is(err, jwt.ErrInvalidIssuer()), errors.Is(err, jwt.ErrInvalidAudience()),
		errors.Is(err, jwt.ErrTokenNotYetValid()):
		return autherr.New(autherr.CodeInvalidToken, err)
	}
	// jwx reports some exp failures through generic validation errors.
	if strings.Contains(strings.ToLower(err.Error()), `"exp" not satisfied`) {
		return autherr.New(autherr.CodeTokenExpired, err)
	}
	return autherr.New(autherr.CodeInvalidToken, err)
}

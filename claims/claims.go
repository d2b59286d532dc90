// Package claims holds the data model produced by the authorization pipeline:
// protocol claims from the token, identity claims from userinfo, and
// domain-specific custom claims supplied by the host API.
package claims

import (
	"strings"
	"time"

	"github.com/open-rails/claimskit/autherr"
)

// BaseClaims are the protocol claims extracted from a validated access token.
type BaseClaims struct {
	Subject   string   `json:"sub"`
	Scopes    []string `json:"scopes"`
	ExpiresAt int64    `json:"exp"`
	// ClientID is populated by introspection when the Authorization Server
	// returns it. Empty otherwise.
	ClientID string `json:"client_id,omitempty"`
}

// ParseScopes splits the space-delimited wire form of the scope claim.
func ParseScopes(scope string) []string {
	return strings.Fields(scope)
}

// HasScope reports whether the token was granted the named scope.
func (b BaseClaims) HasScope(scope string) bool {
	for _, s := range b.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Validate enforces the post-validation invariants: a non-empty subject and
// scope, and an expiry in the future. A trusted issuer always supplies these,
// so a violation is a configuration defect rather than a client mistake.
func (b BaseClaims) Validate(now time.Time) error {
	if b.Subject == "" {
		return autherr.Newf(autherr.CodeMissingClaim, "token has no sub claim")
	}
	if len(b.Scopes) == 0 {
		return autherr.Newf(autherr.CodeMissingClaim, "token has no scope claim")
	}
	if b.ExpiresAt <= now.Unix() {
		return autherr.Newf(autherr.CodeTokenExpired, "token expired at %d", b.ExpiresAt)
	}
	return nil
}

// UserInfoClaims are the identity claims from an OpenID Connect userinfo
// lookup or from embedded token claims.
type UserInfoClaims struct {
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	Email      string `json:"email"`
}

// Validate requires all three fields once the claims are populated. A missing
// field is an issuer compatibility problem, never silently defaulted.
func (u UserInfoClaims) Validate() error {
	switch {
	case u.GivenName == "":
		return autherr.Newf(autherr.CodeMissingClaim, "userinfo has no given_name claim")
	case u.FamilyName == "":
		return autherr.Newf(autherr.CodeMissingClaim, "userinfo has no family_name claim")
	case u.Email == "":
		return autherr.Newf(autherr.CodeMissingClaim, "userinfo has no email claim")
	}
	return nil
}

// ApiClaims is the unified principal attached to the request scope. It is a
// point-in-time snapshot: built once per distinct token, never mutated after
// construction, and replayed verbatim from the cache for later requests
// carrying the same token.
type ApiClaims struct {
	Base     BaseClaims
	UserInfo UserInfoClaims
	Custom   CustomClaims
}

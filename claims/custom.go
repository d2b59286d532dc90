package claims

import (
	"context"
	"encoding/json"
)

// CustomClaims is the open, domain-specific extension carried alongside the
// protocol claims. Anything placed in the claims cache must round-trip
// losslessly through ExportData/ImportData for every field used in
// authorization decisions.
type CustomClaims interface {
	ExportData() (json.RawMessage, error)
	ImportData(data json.RawMessage) error
}

// EmptyCustomClaims is the default custom claims value for APIs that need no
// domain enrichment.
type EmptyCustomClaims struct{}

// ExportData serializes to an empty JSON object.
func (EmptyCustomClaims) ExportData() (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

// ImportData accepts any payload and ignores it.
func (*EmptyCustomClaims) ImportData(json.RawMessage) error { return nil }

// Provider supplies domain-specific claims for a validated token. It is
// invoked exactly once per distinct token, on cache miss, after token
// validation and the optional userinfo lookup have succeeded. The result is
// cached, so it must already be in its final, reusable form.
//
// Implementations may be shared across concurrent requests and must not
// retain request-specific mutable state between invocations.
type Provider interface {
	// LookupBusinessClaims resolves custom claims for the subject. The raw
	// access token is supplied for providers that call further endpoints.
	LookupBusinessClaims(ctx context.Context, accessToken string, base BaseClaims, userInfo UserInfoClaims) (CustomClaims, error)

	// NewCustomClaims returns a zero value of the provider's concrete claims
	// type, used to rehydrate a cache entry.
	NewCustomClaims() CustomClaims
}

// EmptyProvider returns empty custom claims for every subject.
type EmptyProvider struct{}

// LookupBusinessClaims returns empty claims.
func (EmptyProvider) LookupBusinessClaims(context.Context, string, BaseClaims, UserInfoClaims) (CustomClaims, error) {
	return &EmptyCustomClaims{}, nil
}

// NewCustomClaims returns an empty claims value.
func (EmptyProvider) NewCustomClaims() CustomClaims { return &EmptyCustomClaims{} }

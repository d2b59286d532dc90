package identity

import (
	"context"
	"encoding/json"

	"github.com/open-rails/claimskit/autherr"
	"github.com/open-rails/claimskit/claims"
)

// UserClaims are the domain claims cached alongside the protocol claims:
// the user's database id, admin flag, and the data regions they may read.
type UserClaims struct {
	UserDatabaseID string   `json:"user_database_id"`
	IsAdmin        bool     `json:"is_admin"`
	RegionsCovered []string `json:"regions_covered"`
}

// ExportData serializes the claims for the cache.
func (u *UserClaims) ExportData() (json.RawMessage, error) {
	return json.Marshal(u)
}

// ImportData restores the claims from a cache entry.
func (u *UserClaims) ImportData(data json.RawMessage) error {
	return json.Unmarshal(data, u)
}

// CoversRegion reports whether the user may read data in the named region.
// Admins cover every region.
func (u *UserClaims) CoversRegion(region string) bool {
	if u.IsAdmin {
		return true
	}
	for _, r := range u.RegionsCovered {
		if r == region {
			return true
		}
	}
	return false
}

// ClaimsProvider derives UserClaims from the identity store. Lookup is by
// token subject first, falling back to the userinfo email for issuers whose
// subjects are opaque.
type ClaimsProvider struct {
	store *Store
}

// NewClaimsProvider wraps the store as a claims.Provider.
func NewClaimsProvider(store *Store) *ClaimsProvider {
	return &ClaimsProvider{store: store}
}

// LookupBusinessClaims resolves the user record for the subject. An unknown
// user is a provisioning defect: the issuer authenticated someone the
// application has no record of.
func (p *ClaimsProvider) LookupBusinessClaims(ctx context.Context, _ string, base claims.BaseClaims, userInfo claims.UserInfoClaims) (claims.CustomClaims, error) {
	user, err := p.store.GetBySubject(ctx, base.Subject)
	if err != nil {
		return nil, autherr.New(autherr.CodeClaimsProvider, err)
	}
	if user == nil && userInfo.Email != "" {
		user, err = p.store.GetByEmail(ctx, userInfo.Email)
		if err != nil {
			return nil, autherr.New(autherr.CodeClaimsProvider, err)
		}
	}
	if user == nil {
		return nil, autherr.Newf(autherr.CodeClaimsProvider, "no user record for subject %q", base.Subject)
	}
	return &UserClaims{
		UserDatabaseID: user.ID.String(),
		IsAdmin:        user.IsAdmin,
		RegionsCovered: user.Regions,
	}, nil
}

// NewCustomClaims returns an empty UserClaims for cache rehydration.
func (*ClaimsProvider) NewCustomClaims() claims.CustomClaims { return &UserClaims{} }

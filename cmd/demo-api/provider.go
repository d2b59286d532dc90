package main

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/open-rails/claimskit/claims"
	"github.com/open-rails/claimskit/identity"
)

// regionProvider derives domain claims without a database: any email
// containing "admin" is an administrator covering every region, everyone else
// covers only the default region. Deployments with real user records use
// identity.ClaimsProvider instead.
type regionProvider struct {
	allRegions    []string
	defaultRegion string
}

func newRegionProvider(regions []string) *regionProvider {
	return &regionProvider{allRegions: regions, defaultRegion: regions[0]}
}

func (p *regionProvider) LookupBusinessClaims(_ context.Context, _ string, base claims.BaseClaims, userInfo claims.UserInfoClaims) (claims.CustomClaims, error) {
	isAdmin := strings.Contains(strings.ToLower(userInfo.Email), "admin")
	regions := []string{p.defaultRegion}
	if isAdmin {
		regions = append([]string(nil), p.allRegions...)
	}
	return &identity.UserClaims{
		UserDatabaseID: uuid.NewSHA1(uuid.NameSpaceOID, []byte(base.Subject)).String(),
		IsAdmin:        isAdmin,
		RegionsCovered: regions,
	}, nil
}

func (p *regionProvider) NewCustomClaims() claims.CustomClaims { return &identity.UserClaims{} }

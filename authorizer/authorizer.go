// Package authorizer orchestrates the per-request authorization pipeline:
// bearer extraction, cache lookup, token validation, userinfo and custom
// claims resolution, and cache population.
package authorizer

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/open-rails/claimskit/autherr"
	"github.com/open-rails/claimskit/claims"
	"github.com/open-rails/claimskit/validator"
)

// UserInfoFetcher retrieves identity claims for an access token. Satisfied by
// oidckit.UserInfoClient.
type UserInfoFetcher interface {
	Fetch(ctx context.Context, accessToken string) (claims.UserInfoClaims, error)
}

// Options wires the authorizer's collaborators. Validator and Cache are
// required; UserInfo is optional (skipped when nil); Provider defaults to
// claims.EmptyProvider; Logger defaults to the logrus standard logger.
type Options struct {
	Validator validator.TokenValidator
	Cache     claims.Cache
	UserInfo  UserInfoFetcher
	Provider  claims.Provider
	Logger    logrus.FieldLogger
}

// Authorizer turns a bearer token into a trusted claims principal. It is
// stateless per request; the only shared state lives in its collaborators,
// which are safe for concurrent use.
type Authorizer struct {
	validator validator.TokenValidator
	cache     claims.Cache
	userInfo  UserInfoFetcher
	provider  claims.Provider
	log       logrus.FieldLogger
}

// New builds an authorizer from opts.
func New(opts Options) (*Authorizer, error) {
	if opts.Validator == nil {
		return nil, autherr.Newf(autherr.CodeServer, "authorizer requires a token validator")
	}
	if opts.Cache == nil {
		return nil, autherr.Newf(autherr.CodeServer, "authorizer requires a claims cache")
	}
	provider := opts.Provider
	if provider == nil {
		provider = claims.EmptyProvider{}
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Authorizer{
		validator: opts.Validator,
		cache:     opts.Cache,
		userInfo:  opts.UserInfo,
		provider:  provider,
		log:       log,
	}, nil
}

// ExtractBearerToken returns the token from an Authorization header value.
// The header must be exactly `Bearer <token>`. A missing or malformed header
// is the unauthenticated case, not an error: malformed input from an
// unauthenticated caller earns no diagnostic detail.
func ExtractBearerToken(header string) (string, bool) {
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// Authorize runs the pipeline for one request. On success the returned
// principal is owned by the calling request and never mutated afterwards.
//
// Failures propagate as typed autherr values; the only one the authorizer
// itself classifies specially is the expired-during-userinfo race, which is
// logged at info level since it is expected timing, not a defect.
func (a *Authorizer) Authorize(ctx context.Context, authorizationHeader string) (*claims.ApiClaims, error) {
	accessToken, ok := ExtractBearerToken(authorizationHeader)
	if !ok {
		return nil, autherr.Newf(autherr.CodeUnauthorized, "no bearer token supplied")
	}

	tokenHash := claims.TokenHash(accessToken)
	if cached := a.lookupCache(ctx, tokenHash); cached != nil {
		return cached, nil
	}

	base, err := a.validator.ValidateToken(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	var userInfo claims.UserInfoClaims
	if a.userInfo != nil {
		userInfo, err = a.userInfo.Fetch(ctx, accessToken)
		if err != nil {
			if autherr.CodeOf(err) == autherr.CodeUserInfoTokenExpired {
				a.log.WithField("sub", base.Subject).Info("token expired during userinfo lookup")
			}
			return nil, err
		}
	}

	custom, err := a.provider.LookupBusinessClaims(ctx, accessToken, base, userInfo)
	if err != nil {
		if autherr.CodeOf(err) == autherr.CodeServer {
			err = autherr.New(autherr.CodeClaimsProvider, err)
		}
		return nil, err
	}

	a.storeCache(ctx, tokenHash, base, userInfo, custom)

	return &claims.ApiClaims{Base: base, UserInfo: userInfo, Custom: custom}, nil
}

// lookupCache returns a rehydrated principal on a hit, nil otherwise. Cache
// transport problems degrade to a miss: an unreachable cache must not take
// authorization down with it.
func (a *Authorizer) lookupCache(ctx context.Context, tokenHash string) *claims.ApiClaims {
	payload, found, err := a.cache.Get(ctx, tokenHash)
	if err != nil {
		a.log.WithError(err).Warn("claims cache lookup failed, validating token in full")
		return nil
	}
	if !found {
		return nil
	}

	custom := a.provider.NewCustomClaims()
	if len(payload.Custom) > 0 {
		if err := custom.ImportData(payload.Custom); err != nil {
			a.log.WithError(err).Warn("discarding unreadable claims cache entry")
			return nil
		}
	}
	return &claims.ApiClaims{Base: payload.Base, UserInfo: payload.UserInfo, Custom: custom}
}

func (a *Authorizer) storeCache(ctx context.Context, tokenHash string, base claims.BaseClaims, userInfo claims.UserInfoClaims, custom claims.CustomClaims) {
	raw, err := custom.ExportData()
	if err != nil {
		a.log.WithError(err).Warn("custom claims not serializable, skipping cache")
		return
	}
	payload := claims.CachedPayload{Base: base, UserInfo: userInfo, Custom: raw}
	if err := a.cache.Put(ctx, tokenHash, payload, base.ExpiresAt); err != nil {
		a.log.WithError(err).Warn("claims cache store failed")
	}
}

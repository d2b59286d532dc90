package oidckit

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/open-rails/claimskit/autherr"
	"github.com/open-rails/claimskit/claims"
)

const defaultUserInfoTimeout = 10 * time.Second

// UserInfoClient fetches identity claims from the userinfo endpoint using the
// caller's access token as the bearer credential.
type UserInfoClient struct {
	endpoint string
	base     *http.Client
}

// NewUserInfoClient builds a client for the given userinfo endpoint. A nil
// base client gets a default with a bounded timeout and environment proxy.
func NewUserInfoClient(endpoint string, base *http.Client) (*UserInfoClient, error) {
	if endpoint == "" {
		return nil, autherr.Newf(autherr.CodeServer, "userinfo endpoint URL is empty")
	}
	if base == nil {
		base = &http.Client{
			Timeout: defaultUserInfoTimeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
			},
		}
	}
	return &UserInfoClient{endpoint: endpoint, base: base}, nil
}

// Fetch retrieves given_name, family_name, and email for the token's subject.
//
// A 401 from the endpoint means the token expired after validation succeeded:
// a benign race surfaced as a typed failure the authorizer treats as an
// ordinary unauthorized outcome, not a server error.
func (c *UserInfoClient) Fetch(ctx context.Context, accessToken string) (claims.UserInfoClaims, error) {
	// oauth2.NewClient wraps the base transport so the bearer token rides on
	// every request without being copied into the request by hand. It only
	// reuses the transport, so the base client's timeout must be carried over
	// or a stalled endpoint would hang the request.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.base)
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
	httpClient.Timeout = c.base.Timeout

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return claims.UserInfoClaims{}, autherr.New(autherr.CodeUserInfoTransport, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return claims.UserInfoClaims{}, autherr.New(autherr.CodeUserInfoTransport, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return claims.UserInfoClaims{}, autherr.Newf(autherr.CodeUserInfoTokenExpired, "token rejected by userinfo endpoint")
	case resp.StatusCode != http.StatusOK:
		return claims.UserInfoClaims{}, autherr.Newf(autherr.CodeUserInfoTransport, "userinfo returned status %d", resp.StatusCode)
	}

	var info claims.UserInfoClaims
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return claims.UserInfoClaims{}, autherr.Newf(autherr.CodeUserInfoTransport, "decoding userinfo response: %v", err)
	}
	if err := info.Validate(); err != nil {
		return claims.UserInfoClaims{}, err
	}
	return info, nil
}

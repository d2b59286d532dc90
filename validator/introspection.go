package validator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/open-rails/claimskit/autherr"
	"github.com/open-rails/claimskit/claims"
)

const defaultIntrospectionTimeout = 10 * time.Second

// IntrospectionValidator validates tokens by POSTing them to the
// Authorization Server's RFC 7662 introspection endpoint with
// client_secret_basic authentication.
type IntrospectionValidator struct {
	endpoint     string
	clientID     string
	clientSecret string
	client       *http.Client
}

// NewIntrospectionValidator builds the remote strategy from cfg.
func NewIntrospectionValidator(cfg Config) (*IntrospectionValidator, error) {
	if cfg.IntrospectionURL == "" {
		return nil, autherr.Newf(autherr.CodeServer, "introspection strategy requires an endpoint URL")
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, autherr.Newf(autherr.CodeServer, "introspection strategy requires client credentials")
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.HTTPTimeout
		if timeout <= 0 {
			timeout = defaultIntrospectionTimeout
		}
		client = &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
			},
		}
	}
	return &IntrospectionValidator{
		endpoint:     cfg.IntrospectionURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		client:       client,
	}, nil
}

type introspectionResponse struct {
	Active   bool    `json:"active"`
	Sub      string  `json:"sub,omitempty"`
	Scope    string  `json:"scope,omitempty"`
	Exp      float64 `json:"exp,omitempty"`
	ClientID string  `json:"client_id,omitempty"`
}

// ValidateToken introspects the token remotely. An inactive token is an
// ordinary invalid-token failure; a network or protocol problem talking to
// the Authorization Server is a server-side fault and is wrapped distinctly.
func (v *IntrospectionValidator) ValidateToken(ctx context.Context, accessToken string) (claims.BaseClaims, error) {
	form := url.Values{}
	form.Set("token", accessToken)
	form.Set("token_type_hint", "access_token")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return claims.BaseClaims{}, autherr.New(autherr.CodeIntrospectionTransport, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(v.clientID, v.clientSecret)

	resp, err := v.client.Do(req)
	if err != nil {
		return claims.BaseClaims{}, autherr.New(autherr.CodeIntrospectionTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return claims.BaseClaims{}, autherr.Newf(autherr.CodeIntrospectionTransport, "introspection returned status %d", resp.StatusCode)
	}

	var ir introspectionResponse
	if err := json.NewDecoder(resp.Body).Decode(&ir); err != nil {
		return claims.BaseClaims{}, autherr.Newf(autherr.CodeIntrospectionTransport, "decoding introspection response: %v", err)
	}

	if !ir.Active {
		return claims.BaseClaims{}, autherr.Newf(autherr.CodeInvalidToken, "token is not active")
	}

	base := claims.BaseClaims{
		Subject:   strings.TrimSpace(ir.Sub),
		Scopes:    claims.ParseScopes(ir.Scope),
		ExpiresAt: int64(ir.Exp),
		ClientID:  strings.TrimSpace(ir.ClientID),
	}
	if err := base.Validate(time.Now()); err != nil {
		return claims.BaseClaims{}, err
	}
	return base, nil
}

// Package authtest provides a mock Authorization Server for tests: it serves
// OIDC discovery, JWKS, userinfo, and introspection endpoints, and signs
// tokens that validate against its own keys. No real Authorization Server is
// needed for integration tests.
//
// Example usage:
//
//	srv := authtest.NewAuthServer()
//	defer srv.Close()
//
//	keys, _ := jwks.NewKeyRetriever(ctx, jwks.Config{EndpointURL: srv.JWKSURL()})
//	token := srv.CreateToken("user-123", "read write", time.Hour)
package authtest

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// UserInfo is the userinfo document served for a subject.
type UserInfo struct {
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	Email      string `json:"email"`
}

type opaqueGrant struct {
	sub   string
	scope string
	exp   int64
}

// AuthServer is a complete mock Authorization Server backed by httptest.
// Call Close when done.
type AuthServer struct {
	server   *httptest.Server
	signer   *rsaSigner
	audience string

	mu                 sync.Mutex
	userInfo           map[string]UserInfo
	revoked            map[string]struct{}
	opaque             map[string]opaqueGrant
	forcedUserInfoCode int
	jwksCalls          int
	userInfoCalls      int
	introspectionCalls int
}

// NewAuthServer creates a mock Authorization Server with audience "test-app".
func NewAuthServer() *AuthServer {
	return NewAuthServerWithAudience("test-app")
}

// NewAuthServerWithAudience creates a mock Authorization Server issuing
// tokens for the given audience.
func NewAuthServerWithAudience(audience string) *AuthServer {
	signer, err := newRSASigner("test-key-1")
	if err != nil {
		panic("authtest: failed to create RSA signer: " + err.Error())
	}

	as := &AuthServer{
		signer:   signer,
		audience: audience,
		userInfo: make(map[string]UserInfo),
		revoked:  make(map[string]struct{}),
		opaque:   make(map[string]opaqueGrant),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", as.handleDiscovery)
	mux.HandleFunc("/.well-known/jwks.json", as.handleJWKS)
	mux.HandleFunc("/userinfo", as.handleUserInfo)
	mux.HandleFunc("/introspect", as.handleIntrospect)

	as.server = httptest.NewServer(mux)
	return as
}

// URL returns the issuer URL.
func (as *AuthServer) URL() string { return as.server.URL }

// JWKSURL returns the JWKS endpoint URL.
func (as *AuthServer) JWKSURL() string { return as.server.URL + "/.well-known/jwks.json" }

// UserInfoURL returns the userinfo endpoint URL.
func (as *AuthServer) UserInfoURL() string { return as.server.URL + "/userinfo" }

// IntrospectionURL returns the introspection endpoint URL.
func (as *AuthServer) IntrospectionURL() string { return as.server.URL + "/introspect" }

// Audience returns the audience claim this server issues tokens for.
func (as *AuthServer) Audience() string { return as.audience }

// Close shuts down the server.
func (as *AuthServer) Close() { as.server.Close() }

// CreateToken signs a JWT for the subject with a space-delimited scope.
func (as *AuthServer) CreateToken(sub, scope string, ttl time.Duration) string {
	return as.CreateTokenWithClaims(sub, scope, ttl, nil)
}

// CreateTokenWithClaims signs a JWT with extra claims merged over the
// standard set (iss, aud, sub, scope, exp, iat).
func (as *AuthServer) CreateTokenWithClaims(sub, scope string, ttl time.Duration, extra map[string]any) string {
	now := time.Now()
	mc := jwt.MapClaims{
		"iss":   as.URL(),
		"aud":   as.audience,
		"sub":   sub,
		"scope": scope,
		"exp":   now.Add(ttl).Unix(),
		"iat":   now.Unix(),
	}
	for k, v := range extra {
		mc[k] = v
	}
	token, err := as.signer.sign(mc)
	if err != nil {
		panic("authtest: failed to sign token: " + err.Error())
	}
	return token
}

// CreateExpiredToken signs a token whose exp already passed.
func (as *AuthServer) CreateExpiredToken(sub, scope string) string {
	return as.CreateToken(sub, scope, -time.Hour)
}

// CreateTokenSignedWithUnknownKey signs a token with a freshly generated key
// that is not in the served JWKS, for signature-tampering scenarios.
func (as *AuthServer) CreateTokenSignedWithUnknownKey(sub, scope string, ttl time.Duration) string {
	rogue, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic("authtest: failed to generate rogue key: " + err.Error())
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss":   as.URL(),
		"aud":   as.audience,
		"sub":   sub,
		"scope": scope,
		"exp":   now.Add(ttl).Unix(),
		"iat":   now.Unix(),
	})
	token.Header["kid"] = "rogue-key"
	signed, err := token.SignedString(rogue)
	if err != nil {
		panic("authtest: failed to sign with rogue key: " + err.Error())
	}
	return signed
}

// IssueOpaqueToken mints an opaque token recognized only by introspection.
func (as *AuthServer) IssueOpaqueToken(sub, scope string, ttl time.Duration) string {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		panic("authtest: failed to generate opaque token: " + err.Error())
	}
	token := hex.EncodeToString(buf)
	as.mu.Lock()
	as.opaque[token] = opaqueGrant{sub: sub, scope: scope, exp: time.Now().Add(ttl).Unix()}
	as.mu.Unlock()
	return token
}

// RevokeToken makes introspection report the token inactive.
func (as *AuthServer) RevokeToken(token string) {
	as.mu.Lock()
	as.revoked[tokenDigest(token)] = struct{}{}
	as.mu.Unlock()
}

// SetUserInfo configures the userinfo document for a subject. Unset subjects
// get a generated default.
func (as *AuthServer) SetUserInfo(sub string, info UserInfo) {
	as.mu.Lock()
	as.userInfo[sub] = info
	as.mu.Unlock()
}

// ForceUserInfoStatus makes the userinfo endpoint answer with the given
// status regardless of the token, simulating e.g. an expiry race (401).
// Pass 0 to restore normal behavior.
func (as *AuthServer) ForceUserInfoStatus(status int) {
	as.mu.Lock()
	as.forcedUserInfoCode = status
	as.mu.Unlock()
}

// JWKSCalls returns how many times the JWKS endpoint was hit.
func (as *AuthServer) JWKSCalls() int {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.jwksCalls
}

// UserInfoCalls returns how many times the userinfo endpoint was hit.
func (as *AuthServer) UserInfoCalls() int {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.userInfoCalls
}

// IntrospectionCalls returns how many times the introspection endpoint was hit.
func (as *AuthServer) IntrospectionCalls() int {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.introspectionCalls
}

func (as *AuthServer) handleDiscovery(w http.ResponseWriter, _ *http.Request) {
	doc := map[string]string{
		"issuer":                 as.URL(),
		"authorization_endpoint": as.URL() + "/authorize",
		"token_endpoint":         as.URL() + "/token",
		"userinfo_endpoint":      as.UserInfoURL(),
		"jwks_uri":               as.JWKSURL(),
		"introspection_endpoint": as.IntrospectionURL(),
	}
	writeJSON(w, http.StatusOK, doc)
}

func (as *AuthServer) handleJWKS(w http.ResponseWriter, _ *http.Request) {
	as.mu.Lock()
	as.jwksCalls++
	as.mu.Unlock()
	ks := jsonWebKeySet{Keys: []jsonWebKey{rsaPublicToJWK(as.signer.publicKey(), as.signer.kid)}}
	writeJSON(w, http.StatusOK, ks)
}

func (as *AuthServer) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	as.mu.Lock()
	as.userInfoCalls++
	forced := as.forcedUserInfoCode
	as.mu.Unlock()

	if forced != 0 {
		w.WriteHeader(forced)
		return
	}

	sub, ok := as.verifyBearer(r.Header.Get("Authorization"))
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	as.mu.Lock()
	info, known := as.userInfo[sub]
	as.mu.Unlock()
	if !known {
		info = UserInfo{GivenName: "Test", FamilyName: "User", Email: sub + "@example.com"}
	}
	writeJSON(w, http.StatusOK, info)
}

func (as *AuthServer) handleIntrospect(w http.ResponseWriter, r *http.Request) {
	as.mu.Lock()
	as.introspectionCalls++
	as.mu.Unlock()

	if _, _, ok := r.BasicAuth(); !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	token := r.PostFormValue("token")

	as.mu.Lock()
	_, revoked := as.revoked[tokenDigest(token)]
	grant, isOpaque := as.opaque[token]
	as.mu.Unlock()

	if revoked {
		writeJSON(w, http.StatusOK, map[string]any{"active": false})
		return
	}

	if isOpaque {
		if grant.exp <= time.Now().Unix() {
			writeJSON(w, http.StatusOK, map[string]any{"active": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"active":    true,
			"sub":       grant.sub,
			"scope":     grant.scope,
			"exp":       grant.exp,
			"client_id": "test-client",
		})
		return
	}

	claims, ok := as.verifyJWT(token)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"active": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"active":    true,
		"sub":       claims["sub"],
		"scope":     claims["scope"],
		"exp":       claims["exp"],
		"client_id": "test-client",
	})
}

// verifyBearer extracts and verifies a bearer JWT, returning its subject.
func (as *AuthServer) verifyBearer(header string) (string, bool) {
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	claims, ok := as.verifyJWT(strings.TrimPrefix(header, "Bearer "))
	if !ok {
		return "", false
	}
	sub, _ := claims["sub"].(string)
	return sub, sub != ""
}

func (as *AuthServer) verifyJWT(tokenString string) (jwt.MapClaims, bool) {
	parsed, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return as.signer.publicKey(), nil
	})
	if err != nil || !parsed.Valid {
		return nil, false
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	return claims, ok
}

func tokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

package authorizer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-rails/claimskit/autherr"
	"github.com/open-rails/claimskit/claims"
	memorystore "github.com/open-rails/claimskit/storage/memory"
)

type stubValidator struct {
	calls atomic.Int64
	base  claims.BaseClaims
	err   error
}

func (s *stubValidator) ValidateToken(_ context.Context, _ string) (claims.BaseClaims, error) {
	s.calls.Add(1)
	if s.err != nil {
		return claims.BaseClaims{}, s.err
	}
	return s.base, nil
}

type stubUserInfo struct {
	calls atomic.Int64
	info  claims.UserInfoClaims
	err   error
}

func (s *stubUserInfo) Fetch(_ context.Context, _ string) (claims.UserInfoClaims, error) {
	s.calls.Add(1)
	if s.err != nil {
		return claims.UserInfoClaims{}, s.err
	}
	return s.info, nil
}

type stubCustom struct {
	Team string `json:"team"`
}

func (c *stubCustom) ExportData() (json.RawMessage, error)  { return json.Marshal(c) }
func (c *stubCustom) ImportData(data json.RawMessage) error { return json.Unmarshal(data, c) }

type stubProvider struct {
	calls atomic.Int64
	team  string
	err   error
}

func (s *stubProvider) LookupBusinessClaims(_ context.Context, _ string, _ claims.BaseClaims, _ claims.UserInfoClaims) (claims.CustomClaims, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return &stubCustom{Team: s.team}, nil
}

func (s *stubProvider) NewCustomClaims() claims.CustomClaims { return &stubCustom{} }

type failingCache struct{}

func (failingCache) Get(context.Context, string) (*claims.CachedPayload, bool, error) {
	return nil, false, errors.New("cache down")
}
func (failingCache) Put(context.Context, string, claims.CachedPayload, int64) error {
	return errors.New("cache down")
}

func validBase(sub string) claims.BaseClaims {
	return claims.BaseClaims{
		Subject:   sub,
		Scopes:    []string{"read"},
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
	}
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func newTestAuthorizer(t *testing.T, v *stubValidator, ui *stubUserInfo, p *stubProvider) *Authorizer {
	t.Helper()
	cache := memorystore.NewClaimsCache(time.Minute)
	t.Cleanup(func() { _ = cache.Close() })

	opts := Options{Validator: v, Cache: cache, Provider: p, Logger: quietLogger()}
	if ui != nil {
		opts.UserInfo = ui
	}
	a, err := New(opts)
	require.NoError(t, err)
	return a
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
		ok     bool
	}{
		{name: "valid", header: "Bearer abc.def.ghi", want: "abc.def.ghi", ok: true},
		{name: "empty header", header: "", ok: false},
		{name: "wrong scheme", header: "Basic abc", ok: false},
		{name: "lowercase scheme", header: "bearer abc", ok: false},
		{name: "no token", header: "Bearer ", ok: false},
		{name: "scheme only", header: "Bearer", ok: false},
		{name: "extra parts", header: "Bearer abc def", ok: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ExtractBearerToken(tc.header)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestAuthorizeFullPipeline(t *testing.T) {
	v := &stubValidator{base: validBase("user-1")}
	ui := &stubUserInfo{info: claims.UserInfoClaims{GivenName: "Ada", FamilyName: "Lovelace", Email: "ada@example.com"}}
	p := &stubProvider{team: "payments"}
	a := newTestAuthorizer(t, v, ui, p)

	principal, err := a.Authorize(context.Background(), "Bearer token-1")
	require.NoError(t, err)

	assert.Equal(t, "user-1", principal.Base.Subject)
	assert.Equal(t, "ada@example.com", principal.UserInfo.Email)
	custom, ok := principal.Custom.(*stubCustom)
	require.True(t, ok)
	assert.Equal(t, "payments", custom.Team)

	assert.Equal(t, int64(1), v.calls.Load())
	assert.Equal(t, int64(1), ui.calls.Load())
	assert.Equal(t, int64(1), p.calls.Load())
}

func TestAuthorizeMissingToken(t *testing.T) {
	v := &stubValidator{base: validBase("user-1")}
	a := newTestAuthorizer(t, v, nil, &stubProvider{})

	_, err := a.Authorize(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, autherr.CodeUnauthorized, autherr.CodeOf(err))
	assert.Equal(t, int64(0), v.calls.Load())
}

func TestAuthorizeCacheHitSkipsCollaborators(t *testing.T) {
	v := &stubValidator{base: validBase("user-1")}
	ui := &stubUserInfo{info: claims.UserInfoClaims{GivenName: "Ada", FamilyName: "Lovelace", Email: "ada@example.com"}}
	p := &stubProvider{team: "payments"}
	a := newTestAuthorizer(t, v, ui, p)

	_, err := a.Authorize(context.Background(), "Bearer token-1")
	require.NoError(t, err)

	principal, err := a.Authorize(context.Background(), "Bearer token-1")
	require.NoError(t, err)

	// Second request is served entirely from the cache, custom claims
	// rehydrated through the provider's empty shell.
	assert.Equal(t, int64(1), v.calls.Load())
	assert.Equal(t, int64(1), ui.calls.Load())
	assert.Equal(t, int64(1), p.calls.Load())

	custom, ok := principal.Custom.(*stubCustom)
	require.True(t, ok)
	assert.Equal(t, "payments", custom.Team)
}

func TestAuthorizeDistinctTokensValidatedSeparately(t *testing.T) {
	v := &stubValidator{base: validBase("user-1")}
	a := newTestAuthorizer(t, v, nil, &stubProvider{})

	_, err := a.Authorize(context.Background(), "Bearer token-1")
	require.NoError(t, err)
	_, err = a.Authorize(context.Background(), "Bearer token-2")
	require.NoError(t, err)

	assert.Equal(t, int64(2), v.calls.Load())
}

func TestAuthorizeValidationFailureNotCached(t *testing.T) {
	v := &stubValidator{err: autherr.Newf(autherr.CodeInvalidToken, "bad signature")}
	a := newTestAuthorizer(t, v, nil, &stubProvider{})

	for i := 0; i < 2; i++ {
		_, err := a.Authorize(context.Background(), "Bearer token-1")
		require.Error(t, err)
		assert.Equal(t, autherr.CodeInvalidToken, autherr.CodeOf(err))
	}
	assert.Equal(t, int64(2), v.calls.Load())
}

func TestAuthorizeUserInfoRace(t *testing.T) {
	v := &stubValidator{base: validBase("user-1")}
	ui := &stubUserInfo{err: autherr.Newf(autherr.CodeUserInfoTokenExpired, "token rejected by userinfo endpoint")}
	p := &stubProvider{}
	a := newTestAuthorizer(t, v, ui, p)

	_, err := a.Authorize(context.Background(), "Bearer token-1")
	require.Error(t, err)
	assert.Equal(t, autherr.CodeUserInfoTokenExpired, autherr.CodeOf(err))
	assert.Equal(t, int64(0), p.calls.Load())
}

func TestAuthorizeProviderErrors(t *testing.T) {
	t.Run("typed error passes through", func(t *testing.T) {
		p := &stubProvider{err: autherr.Newf(autherr.CodeClaimsProvider, "no user record")}
		a := newTestAuthorizer(t, &stubValidator{base: validBase("user-1")}, nil, p)

		_, err := a.Authorize(context.Background(), "Bearer token-1")
		require.Error(t, err)
		assert.Equal(t, autherr.CodeClaimsProvider, autherr.CodeOf(err))
	})

	t.Run("untyped error classified as provider failure", func(t *testing.T) {
		p := &stubProvider{err: errors.New("connection refused")}
		a := newTestAuthorizer(t, &stubValidator{base: validBase("user-1")}, nil, p)

		_, err := a.Authorize(context.Background(), "Bearer token-1")
		require.Error(t, err)
		assert.Equal(t, autherr.CodeClaimsProvider, autherr.CodeOf(err))
	})
}

func TestAuthorizeCacheFailureDegradesToFullValidation(t *testing.T) {
	v := &stubValidator{base: validBase("user-1")}
	a, err := New(Options{
		Validator: v,
		Cache:     failingCache{},
		Provider:  &stubProvider{team: "payments"},
		Logger:    quietLogger(),
	})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		principal, err := a.Authorize(context.Background(), "Bearer token-1")
		require.NoError(t, err)
		assert.Equal(t, "user-1", principal.Base.Subject)
	}
	assert.Equal(t, int64(2), v.calls.Load())
}

func TestAuthorizeNilUserInfoSkipsFetch(t *testing.T) {
	a := newTestAuthorizer(t, &stubValidator{base: validBase("user-1")}, nil, &stubProvider{})

	principal, err := a.Authorize(context.Background(), "Bearer token-1")
	require.NoError(t, err)
	assert.Empty(t, principal.UserInfo.Email)
}

func TestAuthorizeDefaultProvider(t *testing.T) {
	cache := memorystore.NewClaimsCache(time.Minute)
	defer cache.Close()
	a, err := New(Options{
		Validator: &stubValidator{base: validBase("user-1")},
		Cache:     cache,
		Logger:    quietLogger(),
	})
	require.NoError(t, err)

	principal, err := a.Authorize(context.Background(), "Bearer token-1")
	require.NoError(t, err)
	require.IsType(t, &claims.EmptyCustomClaims{}, principal.Custom)

	// And the cached entry rehydrates on the second pass.
	_, err = a.Authorize(context.Background(), "Bearer token-1")
	require.NoError(t, err)
}

func TestAuthorizeConcurrentSameToken(t *testing.T) {
	v := &stubValidator{base: validBase("user-1")}
	p := &stubProvider{team: "payments"}
	a := newTestAuthorizer(t, v, nil, p)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, errs[idx] = a.Authorize(context.Background(), "Bearer token-1")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	// Concurrent misses may each validate; no request may fail, and every
	// validation count between 1 and n is acceptable.
	calls := v.calls.Load()
	assert.GreaterOrEqual(t, calls, int64(1))
	assert.LessOrEqual(t, calls, int64(n))
}

func TestNewRequiresCollaborators(t *testing.T) {
	cache := memorystore.NewClaimsCache(time.Minute)
	defer cache.Close()

	_, err := New(Options{Cache: cache})
	require.Error(t, err)

	_, err = New(Options{Validator: &stubValidator{}})
	require.Error(t, err)
}

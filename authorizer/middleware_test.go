package authorizer

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-rails/claimskit/autherr"
	"github.com/open-rails/claimskit/claims"
	memorystore "github.com/open-rails/claimskit/storage/memory"
)

func echoSubjectHandler(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := claims.FromContext(r.Context())
		require.True(t, ok)
		w.Write([]byte(principal.Base.Subject))
	})
}

func TestMiddlewareSuccess(t *testing.T) {
	a := newTestAuthorizer(t, &stubValidator{base: validBase("user-1")}, nil, &stubProvider{})
	srv := a.Middleware(echoSubjectHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/api/thing", nil)
	req.Header.Set("Authorization", "Bearer token-1")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", rec.Body.String())
}

func TestMiddlewareMissingToken(t *testing.T) {
	a := newTestAuthorizer(t, &stubValidator{}, nil, &stubProvider{})
	srv := a.Middleware(echoSubjectHandler(t))

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/thing", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))

	var body autherr.ClientError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unauthorized", body.Code)
	assert.Empty(t, body.InstanceID)
}

func TestMiddlewareMasks401Causes(t *testing.T) {
	causes := []error{
		autherr.Newf(autherr.CodeInvalidToken, "bad signature"),
		autherr.Newf(autherr.CodeTokenExpired, "expired"),
		autherr.Newf(autherr.CodeSigningKeyDownload, "jwks unreachable"),
		autherr.Newf(autherr.CodeUserInfoTokenExpired, "expired mid-lookup"),
	}
	for _, cause := range causes {
		t.Run(string(autherr.CodeOf(cause)), func(t *testing.T) {
			a := newTestAuthorizer(t, &stubValidator{err: cause}, nil, &stubProvider{})
			srv := a.Middleware(echoSubjectHandler(t))

			req := httptest.NewRequest(http.MethodGet, "/api/thing", nil)
			req.Header.Set("Authorization", "Bearer token-1")
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)

			var body autherr.ClientError
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "invalid_token", body.Code)
			assert.Empty(t, body.InstanceID)
			assert.NotContains(t, rec.Body.String(), "jwks")
		})
	}
}

func TestMiddlewareServerError(t *testing.T) {
	a := newTestAuthorizer(t, &stubValidator{err: autherr.New(autherr.CodeIntrospectionTransport, errors.New("dial tcp: refused"))}, nil, &stubProvider{})
	srv := a.Middleware(echoSubjectHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/api/thing", nil)
	req.Header.Set("Authorization", "Bearer token-1")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, rec.Header().Get("WWW-Authenticate"))

	var body autherr.ClientError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "server_error", body.Code)
	assert.NotContains(t, rec.Body.String(), "dial tcp")

	_, err := uuid.Parse(body.InstanceID)
	assert.NoError(t, err)
}

func TestClientErrorPayloads(t *testing.T) {
	cache := memorystore.NewClaimsCache(time.Minute)
	defer cache.Close()
	a, err := New(Options{Validator: &stubValidator{}, Cache: cache, Logger: quietLogger()})
	require.NoError(t, err)

	status, body := a.ClientError(autherr.Newf(autherr.CodeClaimsProvider, "no user record"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.NotEmpty(t, body.InstanceID)

	status, body = a.ClientError(autherr.Newf(autherr.CodeUnauthorized, "no bearer token supplied"))
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Empty(t, body.InstanceID)
}

// Package authgin adapts the authorizer to gin handlers.
package authgin

import (
	"github.com/gin-gonic/gin"

	"github.com/open-rails/claimskit/authorizer"
	"github.com/open-rails/claimskit/claims"
)

const claimsKey = "auth.claims"

// RequireAuth runs the authorization pipeline and aborts with the sanitized
// error payload when it fails. On success the principal is available via
// CurrentClaims and claims.FromContext. Unrelated headers (correlation ids,
// test-control headers) pass through untouched.
func RequireAuth(a *authorizer.Authorizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := a.Authorize(c.Request.Context(), c.GetHeader("Authorization"))
		if err != nil {
			status, body := a.ClientError(err)
			if status == 401 {
				c.Header("WWW-Authenticate", "Bearer")
			}
			c.AbortWithStatusJSON(status, body)
			return
		}
		c.Set(claimsKey, principal)
		c.Request = c.Request.WithContext(claims.NewContext(c.Request.Context(), principal))
		c.Next()
	}
}

// CurrentClaims returns the principal for the request. Prefers the gin key
// set by RequireAuth, falling back to the request context for handlers
// reached through net/http middleware.
func CurrentClaims(c *gin.Context) (*claims.ApiClaims, bool) {
	if v, ok := c.Get(claimsKey); ok {
		if principal, ok := v.(*claims.ApiClaims); ok && principal != nil {
			return principal, true
		}
	}
	return claims.FromContext(c.Request.Context())
}

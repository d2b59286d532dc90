package claims

import "context"

type ctxKey struct{}

// NewContext attaches the resolved principal to ctx.
func NewContext(ctx context.Context, c *ApiClaims) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// FromContext reads the principal previously attached by NewContext.
func FromContext(ctx context.Context) (*ApiClaims, bool) {
	c, ok := ctx.Value(ctxKey{}).(*ApiClaims)
	return c, ok && c != nil
}

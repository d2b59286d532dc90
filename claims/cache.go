package claims

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// TokenHash returns the cache key for a raw access token: the hex form of its
// SHA-256 digest. The raw token itself is never stored or logged.
func TokenHash(accessToken string) string {
	sum := sha256.Sum256([]byte(accessToken))
	return hex.EncodeToString(sum[:])
}

// CachedPayload is the serialized form of a resolved principal. Custom claims
// are carried as opaque JSON produced by CustomClaims.ExportData.
type CachedPayload struct {
	Base     BaseClaims      `json:"base"`
	UserInfo UserInfoClaims  `json:"user_info"`
	Custom   json.RawMessage `json:"custom,omitempty"`
}

// Cache is a time-bounded store of resolved claims keyed by token hash.
//
// Put computes the entry lifetime as the token's remaining validity clipped to
// the store's configured maximum; a token that has already expired is not
// cached. Get returns found=false on a miss, signaling the caller to perform
// full validation. Implementations must tolerate concurrent readers and
// writers; a duplicate Put for the same hash is harmless (validation is
// idempotent, last write wins).
type Cache interface {
	Get(ctx context.Context, tokenHash string) (*CachedPayload, bool, error)
	Put(ctx context.Context, tokenHash string, payload CachedPayload, expiresAt int64) error
}

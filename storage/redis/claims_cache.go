// Package redisstore provides a Redis-backed claims cache for deployments
// where multiple API instances should share resolved claims.
package redisstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/open-rails/claimskit/claims"
)

// ClaimsCache stores serialized claims in Redis keyed by token hash. Expiry
// is delegated to Redis TTLs.
type ClaimsCache struct {
	rdb    *redis.Client
	keyNS  string
	maxTTL time.Duration
}

// NewClaimsCache creates a Redis-backed claims cache. An empty keyPrefix
// defaults to "auth:claims:"; maxTTL <= 0 defaults to 15 minutes.
func NewClaimsCache(rdb *redis.Client, keyPrefix string, maxTTL time.Duration) *ClaimsCache {
	if keyPrefix == "" {
		keyPrefix = "auth:claims:"
	}
	if maxTTL <= 0 {
		maxTTL = 15 * time.Minute
	}
	return &ClaimsCache{rdb: rdb, keyNS: keyPrefix, maxTTL: maxTTL}
}

func (c *ClaimsCache) key(tokenHash string) string { return c.keyNS + tokenHash }

// Get retrieves cached claims for the token hash.
func (c *ClaimsCache) Get(ctx context.Context, tokenHash string) (*claims.CachedPayload, bool, error) {
	val, err := c.rdb.Get(ctx, c.key(tokenHash)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var p claims.CachedPayload
	if err := json.Unmarshal(val, &p); err != nil {
		return nil, false, err
	}
	return &p, true, nil
}

// Put stores the payload with a TTL of the token's remaining lifetime clipped
// to the configured maximum. Expired tokens are not cached.
func (c *ClaimsCache) Put(ctx context.Context, tokenHash string, payload claims.CachedPayload, expiresAt int64) error {
	ttl := time.Until(time.Unix(expiresAt, 0))
	if ttl > c.maxTTL {
		ttl = c.maxTTL
	}
	if ttl <= 0 {
		return nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.key(tokenHash), b, ttl).Err()
}

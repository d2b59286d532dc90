// Package memorystore provides the in-process claims cache. State is rebuilt
// from scratch on restart: the first request per token after a restart always
// performs full validation.
package memorystore

import (
	"context"
	"sync"
	"time"

	"github.com/open-rails/claimskit/claims"
)

const defaultMaxTTL = 15 * time.Minute

// ClaimsCache is an in-memory implementation of claims.Cache with per-entry
// TTL bounded by the token's remaining lifetime.
type ClaimsCache struct {
	mu     sync.RWMutex
	maxTTL time.Duration
	data   map[string]item
	closed chan struct{}
}

type item struct {
	v   claims.CachedPayload
	exp time.Time
}

// NewClaimsCache creates the cache. If maxTTL <= 0, a default of 15 minutes
// is used. Starts a background goroutine that sweeps expired entries every
// minute; lookups also evict lazily.
func NewClaimsCache(maxTTL time.Duration) *ClaimsCache {
	if maxTTL <= 0 {
		maxTTL = defaultMaxTTL
	}
	c := &ClaimsCache{maxTTL: maxTTL, data: make(map[string]item), closed: make(chan struct{})}
	go c.cleanupLoop()
	return c
}

// Get returns the cached payload for the token hash, or found=false.
func (c *ClaimsCache) Get(ctx context.Context, tokenHash string) (*claims.CachedPayload, bool, error) {
	_ = ctx
	c.mu.RLock()
	it, ok := c.data[tokenHash]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(it.exp) {
		c.mu.Lock()
		// A Put may have replaced the entry between the two locks; only evict
		// if it is still expired.
		if cur, ok := c.data[tokenHash]; ok && time.Now().After(cur.exp) {
			delete(c.data, tokenHash)
		}
		c.mu.Unlock()
		return nil, false, nil
	}
	v := it.v
	return &v, true, nil
}

// Put stores the payload until the token expires, clipped to the configured
// maximum. A token that has already expired is not cached.
func (c *ClaimsCache) Put(ctx context.Context, tokenHash string, payload claims.CachedPayload, expiresAt int64) error {
	_ = ctx
	ttl := time.Until(time.Unix(expiresAt, 0))
	if ttl > c.maxTTL {
		ttl = c.maxTTL
	}
	if ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	c.data[tokenHash] = item{v: payload, exp: time.Now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

func (c *ClaimsCache) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.closed:
			return
		}
	}
}

func (c *ClaimsCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for k, v := range c.data {
		if now.After(v.exp) {
			delete(c.data, k)
		}
	}
}

// Close stops the background sweep goroutine.
func (c *ClaimsCache) Close() error {
	close(c.closed)
	return nil
}

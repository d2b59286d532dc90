// Package jwks retrieves and caches the Authorization Server's signing keys.
package jwks

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/open-rails/claimskit/autherr"
)

const (
	defaultRefreshCooldown = 5 * time.Minute
	defaultHTTPTimeout     = 10 * time.Second
)

// Config describes where and how often to fetch the JWKS.
type Config struct {
	// EndpointURL is the JWKS endpoint of the Authorization Server.
	EndpointURL string

	// RefreshCooldown bounds how often an unknown kid may force a refresh.
	// Repeated lookups of already-known kids are always served from memory.
	RefreshCooldown time.Duration

	// HTTPTimeout bounds each outbound JWKS request.
	HTTPTimeout time.Duration

	// HTTPClient overrides the default client (proxy from environment,
	// HTTPTimeout). Mainly for tests.
	HTTPClient *http.Client
}

func (c Config) defaulted() Config {
	if c.RefreshCooldown <= 0 {
		c.RefreshCooldown = defaultRefreshCooldown
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = defaultHTTPTimeout
	}
	return c
}

// KeyRetriever serves public keys by kid from a cached JWKS. Construct one at
// process startup and share it across requests; the key set is read-only
// between refreshes.
type KeyRetriever struct {
	url      string
	cache    *jwk.Cache
	cooldown time.Duration

	mu         sync.Mutex
	lastForced time.Time
	forcedOnce bool
}

// NewKeyRetriever registers the JWKS endpoint with an auto-refreshing cache.
// No fetch happens until the first lookup (or an explicit Warmup).
func NewKeyRetriever(ctx context.Context, cfg Config) (*KeyRetriever, error) {
	cfg = cfg.defaulted()
	if cfg.EndpointURL == "" {
		return nil, autherr.Newf(autherr.CodeSigningKeyDownload, "jwks endpoint URL is empty")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: cfg.HTTPTimeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
			},
		}
	}

	cache := jwk.NewCache(ctx)
	if err := cache.Register(
		cfg.EndpointURL,
		jwk.WithMinRefreshInterval(cfg.RefreshCooldown),
		jwk.WithHTTPClient(httpClient),
	); err != nil {
		return nil, autherr.New(autherr.CodeSigningKeyDownload, err)
	}

	return &KeyRetriever{
		url:      cfg.EndpointURL,
		cache:    cache,
		cooldown: cfg.RefreshCooldown,
	}, nil
}

// Warmup fetches the key set eagerly, e.g. at startup or on a schedule.
func (r *KeyRetriever) Warmup(ctx context.Context) error {
	if _, err := r.cache.Refresh(ctx, r.url); err != nil {
		return autherr.New(autherr.CodeSigningKeyDownload, err)
	}
	return nil
}

// KeySet returns the current key set, fetching it on first use.
func (r *KeyRetriever) KeySet(ctx context.Context) (jwk.Set, error) {
	set, err := r.cache.Get(ctx, r.url)
	if err != nil {
		return nil, autherr.New(autherr.CodeSigningKeyDownload, err)
	}
	return set, nil
}

// Key returns the public key with the given kid. An unknown kid triggers at
// most one forced refresh per cooldown window, which covers key rotation
// without hammering the Authorization Server.
func (r *KeyRetriever) Key(ctx context.Context, kid string) (jwk.Key, error) {
	set, err := r.KeySet(ctx)
	if err != nil {
		return nil, err
	}
	if key, ok := set.LookupKeyID(kid); ok {
		return key, nil
	}

	if r.refreshAllowed() {
		refreshed, err := r.cache.Refresh(ctx, r.url)
		if err != nil {
			return nil, autherr.New(autherr.CodeSigningKeyDownload, err)
		}
		set = refreshed
	}

	if key, ok := set.LookupKeyID(kid); ok {
		return key, nil
	}
	return nil, autherr.Newf(autherr.CodeSigningKeyDownload, "no signing key with kid %q after refresh", kid)
}

func (r *KeyRetriever) refreshAllowed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.forcedOnce && time.Since(r.lastForced) < r.cooldown {
		return false
	}
	r.lastForced = time.Now()
	r.forcedOnce = true
	return true
}

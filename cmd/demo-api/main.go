// Command demo-api is a sample resource server protected by the claimskit
// pipeline. It validates tokens from a configured Authorization Server,
// enriches them with region claims, and serves region-scoped demo data.
package main

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/open-rails/claimskit/authorizer"
	"github.com/open-rails/claimskit/claims"
	"github.com/open-rails/claimskit/identity"
	"github.com/open-rails/claimskit/jwks"
	migrations "github.com/open-rails/claimskit/migrations/postgres"
	oidckit "github.com/open-rails/claimskit/oidc"
	memorylimiter "github.com/open-rails/claimskit/ratelimit/memory"
	redislimiter "github.com/open-rails/claimskit/ratelimit/redis"
	memorystore "github.com/open-rails/claimskit/storage/memory"
	redisstore "github.com/open-rails/claimskit/storage/redis"
	"github.com/open-rails/claimskit/validator"
)

type config struct {
	listenAddr       string
	issuerURL        string
	audience         string
	jwksURL          string
	userInfoURL      string
	introspectionURL string
	strategy         validator.Strategy
	clientID         string
	clientSecret     string
	cacheTTL         time.Duration
	jwksCooldown     time.Duration
	redisAddr        string
	databaseURL      string
	rateLimitPerMin  int
}

func loadConfig() config {
	cfg := config{
		listenAddr:       envOr("LISTEN_ADDR", ":8080"),
		issuerURL:        os.Getenv("ISSUER_URL"),
		audience:         os.Getenv("AUDIENCE"),
		jwksURL:          os.Getenv("JWKS_URL"),
		userInfoURL:      os.Getenv("USERINFO_URL"),
		introspectionURL: os.Getenv("INTROSPECTION_URL"),
		strategy:         validator.Strategy(envOr("CLAIMS_STRATEGY", string(validator.StrategyJWT))),
		clientID:         os.Getenv("INTROSPECTION_CLIENT_ID"),
		clientSecret:     os.Getenv("INTROSPECTION_CLIENT_SECRET"),
		redisAddr:        os.Getenv("REDIS_ADDR"),
		databaseURL:      os.Getenv("DATABASE_URL"),
	}
	ttlMinutes := envIntOr("CLAIMS_CACHE_TTL_MINUTES", 15)
	cfg.cacheTTL = time.Duration(ttlMinutes) * time.Minute
	cooldownSeconds := envIntOr("JWKS_REFRESH_COOLDOWN_SECONDS", 300)
	cfg.jwksCooldown = time.Duration(cooldownSeconds) * time.Second
	cfg.rateLimitPerMin = envIntOr("RATE_LIMIT_PER_MINUTE", 120)
	return cfg
}

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg := loadConfig()
	if cfg.issuerURL == "" {
		log.Fatal("ISSUER_URL is required")
	}

	ctx := context.Background()

	// Endpoints not configured explicitly come from issuer metadata.
	if cfg.jwksURL == "" || cfg.userInfoURL == "" || (cfg.strategy == validator.StrategyIntrospection && cfg.introspectionURL == "") {
		doc, err := oidckit.Discover(ctx, cfg.issuerURL, nil)
		if err != nil {
			log.WithError(err).Fatal("OIDC discovery failed")
		}
		if cfg.jwksURL == "" {
			cfg.jwksURL = doc.JWKSURI
		}
		if cfg.userInfoURL == "" {
			cfg.userInfoURL = doc.UserinfoEndpoint
		}
		if cfg.introspectionURL == "" {
			cfg.introspectionURL = doc.IntrospectionEndpoint
		}
	}

	keys, err := jwks.NewKeyRetriever(ctx, jwks.Config{
		EndpointURL:     cfg.jwksURL,
		RefreshCooldown: cfg.jwksCooldown,
	})
	if err != nil {
		log.WithError(err).Fatal("building key retriever")
	}

	tokenValidator, err := validator.New(validator.Config{
		Strategy:         cfg.strategy,
		Issuer:           cfg.issuerURL,
		Audience:         cfg.audience,
		Keys:             keys,
		IntrospectionURL: cfg.introspectionURL,
		ClientID:         cfg.clientID,
		ClientSecret:     cfg.clientSecret,
	})
	if err != nil {
		log.WithError(err).Fatal("building token validator")
	}

	var rdb *redis.Client
	if cfg.redisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.redisAddr})
		defer rdb.Close()
	}

	var cache claims.Cache
	if rdb != nil {
		cache = redisstore.NewClaimsCache(rdb, "", cfg.cacheTTL)
		log.WithField("addr", cfg.redisAddr).Info("using redis claims cache")
	} else {
		cache = memorystore.NewClaimsCache(cfg.cacheTTL)
	}

	var limiter requestLimiter
	var limiterSweep func()
	if cfg.rateLimitPerMin > 0 {
		if rdb != nil {
			limiter = redislimiter.New(rdb, "", redislimiter.Limit{Requests: cfg.rateLimitPerMin, Window: time.Minute})
		} else {
			ml := memorylimiter.New(memorylimiter.Limit{Requests: cfg.rateLimitPerMin, Window: time.Minute})
			limiter = ml
			limiterSweep = ml.Sweep
		}
	}

	var userInfo authorizer.UserInfoFetcher
	if cfg.userInfoURL != "" {
		client, err := oidckit.NewUserInfoClient(cfg.userInfoURL, nil)
		if err != nil {
			log.WithError(err).Fatal("building userinfo client")
		}
		userInfo = client
	}

	var provider claims.Provider
	if cfg.databaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.databaseURL)
		if err != nil {
			log.WithError(err).Fatal("connecting to database")
		}
		defer pool.Close()
		if err := migrations.Apply(ctx, pool); err != nil {
			log.WithError(err).Fatal("applying schema migrations")
		}
		provider = identity.NewClaimsProvider(identity.NewStore(pool, ""))
		log.Info("using database-backed claims provider")
	} else {
		provider = newRegionProvider([]string{"usa", "europe"})
	}

	auth, err := authorizer.New(authorizer.Options{
		Validator: tokenValidator,
		Cache:     cache,
		UserInfo:  userInfo,
		Provider:  provider,
		Logger:    log,
	})
	if err != nil {
		log.WithError(err).Fatal("building authorizer")
	}

	scheduler := cron.New()
	// Keep signing keys warm so rotation doesn't surface as request latency.
	if cfg.strategy == validator.StrategyJWT {
		if _, err := scheduler.AddFunc("@every 5m", func() {
			if err := keys.Warmup(context.Background()); err != nil {
				log.WithError(err).Warn("scheduled JWKS refresh failed")
			}
		}); err != nil {
			log.WithError(err).Fatal("scheduling JWKS refresh")
		}
	}
	if limiterSweep != nil {
		if _, err := scheduler.AddFunc("@every 1m", limiterSweep); err != nil {
			log.WithError(err).Fatal("scheduling limiter sweep")
		}
	}
	scheduler.Start()
	defer scheduler.Stop()

	router := newRouter(auth, seedDataset(), limiter)
	log.WithField("addr", cfg.listenAddr).Info("demo-api listening")
	if err := router.Run(cfg.listenAddr); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

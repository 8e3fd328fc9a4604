// Command server runs the wingman reply-generation service.
//
// Configuration is loaded from a YAML file plus WINGMAN_* environment
// overrides; see pkg/config. The config file is discovered from
// -config, WINGMAN_CONFIG, ./config.yaml, or /etc/wingman/config.yaml,
// in that order.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/wingman-dev/wingman/pkg/api"
	"github.com/wingman-dev/wingman/pkg/auth"
	"github.com/wingman-dev/wingman/pkg/auth/apikey"
	"github.com/wingman-dev/wingman/pkg/auth/jwt"
	"github.com/wingman-dev/wingman/pkg/auth/noop"
	"github.com/wingman-dev/wingman/pkg/cache"
	cachemem "github.com/wingman-dev/wingman/pkg/cache/memory"
	cacheredis "github.com/wingman-dev/wingman/pkg/cache/redis"
	"github.com/wingman-dev/wingman/pkg/config"
	"github.com/wingman-dev/wingman/pkg/debug"
	"github.com/wingman-dev/wingman/pkg/pipeline"
	"github.com/wingman-dev/wingman/pkg/provider"
	"github.com/wingman-dev/wingman/pkg/provider/openaicompat"
	"github.com/wingman-dev/wingman/pkg/storage"
	storagemem "github.com/wingman-dev/wingman/pkg/storage/memory"
	storagepg "github.com/wingman-dev/wingman/pkg/storage/postgres"
	"github.com/wingman-dev/wingman/pkg/transport"
	transporthttp "github.com/wingman-dev/wingman/pkg/transport/http"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	debug.Init("", "")

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Provider registry from the configured backends.
	registry := buildRegistry(cfg.Providers)
	defer registry.Close()

	// Stage cache.
	store, err := buildCache(ctx, cfg.Cache)
	if err != nil {
		return fmt.Errorf("creating stage cache: %w", err)
	}
	defer store.Close()

	// Failed-output store.
	failures, err := buildFailureStore(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("creating failure store: %w", err)
	}
	defer failures.Close()

	// Orchestrator.
	orch := pipeline.New(registry, store, failures, nil, nil, pipeline.Config{
		DefaultStrategy: api.Strategy(cfg.Pipeline.DefaultStrategy),
		CacheTTL:        cfg.Cache.TTL,
		InsightWorkers:  cfg.Pipeline.InsightWorkers,
		EnrichInsights:  cfg.Pipeline.EnrichInsights,
		MaxTokens:       cfg.Pipeline.MaxTokens,
	})

	opts := []transporthttp.ServerOption{
		transporthttp.WithAddr(fmt.Sprintf(":%d", cfg.Server.Port)),
		transporthttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
	}
	if !cfg.Observability.Metrics.Enabled {
		opts = append(opts, transporthttp.WithMetricsPath(""))
	} else if cfg.Observability.Metrics.Path != "" {
		opts = append(opts, transporthttp.WithMetricsPath(cfg.Observability.Metrics.Path))
	}
	if mw := buildAuthMiddleware(cfg.Auth); mw != nil {
		opts = append(opts, transporthttp.WithAuthMiddleware(mw))
	}

	srv := transporthttp.NewServer(transport.ReplyCreatorFunc(orch.Execute), failures, opts...)
	srv.RegisterReadiness("cache", store)
	srv.RegisterReadiness("storage", failures)

	slog.Info("wingman starting",
		"port", cfg.Server.Port,
		"providers", len(cfg.Providers),
		"strategy", cfg.Pipeline.DefaultStrategy,
		"cache", cfg.Cache.Type,
		"storage", cfg.Storage.Type,
		"auth", cfg.Auth.Type,
	)

	return srv.ListenAndServe()
}

// buildRegistry creates one Chat Completions adapter per configured
// backend. Priority defaults to list order when unset.
func buildRegistry(providers []config.ProviderConfig) *provider.Registry {
	registry := provider.NewRegistry()
	for i, pc := range providers {
		priority := pc.Priority
		if priority == 0 {
			priority = i + 1
		}
		registry.Register(openaicompat.New(openaicompat.Config{
			Name:        pc.Name,
			BaseURL:     pc.URL,
			APIKey:      pc.APIKey,
			TextModel:   pc.TextModel,
			VisionModel: pc.VisionModel,
			Priority:    priority,
			Timeout:     pc.Timeout,
		}))
	}
	return registry
}

func buildCache(ctx context.Context, cfg config.CacheConfig) (cache.Store, error) {
	switch cfg.Type {
	case "redis":
		return cacheredis.New(ctx, cacheredis.Config{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
	default:
		return cachemem.New(), nil
	}
}

func buildFailureStore(ctx context.Context, cfg config.StorageConfig) (storage.FailureStore, error) {
	switch cfg.Type {
	case "postgres":
		return storagepg.New(ctx, storagepg.Config{
			DSN:            cfg.Postgres.DSN,
			MaxConns:       cfg.Postgres.MaxConns,
			MigrateOnStart: cfg.Postgres.MigrateOnStart,
		})
	default:
		return storagemem.New(cfg.MaxRecords), nil
	}
}

// buildAuthMiddleware assembles the auth chain and rate limiter from
// configuration. Returns nil when neither authentication nor rate
// limiting is configured.
func buildAuthMiddleware(cfg config.AuthConfig) func(http.Handler) http.Handler {
	var limiter auth.RateLimiter
	if cfg.RateLimit.Enabled {
		tiers := make(map[string]auth.TierConfig, len(cfg.RateLimit.TierRPM))
		for tier, rpm := range cfg.RateLimit.TierRPM {
			tiers[tier] = auth.TierConfig{RequestsPerMinute: rpm}
		}
		limiter = auth.NewInProcessLimiter(tiers, cfg.RateLimit.DefaultRPM)
	}

	var chain *auth.AuthChain
	switch cfg.Type {
	case "apikey":
		entries := make([]apikey.RawKeyEntry, 0, len(cfg.APIKeys))
		for _, k := range cfg.APIKeys {
			entries = append(entries, apikey.RawKeyEntry{
				Key: k.Key,
				Identity: auth.Identity{
					Subject:     k.Subject,
					ServiceTier: k.ServiceTier,
				},
			})
		}
		chain = &auth.AuthChain{
			Authenticators:  []auth.Authenticator{apikey.New(entries)},
			DefaultDecision: auth.No,
		}
	case "jwt":
		chain = &auth.AuthChain{
			Authenticators: []auth.Authenticator{jwt.New(jwt.Config{
				Issuer:    cfg.JWT.Issuer,
				Audience:  cfg.JWT.Audience,
				JWKSURL:   cfg.JWT.JWKSURL,
				TierClaim: cfg.JWT.TierClaim,
			})},
			DefaultDecision: auth.No,
		}
	default:
		if limiter == nil {
			return nil
		}
		// Rate limiting without authentication: every request is
		// anonymous on the default tier.
		chain = &auth.AuthChain{
			Authenticators:  []auth.Authenticator{&noop.Authenticator{}},
			DefaultDecision: auth.Yes,
		}
	}

	return auth.Middleware(chain, limiter, auth.DefaultBypassEndpoints)
}

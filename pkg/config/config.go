// Package config provides unified configuration for the wingman service.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (WINGMAN_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for the wingman service.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Providers     []ProviderConfig    `yaml:"providers"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Cache         CacheConfig         `yaml:"cache"`
	Storage       StorageConfig       `yaml:"storage"`
	Auth          AuthConfig          `yaml:"auth"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`          // default: 8080
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"` // default: 120s
}

// ProviderConfig describes one LLM backend. Candidates are consulted in
// ascending priority order during fallback.
type ProviderConfig struct {
	Name        string        `yaml:"name"`         // required, unique
	URL         string        `yaml:"url"`          // required
	APIKey      string        `yaml:"api_key"`      // optional
	APIKeyFile  string        `yaml:"api_key_file"` // _file variant for api_key
	TextModel   string        `yaml:"text_model"`   // required
	VisionModel string        `yaml:"vision_model"` // empty: no vision capability
	Priority    int           `yaml:"priority"`     // lower wins, default: list order
	Timeout     time.Duration `yaml:"timeout"`      // per-call, default: 60s
}

// PipelineConfig holds orchestrator settings.
type PipelineConfig struct {
	DefaultStrategy string `yaml:"default_strategy"` // "traditional" or "merged", default: "traditional"
	InsightWorkers  int    `yaml:"insight_workers"`  // default: 4
	EnrichInsights  bool   `yaml:"enrich_insights"`  // default: false
	MaxTokens       int    `yaml:"max_tokens"`       // 0: backend default
}

// CacheConfig holds stage cache settings.
type CacheConfig struct {
	Type  string        `yaml:"type"` // "memory" or "redis", default: "memory"
	TTL   time.Duration `yaml:"ttl"`  // default: 15m
	Redis RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis-specific cache settings.
type RedisConfig struct {
	Address      string `yaml:"address"`
	Password     string `yaml:"password"`
	PasswordFile string `yaml:"password_file"` // _file variant for password
	DB           int    `yaml:"db"`
	KeyPrefix    string `yaml:"key_prefix"` // default: "wingman:stage:"
}

// StorageConfig holds failed-output store settings.
type StorageConfig struct {
	Type       string         `yaml:"type"`        // "memory" or "postgres", default: "memory"
	MaxRecords int            `yaml:"max_records"` // for memory store, default: 1000
	Postgres   PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`         // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`        // default: 10
	MigrateOnStart bool   `yaml:"migrate_on_start"` // default: false
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	Type      string          `yaml:"type"`       // "none", "apikey", or "jwt", default: "none"
	APIKeys   []APIKeyConfig  `yaml:"api_keys"`   // API key entries for type=apikey
	JWT       JWTConfig       `yaml:"jwt"`        // settings for type=jwt
	RateLimit RateLimitConfig `yaml:"rate_limit"` // per-tier request limits
}

// RateLimitConfig holds per-tier request rate limits. Requests are
// counted per subject and tier over a sliding one-minute window.
type RateLimitConfig struct {
	Enabled    bool           `yaml:"enabled"`     // default: false
	DefaultRPM int            `yaml:"default_rpm"` // default: 60
	TierRPM    map[string]int `yaml:"tier_rpm"`    // overrides per service tier
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key         string `yaml:"key"`
	KeyFile     string `yaml:"key_file"` // _file variant for key
	Subject     string `yaml:"subject"`
	ServiceTier string `yaml:"service_tier"`
}

// JWTConfig holds JWT/OIDC validation settings.
type JWTConfig struct {
	Issuer    string `yaml:"issuer"`
	Audience  string `yaml:"audience"`
	JWKSURL   string `yaml:"jwks_url"`
	TierClaim string `yaml:"tier_claim"` // default: "tier"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
		},
		Pipeline: PipelineConfig{
			DefaultStrategy: "traditional",
			InsightWorkers:  4,
		},
		Cache: CacheConfig{
			Type: "memory",
			TTL:  15 * time.Minute,
			Redis: RedisConfig{
				KeyPrefix: "wingman:stage:",
			},
		},
		Storage: StorageConfig{
			Type:       "memory",
			MaxRecords: 1000,
			Postgres: PostgresConfig{
				MaxConns: 10,
			},
		},
		Auth: AuthConfig{
			Type: "none",
			RateLimit: RateLimitConfig{
				DefaultRPM: 60,
			},
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

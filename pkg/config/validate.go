package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	// At least one provider is required.
	if len(c.Providers) == 0 {
		errs = append(errs, fmt.Errorf("providers must list at least one backend"))
	}
	seen := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("providers[%d].name is required", i))
		} else if seen[p.Name] {
			errs = append(errs, fmt.Errorf("providers[%d].name %q is duplicated", i, p.Name))
		} else {
			seen[p.Name] = true
		}
		if p.URL == "" {
			errs = append(errs, fmt.Errorf("providers[%d].url is required", i))
		}
		if p.TextModel == "" {
			errs = append(errs, fmt.Errorf("providers[%d].text_model is required", i))
		}
	}

	// server.port must be positive.
	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be > 0, got %d", c.Server.Port))
	}

	// pipeline.default_strategy must be a known value.
	switch c.Pipeline.DefaultStrategy {
	case "traditional", "merged":
		// valid
	default:
		errs = append(errs, fmt.Errorf("pipeline.default_strategy must be \"traditional\" or \"merged\", got %q", c.Pipeline.DefaultStrategy))
	}

	// cache.type must be a known value.
	switch c.Cache.Type {
	case "memory", "redis":
		// valid
	default:
		errs = append(errs, fmt.Errorf("cache.type must be \"memory\" or \"redis\", got %q", c.Cache.Type))
	}

	// If cache.type is "redis", an address must be set.
	if c.Cache.Type == "redis" && c.Cache.Redis.Address == "" {
		errs = append(errs, fmt.Errorf("cache.redis.address is required when cache.type is \"redis\""))
	}

	// storage.type must be a known value.
	switch c.Storage.Type {
	case "memory", "postgres":
		// valid
	default:
		errs = append(errs, fmt.Errorf("storage.type must be \"memory\" or \"postgres\", got %q", c.Storage.Type))
	}

	// If storage.type is "postgres", DSN or DSNFile must be set.
	if c.Storage.Type == "postgres" {
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
		}
	}

	// auth.type must be a known value.
	switch c.Auth.Type {
	case "none", "apikey", "jwt":
		// valid
	default:
		errs = append(errs, fmt.Errorf("auth.type must be \"none\", \"apikey\", or \"jwt\", got %q", c.Auth.Type))
	}

	// If auth.type is "jwt", the JWKS endpoint must be set.
	if c.Auth.Type == "jwt" && c.Auth.JWT.JWKSURL == "" {
		errs = append(errs, fmt.Errorf("auth.jwt.jwks_url is required when auth.type is \"jwt\""))
	}

	return errors.Join(errs...)
}

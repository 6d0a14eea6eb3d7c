package config

import (
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
)

// Validate checks the configuration for required fields and valid values.
// All problems are reported together.
func (c *Config) Validate() error {
	var errs []error

	// Data queries cannot be made without a key.
	if c.Census.APIKey == "" {
		errs = append(errs, fmt.Errorf("census.api_key is required (set CENSUS_API_KEY)"))
	}
	if c.Census.BaseURL == "" {
		errs = append(errs, fmt.Errorf("census.base_url must not be empty"))
	}
	if c.Census.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("census.cache_size must be >= 0, got %d", c.Census.CacheSize))
	}

	switch c.Server.Transport {
	case "stdio", "http":
	default:
		errs = append(errs, fmt.Errorf("server.transport must be \"stdio\" or \"http\", got %q", c.Server.Transport))
	}
	if c.Server.Transport == "http" && c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be > 0, got %d", c.Server.Port))
	}

	if c.Index.Enabled {
		errs = append(errs, c.validateIndex()...)

		switch c.Embedding.Provider {
		case "ollama", "openai", "mock":
		default:
			errs = append(errs, fmt.Errorf("embedding.provider must be \"ollama\", \"openai\", or \"mock\", got %q", c.Embedding.Provider))
		}
		if c.Embedding.Provider == "openai" && c.Embedding.APIKey == "" && c.Embedding.URL == "" {
			errs = append(errs, fmt.Errorf("embedding.api_key or embedding.url is required when embedding.provider is \"openai\""))
		}
	}

	switch c.Auth.Type {
	case "none", "apikey":
	case "jwt":
		if c.Auth.JWT.JWKSURL == "" {
			errs = append(errs, fmt.Errorf("auth.jwt.jwks_url is required when auth.type is \"jwt\""))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.type must be \"none\", \"apikey\", or \"jwt\", got %q", c.Auth.Type))
	}
	if c.Auth.Type == "apikey" && len(c.Auth.APIKeys) == 0 {
		errs = append(errs, fmt.Errorf("auth.api_keys must not be empty when auth.type is \"apikey\""))
	}

	if c.Observability.Tracing.Enabled && c.Observability.Tracing.Endpoint == "" {
		errs = append(errs, fmt.Errorf("observability.tracing.endpoint is required when tracing is enabled"))
	}

	return errors.Join(errs...)
}

func (c *Config) validateIndex() []error {
	var errs []error

	switch c.Index.Backend {
	case "memory":
	case "sqlite":
		if c.Index.Path == "" {
			errs = append(errs, fmt.Errorf("index.path is required when index.backend is \"sqlite\""))
		}
	case "qdrant":
		if c.Index.Qdrant.URL == "" {
			errs = append(errs, fmt.Errorf("index.qdrant.url is required when index.backend is \"qdrant\""))
		}
	case "pgvector":
		if c.Index.Postgres.DSN == "" && c.Index.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("index.postgres.dsn or index.postgres.dsn_file is required when index.backend is \"pgvector\""))
		}
	default:
		errs = append(errs, fmt.Errorf("index.backend must be \"sqlite\", \"memory\", \"qdrant\", or \"pgvector\", got %q", c.Index.Backend))
	}

	if c.Index.TopK <= 0 {
		errs = append(errs, fmt.Errorf("index.top_k must be > 0, got %d", c.Index.TopK))
	}
	if c.Index.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("index.batch_size must be > 0, got %d", c.Index.BatchSize))
	}
	if c.Index.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("index.concurrency must be > 0, got %d", c.Index.Concurrency))
	}
	if c.Index.RefreshSchedule != "" {
		if _, err := cron.ParseStandard(c.Index.RefreshSchedule); err != nil {
			errs = append(errs, fmt.Errorf("index.refresh_schedule: %w", err))
		}
	}
	return errs
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/rhuss/mcp-census/pkg/auth"
	"github.com/rhuss/mcp-census/pkg/auth/apikey"
	"github.com/rhuss/mcp-census/pkg/auth/jwt"
	"github.com/rhuss/mcp-census/pkg/auth/noop"
	"github.com/rhuss/mcp-census/pkg/census"
	"github.com/rhuss/mcp-census/pkg/config"
	"github.com/rhuss/mcp-census/pkg/datasets"
	"github.com/rhuss/mcp-census/pkg/debug"
	"github.com/rhuss/mcp-census/pkg/embedding"
	"github.com/rhuss/mcp-census/pkg/embedding/mock"
	"github.com/rhuss/mcp-census/pkg/embedding/ollama"
	"github.com/rhuss/mcp-census/pkg/embedding/openai"
	"github.com/rhuss/mcp-census/pkg/index"
	"github.com/rhuss/mcp-census/pkg/index/memory"
	"github.com/rhuss/mcp-census/pkg/index/pgvector"
	"github.com/rhuss/mcp-census/pkg/index/qdrant"
	"github.com/rhuss/mcp-census/pkg/index/sqlite"
)

// addConfigFlag registers --config on fs.
func addConfigFlag(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to config.yaml (default: $MCP_CENSUS_CONFIG, ./config.yaml, /etc/mcp-census/config.yaml)")
}

// loadConfig reads --config and initialises logging from the result.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	debug.Init(cfg.Logging.Debug, cfg.Logging.Level)
	return cfg, nil
}

func newCensusClient(cfg *config.Config) *census.Client {
	return census.New(census.Options{
		BaseURL:    cfg.Census.BaseURL,
		CatalogURL: cfg.Census.CatalogURL,
		APIKey:     cfg.Census.APIKey,
		Timeout:    cfg.Census.Timeout,
		CacheSize:  cfg.Census.CacheSize,
		CacheTTL:   cfg.Census.CacheTTL,
	})
}

// newEmbedder builds the configured embedding provider wrapped with
// metrics and tracing.
func newEmbedder(cfg config.EmbeddingConfig) (embedding.Provider, error) {
	var (
		p   embedding.Provider
		err error
	)
	switch cfg.Provider {
	case "ollama", "":
		p, err = ollama.New(cfg.URL, cfg.Model, ollama.WithTimeout(cfg.Timeout))
	case "openai":
		opts := []openai.Option{openai.WithTimeout(cfg.Timeout)}
		if cfg.URL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.URL))
		}
		p, err = openai.New(cfg.APIKey, cfg.Model, opts...)
	case "mock":
		p = mock.New(mock.DefaultDims)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s embedding provider: %w", cfg.Provider, err)
	}
	return embedding.Instrumented(p), nil
}

// newIndex opens the configured vector index backend.
func newIndex(ctx context.Context, cfg config.IndexConfig) (index.Index, error) {
	switch cfg.Backend {
	case "memory":
		return memory.New(), nil
	case "sqlite", "":
		return sqlite.Open(ctx, cfg.Path)
	case "qdrant":
		return qdrant.New(cfg.Qdrant.URL, cfg.Qdrant.Collection), nil
	case "pgvector":
		return pgvector.New(ctx, pgvector.Config{
			DSN:            cfg.Postgres.DSN,
			MaxConns:       cfg.Postgres.MaxConns,
			MigrateOnStart: cfg.Postgres.MigrateOnStart,
		})
	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.Backend)
	}
}

// catalog bundles the dataset index components shared by serve and index.
type catalog struct {
	embedder embedding.Provider
	index    index.Index
	builder  *datasets.Builder
	searcher *datasets.Searcher
}

func newCatalog(ctx context.Context, cfg *config.Config, client *census.Client, logger *slog.Logger) (*catalog, error) {
	embedder, err := newEmbedder(cfg.Embedding)
	if err != nil {
		return nil, err
	}
	idx, err := newIndex(ctx, cfg.Index)
	if err != nil {
		return nil, fmt.Errorf("opening %s index: %w", cfg.Index.Backend, err)
	}

	builder := datasets.NewBuilder(client, embedder, idx, datasets.BuilderOptions{
		Backend:      cfg.Index.Backend,
		BatchSize:    cfg.Index.BatchSize,
		Concurrency:  cfg.Index.Concurrency,
		SnapshotPath: cfg.Index.SnapshotPath,
		Logger:       logger,
	})
	return &catalog{
		embedder: embedder,
		index:    idx,
		builder:  builder,
		searcher: &datasets.Searcher{
			Provider: embedder,
			Index:    idx,
			Backend:  cfg.Index.Backend,
			DefaultK: cfg.Index.TopK,
			Ready:    builder.Ready,
		},
	}, nil
}

func (c *catalog) Close() error {
	return c.index.Close()
}

// newAuthMiddleware builds the HTTP auth chain and rate limiter. It
// returns nil when authentication is disabled and no limit is set.
func newAuthMiddleware(cfg *config.Config) (func(http.Handler) http.Handler, error) {
	chain := &auth.Chain{Default: auth.No}

	switch cfg.Auth.Type {
	case "none", "":
		if cfg.Auth.RateLimit.RequestsPerMinute <= 0 && len(cfg.Auth.RateLimit.Tiers) == 0 {
			return nil, nil
		}
		chain.Authenticators = []auth.Authenticator{noop.Authenticator{}}
	case "apikey":
		keys := make([]apikey.Key, 0, len(cfg.Auth.APIKeys))
		for _, k := range cfg.Auth.APIKeys {
			id := auth.Identity{Subject: k.Subject, ServiceTier: k.ServiceTier}
			if id.ServiceTier == "" {
				id.ServiceTier = auth.Anonymous.ServiceTier
			}
			keys = append(keys, apikey.Key{Key: k.Key, Identity: id})
		}
		chain.Authenticators = []auth.Authenticator{apikey.New(keys)}
	case "jwt":
		chain.Authenticators = []auth.Authenticator{jwt.New(jwt.Config{
			Issuer:        cfg.Auth.JWT.Issuer,
			Audience:      cfg.Auth.JWT.Audience,
			JWKSURL:       cfg.Auth.JWT.JWKSURL,
			RequiredScope: cfg.Auth.JWT.RequiredScope,
		})}
	default:
		return nil, fmt.Errorf("unknown auth type %q", cfg.Auth.Type)
	}

	var limiter auth.RateLimiter
	if cfg.Auth.RateLimit.RequestsPerMinute > 0 || len(cfg.Auth.RateLimit.Tiers) > 0 {
		limiter = auth.NewLimiter(cfg.Auth.RateLimit.RequestsPerMinute, cfg.Auth.RateLimit.Tiers)
	}

	bypass := append([]string(nil), auth.DefaultBypassPaths...)
	if p := cfg.Observability.Metrics.Path; p != "" {
		bypass = append(bypass, p)
	}
	return auth.Middleware(chain, limiter, bypass), nil
}

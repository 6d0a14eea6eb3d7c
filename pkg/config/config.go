// Package config provides unified configuration for the mcp-census server.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (MCP_CENSUS_ prefix, plus CENSUS_API_KEY)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for the server.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Census        CensusConfig        `yaml:"census"`
	Index         IndexConfig         `yaml:"index"`
	Embedding     EmbeddingConfig     `yaml:"embedding"`
	Auth          AuthConfig          `yaml:"auth"`
	Observability ObservabilityConfig `yaml:"observability"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig holds MCP transport settings.
type ServerConfig struct {
	Transport       string        `yaml:"transport"`        // "stdio" or "http", default: "stdio"
	Port            int           `yaml:"port"`             // default: 8080
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // default: 30s
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // default: 120s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default: 15s
}

// CensusConfig holds Census Data API settings.
type CensusConfig struct {
	BaseURL    string        `yaml:"base_url"`     // default: https://api.census.gov/data
	CatalogURL string        `yaml:"catalog_url"`  // default: https://api.census.gov/data.json
	APIKey     string        `yaml:"api_key"`      // required
	APIKeyFile string        `yaml:"api_key_file"` // _file variant for api_key
	Timeout    time.Duration `yaml:"timeout"`      // default: 30s
	CacheSize  int           `yaml:"cache_size"`   // metadata LRU entries, default: 256, 0 disables
	CacheTTL   time.Duration `yaml:"cache_ttl"`    // default: 1h
}

// IndexConfig holds dataset catalog index settings.
type IndexConfig struct {
	Enabled         bool           `yaml:"enabled"`          // default: true
	Backend         string         `yaml:"backend"`          // "sqlite", "memory", "qdrant", "pgvector"
	Path            string         `yaml:"path"`             // sqlite file, default: census_datasets_index.db
	TopK            int            `yaml:"top_k"`            // default: 5
	BatchSize       int            `yaml:"batch_size"`       // texts per embedding call, default: 64
	Concurrency     int            `yaml:"concurrency"`      // parallel embedding calls, default: 4
	SnapshotPath    string         `yaml:"snapshot_path"`    // zstd catalog snapshot, optional
	RefreshSchedule string         `yaml:"refresh_schedule"` // cron expression (UTC), optional
	Qdrant          QdrantConfig   `yaml:"qdrant"`
	Postgres        PostgresConfig `yaml:"postgres"`
}

// QdrantConfig holds Qdrant backend settings.
type QdrantConfig struct {
	URL        string `yaml:"url"`
	Collection string `yaml:"collection"` // default: census_datasets
}

// PostgresConfig holds pgvector backend settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`         // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`        // default: 10
	MigrateOnStart bool   `yaml:"migrate_on_start"` // default: true
}

// EmbeddingConfig holds text embedding provider settings.
type EmbeddingConfig struct {
	Provider   string        `yaml:"provider"` // "ollama", "openai", "mock", default: "ollama"
	URL        string        `yaml:"url"`      // provider base URL, optional
	Model      string        `yaml:"model"`    // default depends on provider
	APIKey     string        `yaml:"api_key"`
	APIKeyFile string        `yaml:"api_key_file"`
	Timeout    time.Duration `yaml:"timeout"` // default: 60s
}

// AuthConfig holds HTTP authentication settings.
type AuthConfig struct {
	Type      string          `yaml:"type"`     // "none", "apikey", "jwt", default: "none"
	APIKeys   []APIKeyConfig  `yaml:"api_keys"` // entries for type=apikey
	JWT       JWTConfig       `yaml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// APIKeyConfig describes a single API key entry.
type APIKeyConfig struct {
	Key         string `yaml:"key"`
	KeyFile     string `yaml:"key_file"`
	Subject     string `yaml:"subject"`
	ServiceTier string `yaml:"service_tier"`
}

// JWTConfig holds JWT/OIDC validation settings.
type JWTConfig struct {
	Issuer        string `yaml:"issuer"`
	Audience      string `yaml:"audience"`
	JWKSURL       string `yaml:"jwks_url"`
	RequiredScope string `yaml:"required_scope"`
}

// RateLimitConfig holds per-tier request limits.
type RateLimitConfig struct {
	RequestsPerMinute int            `yaml:"requests_per_minute"` // default tier, 0 = unlimited
	Tiers             map[string]int `yaml:"tiers"`
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// TracingConfig holds OpenTelemetry trace export settings.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"` // OTLP/HTTP host:port
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"` // default: mcp-census
}

// LoggingConfig holds log level and debug category settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // default: INFO
	Debug string `yaml:"debug"` // comma-separated categories
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Transport:       "stdio",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Census: CensusConfig{
			BaseURL:    "https://api.census.gov/data",
			CatalogURL: "https://api.census.gov/data.json",
			Timeout:    30 * time.Second,
			CacheSize:  256,
			CacheTTL:   time.Hour,
		},
		Index: IndexConfig{
			Enabled:     true,
			Backend:     "sqlite",
			Path:        "census_datasets_index.db",
			TopK:        5,
			BatchSize:   64,
			Concurrency: 4,
			Qdrant: QdrantConfig{
				Collection: "census_datasets",
			},
			Postgres: PostgresConfig{
				MaxConns:       10,
				MigrateOnStart: true,
			},
		},
		Embedding: EmbeddingConfig{
			Provider: "ollama",
			Timeout:  60 * time.Second,
		},
		Auth: AuthConfig{
			Type: "none",
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
			Tracing: TracingConfig{
				ServiceName: "mcp-census",
			},
		},
		Logging: LoggingConfig{
			Level: "INFO",
		},
	}
}

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rhuss/mcp-census/pkg/debug"
)

// Load resolves configuration from defaults, an optional YAML file,
// environment overrides and _file secret references, then validates it.
//
// The file is the explicit configPath, else $MCP_CENSUS_CONFIG, else
// ./config.yaml, else /etc/mcp-census/config.yaml.
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
		debug.Log("config", "loaded config file", "path", filePath)
	}

	applyEnvOverrides(&cfg)

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv("MCP_CENSUS_CONFIG"); envPath != "" {
		return envPath
	}
	for _, path := range []string{"config.yaml", "/etc/mcp-census/config.yaml"} {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// loadYAMLFile decodes path over cfg; keys absent from the file keep
// their current values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func applyEnvOverrides(cfg *Config) {
	// CENSUS_API_KEY is the name the Census Bureau documents; the prefixed
	// variant wins when both are set.
	if v := os.Getenv("CENSUS_API_KEY"); v != "" {
		cfg.Census.APIKey = v
	}
	if v := os.Getenv("MCP_CENSUS_API_KEY"); v != "" {
		cfg.Census.APIKey = v
	}
	if v := os.Getenv("MCP_CENSUS_BASE_URL"); v != "" {
		cfg.Census.BaseURL = v
	}
	if v := os.Getenv("MCP_CENSUS_TRANSPORT"); v != "" {
		cfg.Server.Transport = v
	}
	if v := os.Getenv("MCP_CENSUS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("MCP_CENSUS_INDEX_BACKEND"); v != "" {
		cfg.Index.Backend = v
	}
	if v := os.Getenv("MCP_CENSUS_INDEX_PATH"); v != "" {
		cfg.Index.Path = v
	}
	if v := os.Getenv("MCP_CENSUS_INDEX_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Index.Enabled = b
		}
	}
	if v := os.Getenv("MCP_CENSUS_QDRANT_URL"); v != "" {
		cfg.Index.Qdrant.URL = v
	}
	if v := os.Getenv("MCP_CENSUS_POSTGRES_DSN"); v != "" {
		cfg.Index.Postgres.DSN = v
	}
	if v := os.Getenv("MCP_CENSUS_EMBEDDING_PROVIDER"); v != "" {
		cfg.Embedding.Provider = v
	}
	if v := os.Getenv("MCP_CENSUS_EMBEDDING_URL"); v != "" {
		cfg.Embedding.URL = v
	}
	if v := os.Getenv("MCP_CENSUS_EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("MCP_CENSUS_EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("MCP_CENSUS_AUTH_TYPE"); v != "" {
		cfg.Auth.Type = v
	}
	// MCP_CENSUS_API_KEYS: JSON array of API key entries.
	if v := os.Getenv("MCP_CENSUS_API_KEYS"); v != "" {
		if keys, err := parseAPIKeysJSON(v); err == nil && len(keys) > 0 {
			cfg.Auth.APIKeys = keys
		}
	}
	if v := os.Getenv("MCP_CENSUS_OTLP_ENDPOINT"); v != "" {
		cfg.Observability.Tracing.Enabled = true
		cfg.Observability.Tracing.Endpoint = v
	}
}

// apiKeyJSON mirrors APIKeyConfig with JSON field names.
type apiKeyJSON struct {
	Key         string `json:"key"`
	KeyFile     string `json:"key_file"`
	Subject     string `json:"subject"`
	ServiceTier string `json:"service_tier"`
}

func parseAPIKeysJSON(jsonStr string) ([]APIKeyConfig, error) {
	var raw []apiKeyJSON
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return nil, fmt.Errorf("parsing API keys JSON: %w", err)
	}
	keys := make([]APIKeyConfig, len(raw))
	for i, k := range raw {
		keys[i] = APIKeyConfig(k)
	}
	return keys, nil
}

// resolveFileReferences fills each value field from its _file companion
// when the value is empty.
func resolveFileReferences(cfg *Config) error {
	refs := []struct {
		name  string
		file  string
		value *string
	}{
		{"census.api_key_file", cfg.Census.APIKeyFile, &cfg.Census.APIKey},
		{"embedding.api_key_file", cfg.Embedding.APIKeyFile, &cfg.Embedding.APIKey},
		{"index.postgres.dsn_file", cfg.Index.Postgres.DSNFile, &cfg.Index.Postgres.DSN},
	}
	for i := range cfg.Auth.APIKeys {
		k := &cfg.Auth.APIKeys[i]
		refs = append(refs, struct {
			name  string
			file  string
			value *string
		}{fmt.Sprintf("auth.api_keys[%d].key_file", i), k.KeyFile, &k.Key})
	}

	for _, ref := range refs {
		if ref.file == "" || *ref.value != "" {
			continue
		}
		val, err := readSecretFile(ref.file)
		if err != nil {
			return fmt.Errorf("%s: %w", ref.name, err)
		}
		*ref.value = val
	}
	return nil
}

func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

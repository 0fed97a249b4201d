// Package config provides YAML-based configuration for progdex.
// Configuration is loaded with a layered precedence: defaults → YAML file → env vars.
// Environment variables always win, so existing workflows are unaffected.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. PROGDEX_CONFIG environment variable
//  3. ~/.progdex/config.yaml
//  4. ./progdex.yaml
//
// If no file is found the system runs entirely from env vars.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure.
// Field names use yaml tags that mirror the env var naming (lowercase, underscored).
type Config struct {
	// Embedding configures the embedding provider.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Store configures the vector store backend.
	Store StoreConfig `yaml:"store"`

	// Ingest configures the ingestion pipeline.
	Ingest IngestConfig `yaml:"ingest"`

	// Search configures query answering.
	Search SearchConfig `yaml:"search"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider selects the embedding backend (ollama, openai, azure, gemini).
	Provider string `yaml:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// Dimensions overrides the embedding vector size.
	Dimensions int `yaml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the embedding API endpoint.
	Endpoint string `yaml:"endpoint"`
	// BatchSize is the number of documents per provider call.
	BatchSize int `yaml:"batch_size"`
	// RPS is the sustained provider call rate.
	RPS float64 `yaml:"rps"`
}

// StoreConfig holds vector store settings.
type StoreConfig struct {
	// Backend selects the store implementation: qdrant, memory.
	Backend string `yaml:"backend"`
	// Path is the snapshot file path for the memory backend.
	Path string `yaml:"path"`
	// Qdrant holds Qdrant-specific settings.
	Qdrant QdrantConfig `yaml:"qdrant"`
}

// QdrantConfig holds Qdrant vector store settings.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string `yaml:"host"`
	// Port is the Qdrant gRPC port.
	Port int `yaml:"port"`
	// Collection is the Qdrant collection name.
	Collection string `yaml:"collection"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	// TLS enables TLS for the Qdrant connection.
	TLS bool `yaml:"tls"`
}

// IngestConfig holds ingestion pipeline settings.
type IngestConfig struct {
	// Concurrency is the number of batches processed in parallel.
	Concurrency int `yaml:"concurrency"`
	// LedgerPath is the SQLite fingerprint database path. Set to "disabled"
	// to embed every record on every run.
	LedgerPath string `yaml:"ledger_path"`
}

// SearchConfig holds query answering settings.
type SearchConfig struct {
	// DefaultK is the result count used when the caller does not set one.
	DefaultK int `yaml:"default_k"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"EMBEDDING_BATCH_SIZE", func(c *Config) string { return intStr(c.Embedding.BatchSize) }},
	{"EMBEDDING_RPS", func(c *Config) string { return float64Str(c.Embedding.RPS) }},
	{"STORE_BACKEND", func(c *Config) string { return c.Store.Backend }},
	{"STORE_PATH", func(c *Config) string { return c.Store.Path }},
	{"QDRANT_HOST", func(c *Config) string { return c.Store.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Store.Qdrant.Port) }},
	{"QDRANT_COLLECTION", func(c *Config) string { return c.Store.Qdrant.Collection }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Store.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Store.Qdrant.TLS) }},
	{"INGEST_CONCURRENCY", func(c *Config) string { return intStr(c.Ingest.Concurrency) }},
	{"PROGDEX_LEDGER_DB", func(c *Config) string { return c.Ingest.LedgerPath }},
	{"SEARCH_DEFAULT_K", func(c *Config) string { return intStr(c.Search.DefaultK) }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
}

// Load reads a YAML config file and applies non-empty values as environment
// variables. Existing env vars are never overwritten (env always wins).
// Returns the path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" || yamlVal == "0" || yamlVal == "false" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue // env var already set — do not override
		}
		os.Setenv(m.envKey, yamlVal)
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("PROGDEX_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".progdex", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("progdex.yaml"); err == nil {
		return "progdex.yaml"
	}

	return ""
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return fmt.Sprintf("%d", v)
}

// float64Str converts a float64 to string, returning "" for zero values.
func float64Str(v float64) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}

// Package config loads the cache's YAML configuration, following the
// teacher's own applyDefaults/validate split and os.ExpandEnv
// interpolation.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration document (§6).
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Cache      CacheConfig      `yaml:"cache"`
	Upstream   UpstreamConfig   `yaml:"upstream"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	VectorDB   VectorDBConfig   `yaml:"vector_db"`
	ContentDB  ContentDBConfig  `yaml:"content_db"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ServerConfig controls the HTTP surface (§6).
type ServerConfig struct {
	Port                int           `yaml:"port"`
	ReadTimeout         time.Duration `yaml:"read_timeout"`
	WriteTimeout        time.Duration `yaml:"write_timeout"`
	BackgroundDeadline  time.Duration `yaml:"background_deadline"`
}

// CacheConfig controls CacheDecision (§4.1, §6).
type CacheConfig struct {
	MatchThreshold  float32 `yaml:"match_threshold"`
	CaptureMaxBytes int     `yaml:"capture_max_bytes"`
	DefaultModel    string  `yaml:"default_model"`
}

// UpstreamConfig points at the provider CacheDecision forwards misses to.
type UpstreamConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// EmbeddingConfig points at the Embedder collaborator's transport.
type EmbeddingConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

// VectorDBConfig points at the VectorIndex collaborator's transport (Qdrant).
type VectorDBConfig struct {
	URL        string `yaml:"url"`
	APIKey     string `yaml:"api_key"`
	Collection string `yaml:"collection"`
	Dimension  int    `yaml:"dimension"`
}

// ContentDBConfig points at the ContentStore collaborator's transport (Redis).
type ContentDBConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	Prefix   string `yaml:"prefix"`
}

// MetricsConfig controls the /metrics HTTP surface.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Load reads, expands, parses, defaults, and validates the config at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 120 * time.Second
	}
	if cfg.Server.BackgroundDeadline == 0 {
		cfg.Server.BackgroundDeadline = 120 * time.Second
	}
	if cfg.Cache.MatchThreshold == 0 {
		cfg.Cache.MatchThreshold = 0.9
	}
	if cfg.Cache.CaptureMaxBytes == 0 {
		cfg.Cache.CaptureMaxBytes = 1 << 20 // 1 MiB, §4.6 default
	}
	if cfg.Cache.DefaultModel == "" {
		cfg.Cache.DefaultModel = "gpt-4o"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.VectorDB.Collection == "" {
		cfg.VectorDB.Collection = "semcache"
	}
	if cfg.VectorDB.Dimension == 0 {
		cfg.VectorDB.Dimension = 1536
	}
	if cfg.ContentDB.Prefix == "" {
		cfg.ContentDB.Prefix = "semcache:"
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9090"
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	if cfg.Cache.MatchThreshold < 0 || cfg.Cache.MatchThreshold > 1 {
		return fmt.Errorf("cache.match_threshold must be between 0 and 1, got %f", cfg.Cache.MatchThreshold)
	}
	if cfg.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream.base_url is required")
	}
	if cfg.Embedding.BaseURL == "" {
		return fmt.Errorf("embedding.base_url is required")
	}
	if cfg.VectorDB.URL == "" {
		return fmt.Errorf("vector_db.url is required")
	}
	if cfg.ContentDB.Addr == "" {
		return fmt.Errorf("content_db.addr is required")
	}
	return nil
}

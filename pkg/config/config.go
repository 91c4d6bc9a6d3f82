// Package config handles matric configuration via YAML files and
// environment variables.
//
// Precedence (highest to lowest):
//  1. Environment variables (MATRIC_*)
//  2. Config file (matric.yaml)
//  3. Built-in defaults
//
// Environment variables (all use the MATRIC_ prefix):
//
// Server:
//   - MATRIC_HTTP_ADDRESS="0.0.0.0"
//   - MATRIC_HTTP_PORT=8420
//
// Storage:
//   - MATRIC_DATA_DIR="./data"
//   - MATRIC_SYNC_WRITES=false
//
// Jobs:
//   - MATRIC_JOB_WORKERS=4
//   - MATRIC_JOB_POLL_INTERVAL=500ms
//   - MATRIC_JOB_TIMEOUT=2m
//   - MATRIC_AUTO_PIPELINE=false
//
// Graph:
//   - MATRIC_GRAPH_MIN_LINKS=5
//   - MATRIC_GRAPH_MAX_LINKS=15
//   - MATRIC_GRAPH_OVERFETCH=3
//   - MATRIC_GRAPH_MIN_SIMILARITY=0.70
//   - MATRIC_GRAPH_KEEP_PRUNED=false
//
// Embedding:
//   - MATRIC_EMBEDDING_ENABLED=true
//   - MATRIC_EMBEDDING_API_URL="http://localhost:11434"
//   - MATRIC_EMBEDDING_MODEL="mxbai-embed-large"
//   - MATRIC_EMBEDDING_DIMENSIONS=1024
//   - MATRIC_EMBEDDING_TIMEOUT=30s
//
// Logging:
//   - MATRIC_LOG_LEVEL="info"
//   - MATRIC_LOG_FORMAT="json" or "console"
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all matric configuration, organized into sections.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Jobs      JobsConfig      `yaml:"jobs"`
	Graph     GraphConfig     `yaml:"graph"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// StorageConfig holds persistence settings. An empty DataDir selects
// in-memory storage.
type StorageConfig struct {
	DataDir    string `yaml:"data_dir"`
	SyncWrites bool   `yaml:"sync_writes"`
}

// JobsConfig holds worker pool settings.
type JobsConfig struct {
	Workers      int           `yaml:"workers"`
	PollInterval time.Duration `yaml:"-"`
	JobTimeout   time.Duration `yaml:"-"`

	// AutoPipeline enqueues title_generation and concept_tagging alongside
	// embedding on every note mutation.
	AutoPipeline bool `yaml:"auto_pipeline"`

	// Duration strings from YAML ("500ms", "2m"); parsed into the fields
	// above during Load.
	PollIntervalRaw string `yaml:"poll_interval"`
	JobTimeoutRaw   string `yaml:"job_timeout"`
}

// GraphConfig holds linking engine tunables.
type GraphConfig struct {
	MinLinks      int     `yaml:"min_links"`
	MaxLinks      int     `yaml:"max_links"`
	Overfetch     int     `yaml:"overfetch"`
	MinSimilarity float64 `yaml:"min_similarity"`
	KeepPruned    bool    `yaml:"keep_pruned"`
}

// EmbeddingConfig holds the embedding provider settings.
type EmbeddingConfig struct {
	Enabled    bool          `yaml:"enabled"`
	APIURL     string        `yaml:"api_url"`
	Model      string        `yaml:"model"`
	Dimensions int           `yaml:"dimensions"`
	Timeout    time.Duration `yaml:"-"`

	TimeoutRaw string `yaml:"timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

// LoadDefaults returns the built-in defaults.
func LoadDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Address: "0.0.0.0",
			Port:    8420,
		},
		Storage: StorageConfig{
			DataDir: "./data",
		},
		Jobs: JobsConfig{
			Workers:      4,
			PollInterval: 500 * time.Millisecond,
			JobTimeout:   2 * time.Minute,
		},
		Graph: GraphConfig{
			MinLinks:      5,
			MaxLinks:      15,
			Overfetch:     3,
			MinSimilarity: 0.70,
		},
		Embedding: EmbeddingConfig{
			Enabled:    true,
			APIURL:     "http://localhost:11434",
			Model:      "mxbai-embed-large",
			Dimensions: 1024,
			Timeout:    30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the effective configuration: defaults, overlaid by the YAML
// file at path (missing file is not an error), overlaid by MATRIC_* env
// variables.
func Load(path string) (*Config, error) {
	config := LoadDefaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := config.parseDurations(); err != nil {
		return nil, err
	}

	applyEnvVars(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// FindConfigFile returns the first existing config file from the standard
// locations, or "" if none exists.
func FindConfigFile() string {
	candidates := []string{"matric.yaml", "config.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(home, ".matric", "config.yaml"),
			filepath.Join(home, ".config", "matric", "config.yaml"),
		)
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// parseDurations resolves the YAML duration strings. Empty means "keep the
// default already in place".
func (c *Config) parseDurations() error {
	for _, f := range []struct {
		raw  string
		dest *time.Duration
		name string
	}{
		{c.Jobs.PollIntervalRaw, &c.Jobs.PollInterval, "jobs.poll_interval"},
		{c.Jobs.JobTimeoutRaw, &c.Jobs.JobTimeout, "jobs.job_timeout"},
		{c.Embedding.TimeoutRaw, &c.Embedding.Timeout, "embedding.timeout"},
	} {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", f.name, err)
		}
		*f.dest = d
	}
	return nil
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Jobs.Workers <= 0 {
		return fmt.Errorf("jobs.workers must be positive, got %d", c.Jobs.Workers)
	}
	if c.Jobs.PollInterval <= 0 {
		return fmt.Errorf("jobs.poll_interval must be positive, got %s", c.Jobs.PollInterval)
	}
	if c.Jobs.JobTimeout <= 0 {
		return fmt.Errorf("jobs.job_timeout must be positive, got %s", c.Jobs.JobTimeout)
	}
	if c.Graph.MinLinks <= 0 || c.Graph.MaxLinks < c.Graph.MinLinks {
		return fmt.Errorf("invalid graph link bounds [%d, %d]", c.Graph.MinLinks, c.Graph.MaxLinks)
	}
	if c.Graph.Overfetch < 1 {
		return fmt.Errorf("graph.overfetch must be at least 1, got %d", c.Graph.Overfetch)
	}
	if c.Graph.MinSimilarity < 0 || c.Graph.MinSimilarity > 1 {
		return fmt.Errorf("graph.min_similarity must be in [0, 1], got %v", c.Graph.MinSimilarity)
	}
	if c.Embedding.Enabled {
		if c.Embedding.APIURL == "" {
			return fmt.Errorf("embedding.api_url required when embedding is enabled")
		}
		if c.Embedding.Dimensions <= 0 {
			return fmt.Errorf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions)
		}
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

func applyEnvVars(config *Config) {
	config.Server.Address = getEnv("MATRIC_HTTP_ADDRESS", config.Server.Address)
	config.Server.Port = getEnvInt("MATRIC_HTTP_PORT", config.Server.Port)

	config.Storage.DataDir = getEnv("MATRIC_DATA_DIR", config.Storage.DataDir)
	config.Storage.SyncWrites = getEnvBool("MATRIC_SYNC_WRITES", config.Storage.SyncWrites)

	config.Jobs.Workers = getEnvInt("MATRIC_JOB_WORKERS", config.Jobs.Workers)
	config.Jobs.PollInterval = getEnvDuration("MATRIC_JOB_POLL_INTERVAL", config.Jobs.PollInterval)
	config.Jobs.JobTimeout = getEnvDuration("MATRIC_JOB_TIMEOUT", config.Jobs.JobTimeout)
	config.Jobs.AutoPipeline = getEnvBool("MATRIC_AUTO_PIPELINE", config.Jobs.AutoPipeline)

	config.Graph.MinLinks = getEnvInt("MATRIC_GRAPH_MIN_LINKS", config.Graph.MinLinks)
	config.Graph.MaxLinks = getEnvInt("MATRIC_GRAPH_MAX_LINKS", config.Graph.MaxLinks)
	config.Graph.Overfetch = getEnvInt("MATRIC_GRAPH_OVERFETCH", config.Graph.Overfetch)
	config.Graph.MinSimilarity = getEnvFloat("MATRIC_GRAPH_MIN_SIMILARITY", config.Graph.MinSimilarity)
	config.Graph.KeepPruned = getEnvBool("MATRIC_GRAPH_KEEP_PRUNED", config.Graph.KeepPruned)

	config.Embedding.Enabled = getEnvBool("MATRIC_EMBEDDING_ENABLED", config.Embedding.Enabled)
	config.Embedding.APIURL = getEnv("MATRIC_EMBEDDING_API_URL", config.Embedding.APIURL)
	config.Embedding.Model = getEnv("MATRIC_EMBEDDING_MODEL", config.Embedding.Model)
	config.Embedding.Dimensions = getEnvInt("MATRIC_EMBEDDING_DIMENSIONS", config.Embedding.Dimensions)
	config.Embedding.Timeout = getEnvDuration("MATRIC_EMBEDDING_TIMEOUT", config.Embedding.Timeout)

	config.Logging.Level = getEnv("MATRIC_LOG_LEVEL", config.Logging.Level)
	config.Logging.Format = getEnv("MATRIC_LOG_FORMAT", config.Logging.Format)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

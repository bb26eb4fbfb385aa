// Package config loads Freeform engine configuration.
//
// Configuration can be loaded from:
//   - Environment variables (recommended for Docker/K8s)
//   - YAML configuration file
//   - Programmatic defaults
//
// Environment variables take precedence over file values, so a deployment
// can ship a base YAML file and override individual knobs per environment.
//
// Environment Variables:
//
//	FREEFORM_DIMENSION            - Embedding vector dimension (default: 1024)
//	FREEFORM_CAPACITY             - Maximum stored concepts (default: 10000)
//	FREEFORM_LINK_TOP_K           - Auto-link candidate count (default: 5)
//	FREEFORM_LINK_THRESHOLD       - Auto-link similarity threshold (default: 0.3)
//	FREEFORM_RECALL_DECAY         - Activation decay per hop (default: 0.8)
//	FREEFORM_RECALL_THRESHOLD     - Minimum propagated contribution (default: 0.2)
//	FREEFORM_EMBEDDING_PROVIDER   - "ollama", "openai" or "hash"
//	FREEFORM_EMBEDDING_MODEL      - Embedding model name
//	FREEFORM_EMBEDDING_API_URL    - Embedding API base URL
//	FREEFORM_EMBEDDING_API_KEY    - API key for hosted providers
//	FREEFORM_SNAPSHOT_DIR         - Snapshot archive directory
//	FREEFORM_SNAPSHOT_INTERVAL    - Cron spec for periodic snapshots
//	FREEFORM_SNAPSHOT_PASSPHRASE  - At-rest encryption passphrase ("" = off)
//	FREEFORM_POOL_ENABLED         - Object pooling on hot paths (default: true)
//
// Example Docker Usage:
//
//	docker run -e FREEFORM_CAPACITY=50000 \
//	           -e FREEFORM_EMBEDDING_PROVIDER=ollama \
//	           -v ./data:/data \
//	           freeform
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/madmoo-Pi/Freeform-ai/pkg/embed"
)

// Config holds all Freeform configuration.
//
// Use Default() for programmatic defaults, Load() for a YAML file, or
// FromEnvOrFile() for the full file-then-env resolution used by the CLI.
type Config struct {
	// Engine settings: vector dimension and concept capacity.
	Engine EngineConfig `yaml:"engine"`

	// Linker settings for automatic similarity linking on insert.
	Linker LinkerConfig `yaml:"linker"`

	// Recall settings for spreading activation.
	Recall RecallConfig `yaml:"recall"`

	// Evict settings for importance scoring.
	Evict EvictConfig `yaml:"evict"`

	// Embedding provider settings.
	Embedding embed.Config `yaml:"embedding"`

	// Snapshot archive settings.
	Snapshot SnapshotConfig `yaml:"snapshot"`

	// Pool settings for hot-path allocation reuse.
	Pool PoolConfig `yaml:"pool"`
}

// EngineConfig holds core engine settings.
type EngineConfig struct {
	// Dimension is the embedding vector length. All stored vectors
	// must match it exactly.
	Dimension int `yaml:"dimension"`
	// Capacity is the maximum number of stored concepts before
	// eviction runs. Zero means unbounded.
	Capacity int `yaml:"capacity"`
}

// LinkerConfig holds automatic-linking settings.
type LinkerConfig struct {
	// TopK is how many nearest concepts each insert links to.
	TopK int `yaml:"top_k"`
	// Threshold is the minimum cosine similarity for a link.
	Threshold float64 `yaml:"threshold"`
	// Workers caps the parallel scan fan-out. Zero means GOMAXPROCS.
	Workers int `yaml:"workers"`
	// MinParallel is the store size at which scans go parallel.
	MinParallel int `yaml:"min_parallel"`
}

// RecallConfig holds spreading-activation settings.
type RecallConfig struct {
	// Decay multiplies each hop's contribution.
	Decay float64 `yaml:"decay"`
	// Threshold discards contributions at or below this value.
	Threshold float64 `yaml:"threshold"`
}

// EvictConfig holds importance-score weights.
// The three weights should sum to 1.0.
type EvictConfig struct {
	AccessWeight   float64 `yaml:"access_weight"`
	StrengthWeight float64 `yaml:"strength_weight"`
	RecencyWeight  float64 `yaml:"recency_weight"`
}

// SnapshotConfig holds snapshot archive settings.
type SnapshotConfig struct {
	// Dir is the BadgerDB directory for the archive.
	Dir string `yaml:"dir"`
	// Interval is a cron spec for periodic snapshots ("" = disabled).
	Interval string `yaml:"interval"`
	// Passphrase enables at-rest encryption when non-empty.
	// Prefer setting it via FREEFORM_SNAPSHOT_PASSPHRASE.
	Passphrase string `yaml:"passphrase"`
	// SyncWrites forces fsync after each archive write.
	SyncWrites bool `yaml:"sync_writes"`
}

// PoolConfig holds object-pool settings.
type PoolConfig struct {
	Enabled bool `yaml:"enabled"`
	MaxSize int  `yaml:"max_size"`
}

// Default returns a configuration with production defaults.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			Dimension: 1024,
			Capacity:  10000,
		},
		Linker: LinkerConfig{
			TopK:        5,
			Threshold:   0.3,
			Workers:     0,
			MinParallel: 1000,
		},
		Recall: RecallConfig{
			Decay:     0.8,
			Threshold: 0.2,
		},
		Evict: EvictConfig{
			AccessWeight:   0.4,
			StrengthWeight: 0.3,
			RecencyWeight:  0.3,
		},
		Embedding: *embed.DefaultOllamaConfig(),
		Snapshot: SnapshotConfig{
			Dir:        "./data/snapshots",
			Interval:   "",
			SyncWrites: false,
		},
		Pool: PoolConfig{
			Enabled: true,
			MaxSize: 4096,
		},
	}
}

// Load reads configuration from a YAML file, applied on top of defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// FromEnvOrFile resolves configuration the way the CLI does:
// defaults, then the YAML file (if path is non-empty), then
// FREEFORM_* environment overrides.
func FromEnvOrFile(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		loaded, err := Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg.applyEnv()
	return cfg, nil
}

// FromEnv returns defaults with FREEFORM_* environment overrides applied.
func FromEnv() *Config {
	cfg := Default()
	cfg.applyEnv()
	return cfg
}

func (c *Config) applyEnv() {
	c.Engine.Dimension = getEnvInt("FREEFORM_DIMENSION", c.Engine.Dimension)
	c.Engine.Capacity = getEnvInt("FREEFORM_CAPACITY", c.Engine.Capacity)

	c.Linker.TopK = getEnvInt("FREEFORM_LINK_TOP_K", c.Linker.TopK)
	c.Linker.Threshold = getEnvFloat("FREEFORM_LINK_THRESHOLD", c.Linker.Threshold)
	c.Linker.Workers = getEnvInt("FREEFORM_LINK_WORKERS", c.Linker.Workers)
	c.Linker.MinParallel = getEnvInt("FREEFORM_LINK_MIN_PARALLEL", c.Linker.MinParallel)

	c.Recall.Decay = getEnvFloat("FREEFORM_RECALL_DECAY", c.Recall.Decay)
	c.Recall.Threshold = getEnvFloat("FREEFORM_RECALL_THRESHOLD", c.Recall.Threshold)

	c.Evict.AccessWeight = getEnvFloat("FREEFORM_EVICT_ACCESS_WEIGHT", c.Evict.AccessWeight)
	c.Evict.StrengthWeight = getEnvFloat("FREEFORM_EVICT_STRENGTH_WEIGHT", c.Evict.StrengthWeight)
	c.Evict.RecencyWeight = getEnvFloat("FREEFORM_EVICT_RECENCY_WEIGHT", c.Evict.RecencyWeight)

	c.Embedding.Provider = getEnv("FREEFORM_EMBEDDING_PROVIDER", c.Embedding.Provider)
	c.Embedding.Model = getEnv("FREEFORM_EMBEDDING_MODEL", c.Embedding.Model)
	c.Embedding.APIURL = getEnv("FREEFORM_EMBEDDING_API_URL", c.Embedding.APIURL)
	c.Embedding.APIKey = getEnv("FREEFORM_EMBEDDING_API_KEY", c.Embedding.APIKey)
	c.Embedding.Dimensions = getEnvInt("FREEFORM_EMBEDDING_DIMENSIONS", c.Embedding.Dimensions)

	c.Snapshot.Dir = getEnv("FREEFORM_SNAPSHOT_DIR", c.Snapshot.Dir)
	c.Snapshot.Interval = getEnv("FREEFORM_SNAPSHOT_INTERVAL", c.Snapshot.Interval)
	c.Snapshot.Passphrase = getEnv("FREEFORM_SNAPSHOT_PASSPHRASE", c.Snapshot.Passphrase)
	c.Snapshot.SyncWrites = getEnvBool("FREEFORM_SNAPSHOT_SYNC_WRITES", c.Snapshot.SyncWrites)

	c.Pool.Enabled = getEnvBool("FREEFORM_POOL_ENABLED", c.Pool.Enabled)
	c.Pool.MaxSize = getEnvInt("FREEFORM_POOL_MAX_SIZE", c.Pool.MaxSize)
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	if c.Engine.Dimension <= 0 {
		return fmt.Errorf("config: invalid dimension: %d", c.Engine.Dimension)
	}
	if c.Engine.Capacity < 0 {
		return fmt.Errorf("config: invalid capacity: %d", c.Engine.Capacity)
	}
	if c.Linker.TopK < 0 {
		return fmt.Errorf("config: invalid link top_k: %d", c.Linker.TopK)
	}
	if c.Linker.Threshold < 0 || c.Linker.Threshold > 1 {
		return fmt.Errorf("config: link threshold out of [0,1]: %g", c.Linker.Threshold)
	}
	if c.Recall.Decay <= 0 || c.Recall.Decay > 1 {
		return fmt.Errorf("config: recall decay out of (0,1]: %g", c.Recall.Decay)
	}
	if c.Recall.Threshold < 0 || c.Recall.Threshold >= 1 {
		return fmt.Errorf("config: recall threshold out of [0,1): %g", c.Recall.Threshold)
	}
	for name, w := range map[string]float64{
		"access_weight":   c.Evict.AccessWeight,
		"strength_weight": c.Evict.StrengthWeight,
		"recency_weight":  c.Evict.RecencyWeight,
	} {
		if w < 0 {
			return fmt.Errorf("config: negative evict %s: %g", name, w)
		}
	}
	if c.Embedding.Provider != "hash" && c.Embedding.Dimensions != c.Engine.Dimension {
		return fmt.Errorf("config: embedding dimensions %d do not match engine dimension %d",
			c.Embedding.Dimensions, c.Engine.Dimension)
	}
	return nil
}

// String returns a safe string representation of the Config.
//
// Sensitive values like API keys and passphrases are NOT included,
// making this safe for logging.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Dim: %d, Capacity: %d, Linker: k=%d t=%g, Recall: d=%g t=%g, Embed: %s/%s, Snapshots: %s}",
		c.Engine.Dimension, c.Engine.Capacity,
		c.Linker.TopK, c.Linker.Threshold,
		c.Recall.Decay, c.Recall.Threshold,
		c.Embedding.Provider, c.Embedding.Model,
		c.Snapshot.Dir,
	)
}

// Helper functions for environment variable parsing

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
		val = strings.ToLower(val)
		return val == "true" || val == "1" || val == "yes" || val == "on"
	}
	return defaultVal
}

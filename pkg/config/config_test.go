package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 1024, cfg.Engine.Dimension)
	assert.Equal(t, 10000, cfg.Engine.Capacity)
	assert.Equal(t, 5, cfg.Linker.TopK)
	assert.Equal(t, 0.3, cfg.Linker.Threshold)
	assert.Equal(t, 0.8, cfg.Recall.Decay)
	assert.Equal(t, 0.2, cfg.Recall.Threshold)
	assert.Equal(t, 0.4, cfg.Evict.AccessWeight)
	assert.Equal(t, "ollama", cfg.Embedding.Provider)

	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	t.Run("file values override defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "freeform.yaml")
		content := `
engine:
  dimension: 64
  capacity: 500
linker:
  top_k: 3
embedding:
  provider: hash
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, 64, cfg.Engine.Dimension)
		assert.Equal(t, 500, cfg.Engine.Capacity)
		assert.Equal(t, 3, cfg.Linker.TopK)
		assert.Equal(t, "hash", cfg.Embedding.Provider)
		// Untouched values keep their defaults.
		assert.Equal(t, 0.8, cfg.Recall.Decay)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load("/nonexistent/freeform.yaml")
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("engine: ["), 0644))

		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestFromEnv(t *testing.T) {
	t.Run("env overrides defaults", func(t *testing.T) {
		t.Setenv("FREEFORM_DIMENSION", "128")
		t.Setenv("FREEFORM_CAPACITY", "42")
		t.Setenv("FREEFORM_RECALL_DECAY", "0.5")
		t.Setenv("FREEFORM_POOL_ENABLED", "false")
		t.Setenv("FREEFORM_EMBEDDING_PROVIDER", "hash")

		cfg := FromEnv()

		assert.Equal(t, 128, cfg.Engine.Dimension)
		assert.Equal(t, 42, cfg.Engine.Capacity)
		assert.Equal(t, 0.5, cfg.Recall.Decay)
		assert.False(t, cfg.Pool.Enabled)
		assert.Equal(t, "hash", cfg.Embedding.Provider)
	})

	t.Run("unparseable values keep defaults", func(t *testing.T) {
		t.Setenv("FREEFORM_DIMENSION", "not-a-number")

		cfg := FromEnv()
		assert.Equal(t, 1024, cfg.Engine.Dimension)
	})

	t.Run("env wins over file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "freeform.yaml")
		require.NoError(t, os.WriteFile(path, []byte("engine:\n  capacity: 500\n"), 0644))
		t.Setenv("FREEFORM_CAPACITY", "900")

		cfg, err := FromEnvOrFile(path)
		require.NoError(t, err)
		assert.Equal(t, 900, cfg.Engine.Capacity)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero dimension", func(c *Config) { c.Engine.Dimension = 0 }},
		{"negative capacity", func(c *Config) { c.Engine.Capacity = -1 }},
		{"negative top k", func(c *Config) { c.Linker.TopK = -1 }},
		{"link threshold above one", func(c *Config) { c.Linker.Threshold = 1.5 }},
		{"zero decay", func(c *Config) { c.Recall.Decay = 0 }},
		{"recall threshold of one", func(c *Config) { c.Recall.Threshold = 1.0 }},
		{"negative evict weight", func(c *Config) { c.Evict.RecencyWeight = -0.1 }},
		{"embedding dimension mismatch", func(c *Config) { c.Embedding.Dimensions = 99 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	t.Run("hash provider skips dimension check", func(t *testing.T) {
		cfg := Default()
		cfg.Embedding.Provider = "hash"
		cfg.Embedding.Dimensions = 0
		assert.NoError(t, cfg.Validate())
	})
}

func TestString(t *testing.T) {
	cfg := Default()
	cfg.Embedding.APIKey = "secret-key"
	cfg.Snapshot.Passphrase = "secret-phrase"

	out := cfg.String()
	assert.NotContains(t, out, "secret-key")
	assert.NotContains(t, out, "secret-phrase")
	assert.Contains(t, out, "ollama")
}

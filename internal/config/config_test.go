package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestLoad_AppliesDefaultsForMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm:\n  model: custom\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "custom", cfg.LLM.Model)
	// Untouched fields keep their defaults.
	assert.Equal(t, "http://localhost:1234/v1", cfg.LLM.BaseURL)
	assert.Equal(t, 0.9, cfg.Research.HardSizeRatio)
	assert.Equal(t, 10, cfg.Search.MaxResults)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cfg.yaml")

	cfg := Default()
	cfg.Name = "round"
	cfg.LLM.Model = "qwen"
	cfg.Search.AllowedDomains = []string{"example.com"}
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "round", loaded.Name)
	assert.Equal(t, "qwen", loaded.LLM.Model)
	assert.Equal(t, []string{"example.com"}, loaded.Search.AllowedDomains)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SCOUT_API_KEY", "env-key")
	t.Setenv("SCOUT_MODEL", "env-model")
	t.Setenv("SCOUT_LOG_LEVEL", "debug")

	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm:\n  model: file-model\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.LLM.APIKey)
	assert.Equal(t, "env-model", cfg.LLM.Model)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidate_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty base url", func(c *Config) { c.LLM.BaseURL = "" }},
		{"zero context tokens", func(c *Config) { c.LLM.ContextTokens = 0 }},
		{"hard ratio above one", func(c *Config) { c.Research.HardSizeRatio = 1.5 }},
		{"soft above hard", func(c *Config) {
			c.Research.SoftSizeRatio = 0.95
			c.Research.HardSizeRatio = 0.9
		}},
		{"zero concurrency", func(c *Config) { c.Search.ConcurrentFetch = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDuration(t *testing.T) {
	assert.Equal(t, 3*time.Second, Duration("3s", time.Second))
	assert.Equal(t, time.Second, Duration("", time.Second))
	assert.Equal(t, time.Second, Duration("garbage", time.Second))
	assert.Equal(t, time.Second, Duration("-5s", time.Second))
}

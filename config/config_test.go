package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.App.PassInterval())
	assert.Equal(t, float32(0.9), cfg.Dedup.HighThreshold)
	assert.Equal(t, float32(0.75), cfg.Dedup.LowThreshold)
	assert.Equal(t, 5, cfg.Dedup.TopK)
	assert.Equal(t, 72*time.Hour, cfg.Dedup.RetentionHorizon())
	assert.Equal(t, "accept", cfg.Dedup.AmbiguousPolicy)
	assert.Equal(t, int64(2048), cfg.Models.CapacityMB)
	assert.Equal(t, 15*time.Minute, cfg.Models.IdleEviction())
	assert.Equal(t, []string{"en", "ru", "de", "fr"}, cfg.Translation.TargetLanguages)
	assert.Equal(t, "en", cfg.Translation.Pivots["ru-de"])
	assert.Equal(t, 24*time.Hour, cfg.Translation.CacheTTL())
	assert.Equal(t, 10, cfg.Ingest.MaxConcurrentFetches)
	assert.Equal(t, 5, cfg.Ingest.MaxItemsPerFeed)
	assert.Equal(t, "firefeed.accepted", cfg.Kafka.Topic)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
app:
  pass_interval_seconds: 60
dedup:
  high_threshold: 0.95
  low_threshold: 0.8
  ambiguous_policy: drop
models:
  capacity_mb: 4096
translation:
  target_languages: [en, de]
feeds:
  - url: https://example.com/rss
    source: example
    language: en
  - url: https://other.example.com/rss
    source: other
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, time.Minute, cfg.App.PassInterval())
	assert.Equal(t, float32(0.95), cfg.Dedup.HighThreshold)
	assert.Equal(t, "drop", cfg.Dedup.AmbiguousPolicy)
	assert.Equal(t, int64(4096), cfg.Models.CapacityMB)
	assert.Equal(t, []string{"en", "de"}, cfg.Translation.TargetLanguages)

	// Untouched sections keep their defaults.
	assert.Equal(t, 5, cfg.Dedup.TopK)
	assert.Equal(t, 30*time.Second, cfg.Ingest.FetchTimeout())

	require.Len(t, cfg.Feeds, 2)
	assert.Equal(t, "example", cfg.Feeds[0].Source)
	assert.Equal(t, "en", cfg.Feeds[0].Language)
	assert.Equal(t, "", cfg.Feeds[1].Language)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("FIREFEED_EMBEDDING_URL", "http://tei:9090")
	t.Setenv("FIREFEED_OLLAMA_URL", "http://ollama:11434")
	t.Setenv("FIREFEED_PASS_INTERVAL_SECONDS", "45")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://tei:9090", cfg.Embedding.BaseURL)
	assert.Equal(t, "http://ollama:11434", cfg.Models.OllamaURL)
	assert.Equal(t, 45*time.Second, cfg.App.PassInterval())
}

func TestLoadRejectsInvertedThresholds(t *testing.T) {
	path := writeConfig(t, `
dedup:
  high_threshold: 0.7
  low_threshold: 0.8
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "threshold")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

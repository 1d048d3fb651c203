package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Feed describes one configured RSS source.
type Feed struct {
	URL      string `yaml:"url"`
	Source   string `yaml:"source"`
	Language string `yaml:"language"`
}

type AppConfig struct {
	PassIntervalSeconds int    `yaml:"pass_interval_seconds"`
	DataDir             string `yaml:"data_dir"`
}

func (c AppConfig) PassInterval() time.Duration {
	return time.Duration(c.PassIntervalSeconds) * time.Second
}

type EmbeddingConfig struct {
	BaseURL       string `yaml:"base_url"`
	TokenizerPath string `yaml:"tokenizer_path"`
	MaxTokens     int    `yaml:"max_tokens"`
	BodyHeadChars int    `yaml:"body_head_chars"`
}

type DedupConfig struct {
	HighThreshold         float32 `yaml:"high_threshold"`
	LowThreshold          float32 `yaml:"low_threshold"`
	TopK                  int     `yaml:"top_k"`
	RetentionHorizonHours int     `yaml:"retention_horizon_hours"`
	MaxEntries            int     `yaml:"max_entries"`
	AmbiguousPolicy       string  `yaml:"ambiguous_policy"`
}

func (c DedupConfig) RetentionHorizon() time.Duration {
	return time.Duration(c.RetentionHorizonHours) * time.Hour
}

type ModelsConfig struct {
	OllamaURL            string            `yaml:"ollama_url"`
	Pairs                map[string]string `yaml:"pairs"`
	CapacityMB           int64             `yaml:"capacity_mb"`
	DefaultFootprintMB   int64             `yaml:"default_footprint_mb"`
	IdleEvictionSeconds  int               `yaml:"idle_eviction_seconds"`
	SweepIntervalSeconds int               `yaml:"sweep_interval_seconds"`
}

func (c ModelsConfig) IdleEviction() time.Duration {
	return time.Duration(c.IdleEvictionSeconds) * time.Second
}

func (c ModelsConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

type TranslationConfig struct {
	TargetLanguages         []string          `yaml:"target_languages"`
	MaxConcurrentGroups     int64             `yaml:"max_concurrent_groups"`
	InferenceTimeoutSeconds int               `yaml:"inference_timeout_seconds"`
	Pivots                  map[string]string `yaml:"pivots"`
	CacheTTLSeconds         int               `yaml:"cache_ttl_seconds"`
	CacheMaxEntries         int               `yaml:"cache_max_entries"`
}

func (c TranslationConfig) InferenceTimeout() time.Duration {
	return time.Duration(c.InferenceTimeoutSeconds) * time.Second
}

func (c TranslationConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

type IngestConfig struct {
	MaxConcurrentFetches int     `yaml:"max_concurrent_fetches"`
	FetchTimeoutSeconds  int     `yaml:"fetch_timeout_seconds"`
	MaxItemsPerFeed      int     `yaml:"max_items_per_feed"`
	ProxyURL             string  `yaml:"proxy_url"`
	FeedRatePerSecond    float64 `yaml:"feed_rate_per_second"`
}

func (c IngestConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

type StorageConfig struct {
	BoltPath string `yaml:"bolt_path"`
}

type KafkaConfig struct {
	Enabled bool   `yaml:"enabled"`
	Broker  string `yaml:"broker"`
	Topic   string `yaml:"topic"`
}

type Config struct {
	App         AppConfig         `yaml:"app"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Dedup       DedupConfig       `yaml:"dedup"`
	Models      ModelsConfig      `yaml:"models"`
	Translation TranslationConfig `yaml:"translation"`
	Ingest      IngestConfig      `yaml:"ingest"`
	Storage     StorageConfig     `yaml:"storage"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Feeds       []Feed            `yaml:"feeds"`
}

// Load reads YAML configuration from path (optional), applies environment
// overrides and fills in defaults. An empty path yields the default config.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()

	if cfg.Dedup.LowThreshold >= cfg.Dedup.HighThreshold {
		return nil, fmt.Errorf("dedup low threshold %.2f must be below high threshold %.2f",
			cfg.Dedup.LowThreshold, cfg.Dedup.HighThreshold)
	}

	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("FIREFEED_EMBEDDING_URL"); v != "" {
		c.Embedding.BaseURL = v
	}
	if v := os.Getenv("FIREFEED_OLLAMA_URL"); v != "" {
		c.Models.OllamaURL = v
	}
	if v := os.Getenv("FIREFEED_KAFKA_BROKER"); v != "" {
		c.Kafka.Broker = v
	}
	if v := os.Getenv("FIREFEED_BOLT_PATH"); v != "" {
		c.Storage.BoltPath = v
	}
	if v := os.Getenv("FIREFEED_PROXY_URL"); v != "" {
		c.Ingest.ProxyURL = v
	}
	if v := os.Getenv("FIREFEED_PASS_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.App.PassIntervalSeconds = n
		}
	}
}

func (c *Config) applyDefaults() {
	d := defaultConfig()
	if c.App.PassIntervalSeconds == 0 {
		c.App.PassIntervalSeconds = d.App.PassIntervalSeconds
	}
	if c.App.DataDir == "" {
		c.App.DataDir = d.App.DataDir
	}
	if c.Embedding.BaseURL == "" {
		c.Embedding.BaseURL = d.Embedding.BaseURL
	}
	if c.Embedding.MaxTokens == 0 {
		c.Embedding.MaxTokens = d.Embedding.MaxTokens
	}
	if c.Embedding.BodyHeadChars == 0 {
		c.Embedding.BodyHeadChars = d.Embedding.BodyHeadChars
	}
	if c.Dedup.HighThreshold == 0 {
		c.Dedup.HighThreshold = d.Dedup.HighThreshold
	}
	if c.Dedup.LowThreshold == 0 {
		c.Dedup.LowThreshold = d.Dedup.LowThreshold
	}
	if c.Dedup.TopK == 0 {
		c.Dedup.TopK = d.Dedup.TopK
	}
	if c.Dedup.RetentionHorizonHours == 0 {
		c.Dedup.RetentionHorizonHours = d.Dedup.RetentionHorizonHours
	}
	if c.Dedup.MaxEntries == 0 {
		c.Dedup.MaxEntries = d.Dedup.MaxEntries
	}
	if c.Dedup.AmbiguousPolicy == "" {
		c.Dedup.AmbiguousPolicy = d.Dedup.AmbiguousPolicy
	}
	if c.Models.OllamaURL == "" {
		c.Models.OllamaURL = d.Models.OllamaURL
	}
	if c.Models.CapacityMB == 0 {
		c.Models.CapacityMB = d.Models.CapacityMB
	}
	if c.Models.DefaultFootprintMB == 0 {
		c.Models.DefaultFootprintMB = d.Models.DefaultFootprintMB
	}
	if c.Models.IdleEvictionSeconds == 0 {
		c.Models.IdleEvictionSeconds = d.Models.IdleEvictionSeconds
	}
	if c.Models.SweepIntervalSeconds == 0 {
		c.Models.SweepIntervalSeconds = d.Models.SweepIntervalSeconds
	}
	if len(c.Translation.TargetLanguages) == 0 {
		c.Translation.TargetLanguages = d.Translation.TargetLanguages
	}
	if c.Translation.MaxConcurrentGroups == 0 {
		c.Translation.MaxConcurrentGroups = d.Translation.MaxConcurrentGroups
	}
	if c.Translation.InferenceTimeoutSeconds == 0 {
		c.Translation.InferenceTimeoutSeconds = d.Translation.InferenceTimeoutSeconds
	}
	if c.Translation.Pivots == nil {
		c.Translation.Pivots = d.Translation.Pivots
	}
	if c.Translation.CacheTTLSeconds == 0 {
		c.Translation.CacheTTLSeconds = d.Translation.CacheTTLSeconds
	}
	if c.Translation.CacheMaxEntries == 0 {
		c.Translation.CacheMaxEntries = d.Translation.CacheMaxEntries
	}
	if c.Ingest.MaxConcurrentFetches == 0 {
		c.Ingest.MaxConcurrentFetches = d.Ingest.MaxConcurrentFetches
	}
	if c.Ingest.FetchTimeoutSeconds == 0 {
		c.Ingest.FetchTimeoutSeconds = d.Ingest.FetchTimeoutSeconds
	}
	if c.Ingest.MaxItemsPerFeed == 0 {
		c.Ingest.MaxItemsPerFeed = d.Ingest.MaxItemsPerFeed
	}
	if c.Ingest.FeedRatePerSecond == 0 {
		c.Ingest.FeedRatePerSecond = d.Ingest.FeedRatePerSecond
	}
	if c.Storage.BoltPath == "" {
		c.Storage.BoltPath = d.Storage.BoltPath
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = d.Kafka.Topic
	}
}

func defaultConfig() *Config {
	return &Config{
		App: AppConfig{
			PassIntervalSeconds: 300,
			DataDir:             "./data",
		},
		Embedding: EmbeddingConfig{
			BaseURL:       "http://localhost:8080",
			MaxTokens:     256,
			BodyHeadChars: 500,
		},
		Dedup: DedupConfig{
			HighThreshold:         0.9,
			LowThreshold:          0.75,
			TopK:                  5,
			RetentionHorizonHours: 72,
			MaxEntries:            10000,
			AmbiguousPolicy:       "accept",
		},
		Models: ModelsConfig{
			OllamaURL:            "http://localhost:11434",
			CapacityMB:           2048,
			DefaultFootprintMB:   512,
			IdleEvictionSeconds:  900,
			SweepIntervalSeconds: 60,
		},
		Translation: TranslationConfig{
			TargetLanguages:         []string{"en", "ru", "de", "fr"},
			MaxConcurrentGroups:     2,
			InferenceTimeoutSeconds: 120,
			Pivots:                  map[string]string{"ru-de": "en"},
			CacheTTLSeconds:         86400,
			CacheMaxEntries:         5000,
		},
		Ingest: IngestConfig{
			MaxConcurrentFetches: 10,
			FetchTimeoutSeconds:  30,
			MaxItemsPerFeed:      5,
			FeedRatePerSecond:    1,
		},
		Storage: StorageConfig{
			BoltPath: "./data/firefeed.db",
		},
		Kafka: KafkaConfig{
			Topic: "firefeed.accepted",
		},
	}
}

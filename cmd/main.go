package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"firefeed/config"
	"firefeed/dedup"
	"firefeed/feed"
	"firefeed/ingest"
	"firefeed/pkg/boltstore"
	"firefeed/pkg/embedding"
	"firefeed/pkg/kafka"
	"firefeed/translate"

	"go.uber.org/zap"

	"time"
)

func main() {
	// =========
	// Config
	// =========
	cfg, err := config.Load(os.Getenv("FIREFEED_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// =========
	// Logging
	// =========
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// =========
	// Embedding
	// =========
	embClient := embedding.NewTEIClient(cfg.Embedding.BaseURL)
	engine, err := dedup.NewEngine(embClient, dedup.EngineConfig{
		TokenizerPath: cfg.Embedding.TokenizerPath,
		MaxTokens:     cfg.Embedding.MaxTokens,
		BodyHeadChars: cfg.Embedding.BodyHeadChars,
	}, logger)
	if err != nil {
		logger.Fatal("failed to create embedding engine", zap.Error(err))
	}
	defer engine.Close()

	// =========
	// Dedup
	// =========
	index := dedup.NewIndex(dedup.IndexConfig{
		TopK:             cfg.Dedup.TopK,
		RetentionHorizon: cfg.Dedup.RetentionHorizon(),
		MaxEntries:       cfg.Dedup.MaxEntries,
	}, logger)
	detector := dedup.NewDetector(index, dedup.DetectorConfig{
		HighThreshold:   cfg.Dedup.HighThreshold,
		LowThreshold:    cfg.Dedup.LowThreshold,
		AmbiguousPolicy: dedup.AmbiguousPolicy(cfg.Dedup.AmbiguousPolicy),
	}, logger)

	// =========
	// Translation
	// =========
	backend := translate.NewOllamaBackend(translate.OllamaBackendConfig{
		ServerURL:          cfg.Models.OllamaURL,
		Pairs:              cfg.Models.Pairs,
		DefaultFootprintMB: cfg.Models.DefaultFootprintMB,
	}, logger)
	manager := translate.NewManager(backend, translate.ManagerConfig{
		CapacityMB:    cfg.Models.CapacityMB,
		IdleEviction:  cfg.Models.IdleEviction(),
		SweepInterval: cfg.Models.SweepInterval(),
	}, logger)
	go manager.Run(ctx)
	defer manager.Close()

	cache := translate.NewCache(cfg.Translation.CacheMaxEntries, cfg.Translation.CacheTTL(), logger)
	service := translate.NewService(cache, manager, translate.ServiceConfig{
		MaxConcurrentGroups: cfg.Translation.MaxConcurrentGroups,
		InferenceTimeout:    cfg.Translation.InferenceTimeout(),
		Pivots:              cfg.Translation.Pivots,
	}, logger)

	// =========
	// Collaborators
	// =========
	source, err := feed.NewSource(feed.SourceConfig{
		ProxyURL:        cfg.Ingest.ProxyURL,
		MaxItemsPerFeed: cfg.Ingest.MaxItemsPerFeed,
		RatePerSecond:   cfg.Ingest.FeedRatePerSecond,
	}, logger)
	if err != nil {
		logger.Fatal("failed to create feed source", zap.Error(err))
	}

	store, err := boltstore.Open(cfg.Storage.BoltPath, logger)
	if err != nil {
		logger.Fatal("failed to open bolt store", zap.Error(err))
	}
	defer store.Close()

	var publisher ingest.Publisher
	if cfg.Kafka.Enabled {
		pub, err := kafka.NewPublisher(cfg.Kafka.Broker, cfg.Kafka.Topic)
		if err != nil {
			logger.Fatal("failed to create kafka publisher", zap.Error(err))
		}
		defer pub.Close()
		publisher = pub
	}

	// =========
	// Coordinator
	// =========
	coordinator := ingest.NewCoordinator(
		source,
		engine,
		detector,
		service,
		store,
		publisher,
		ingest.CoordinatorConfig{
			MaxConcurrentFetches: cfg.Ingest.MaxConcurrentFetches,
			FetchTimeout:         cfg.Ingest.FetchTimeout(),
			TargetLanguages:      cfg.Translation.TargetLanguages,
		},
		logger,
	)

	logger.Info("firefeed pipeline started",
		zap.Int("feeds", len(cfg.Feeds)),
		zap.Duration("pass_interval", cfg.App.PassInterval()))

	coordinator.RunPass(ctx, cfg.Feeds)

	ticker := time.NewTicker(cfg.App.PassInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return
		case <-ticker.C:
			coordinator.RunPass(ctx, cfg.Feeds)
		}
	}
}

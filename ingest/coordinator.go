package ingest

import (
	"context"
	"sync"
	"time"

	"firefeed/config"
	"firefeed/dedup"
	"firefeed/feed"
	"firefeed/translate"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Fetcher is the external fetch/normalize collaborator.
type Fetcher interface {
	Fetch(ctx context.Context, fc config.Feed) ([]feed.NormalizedItem, error)
}

// Embedder produces vectors for normalized items.
type Embedder interface {
	Embed(ctx context.Context, item feed.NormalizedItem) (dedup.Vector, error)
}

// Classifier decides whether an item is new, duplicate or ambiguous.
type Classifier interface {
	Classify(item feed.NormalizedItem, vec dedup.Vector) dedup.Verdict
	ClassifyWithoutVector(item feed.NormalizedItem) dedup.Verdict
	Accepted(v dedup.Verdict) bool
	Prune(now time.Time) int
}

// Translator resolves translation batches.
type Translator interface {
	TranslateBatch(ctx context.Context, reqs []translate.Request) []translate.Result
}

// ItemTranslation holds one target language's translated fields.
type ItemTranslation struct {
	Title translate.Result `json:"title"`
	Body  translate.Result `json:"body"`
}

// Record is what the pipeline hands to the storage collaborator: the item,
// its verdict and its per-language translations. Items with failed languages
// are still persisted; nothing is silently dropped.
type Record struct {
	Item         feed.NormalizedItem        `json:"item"`
	Verdict      dedup.Verdict              `json:"verdict"`
	Translations map[string]ItemTranslation `json:"translations,omitempty"`
}

// Storage persists records durably. The pipeline knows nothing of its schema.
type Storage interface {
	Save(ctx context.Context, rec Record) error
}

// Publisher announces accepted items to downstream consumers. Optional.
type Publisher interface {
	Publish(ctx context.Context, rec Record) error
}

// Stats aggregates one ingestion pass.
type Stats struct {
	Feeds        int
	FeedFailures int
	Fetched      int
	New          int
	Duplicates   int
	Ambiguous    int
	Unindexed    int
}

type CoordinatorConfig struct {
	MaxConcurrentFetches int
	FetchTimeout         time.Duration
	TargetLanguages      []string
}

// Coordinator drives one ingestion pass: bounded fan-out over feeds, each
// feed's items processed in fetch order through classify → translate → store.
// Failures are contained to the smallest unit: one feed, one item, one
// language-pair group.
type Coordinator struct {
	fetcher    Fetcher
	embedder   Embedder
	classifier Classifier
	translator Translator
	storage    Storage
	publisher  Publisher
	cfg        CoordinatorConfig
	logger     *zap.Logger
}

func NewCoordinator(
	fetcher Fetcher,
	embedder Embedder,
	classifier Classifier,
	translator Translator,
	storage Storage,
	publisher Publisher,
	cfg CoordinatorConfig,
	logger *zap.Logger,
) *Coordinator {
	if cfg.MaxConcurrentFetches <= 0 {
		cfg.MaxConcurrentFetches = 10
	}
	return &Coordinator{
		fetcher:    fetcher,
		embedder:   embedder,
		classifier: classifier,
		translator: translator,
		storage:    storage,
		publisher:  publisher,
		cfg:        cfg,
		logger:     logger,
	}
}

// RunPass processes every configured feed once and prunes the index after.
func (c *Coordinator) RunPass(ctx context.Context, feeds []config.Feed) Stats {
	var (
		mu    sync.Mutex
		stats Stats
	)
	stats.Feeds = len(feeds)

	var g errgroup.Group
	g.SetLimit(c.cfg.MaxConcurrentFetches)

	for _, fc := range feeds {
		g.Go(func() error {
			fs := c.processFeed(ctx, fc)
			mu.Lock()
			stats.FeedFailures += fs.FeedFailures
			stats.Fetched += fs.Fetched
			stats.New += fs.New
			stats.Duplicates += fs.Duplicates
			stats.Ambiguous += fs.Ambiguous
			stats.Unindexed += fs.Unindexed
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	pruned := c.classifier.Prune(time.Now())

	c.logger.Info("ingestion pass completed",
		zap.Int("feeds", stats.Feeds),
		zap.Int("feed_failures", stats.FeedFailures),
		zap.Int("fetched", stats.Fetched),
		zap.Int("new", stats.New),
		zap.Int("duplicates", stats.Duplicates),
		zap.Int("ambiguous", stats.Ambiguous),
		zap.Int("pruned", pruned))

	return stats
}

func (c *Coordinator) processFeed(ctx context.Context, fc config.Feed) Stats {
	var stats Stats

	fctx := ctx
	if c.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, c.cfg.FetchTimeout)
		defer cancel()
	}

	items, err := c.fetcher.Fetch(fctx, fc)
	if err != nil {
		// Retry belongs to the fetch collaborator; this pass just skips the feed.
		c.logger.Warn("feed fetch failed",
			zap.String("feed", fc.URL),
			zap.Error(err))
		stats.FeedFailures++
		return stats
	}

	for _, item := range items {
		stats.Fetched++
		c.processItem(ctx, item, &stats)
	}
	return stats
}

func (c *Coordinator) processItem(ctx context.Context, item feed.NormalizedItem, stats *Stats) {
	var verdict dedup.Verdict

	vec, err := c.embedder.Embed(ctx, item)
	if err != nil {
		c.logger.Warn("embedding failed, item downgraded to new without dedup",
			zap.String("item_id", item.ID),
			zap.Error(err))
		verdict = c.classifier.ClassifyWithoutVector(item)
		stats.Unindexed++
	} else {
		verdict = c.classifier.Classify(item, vec)
	}

	switch verdict.Kind {
	case dedup.VerdictNew:
		stats.New++
	case dedup.VerdictDuplicate:
		stats.Duplicates++
	case dedup.VerdictAmbiguous:
		stats.Ambiguous++
	}

	rec := Record{Item: item, Verdict: verdict}
	if c.classifier.Accepted(verdict) {
		rec.Translations = c.translateItem(ctx, item)
	}

	if err := c.storage.Save(ctx, rec); err != nil {
		c.logger.Error("failed to persist item",
			zap.String("item_id", item.ID),
			zap.Error(err))
		return
	}

	if c.publisher != nil && c.classifier.Accepted(verdict) {
		if err := c.publisher.Publish(ctx, rec); err != nil {
			c.logger.Warn("failed to publish item",
				zap.String("item_id", item.ID),
				zap.Error(err))
		}
	}
}

// translateItem requests title and body translations for every target
// language in one batch; the service groups them by language pair. The source
// language entry is included untranslated.
func (c *Coordinator) translateItem(ctx context.Context, item feed.NormalizedItem) map[string]ItemTranslation {
	translations := make(map[string]ItemTranslation, len(c.cfg.TargetLanguages))

	var reqs []translate.Request
	var targets []string
	for _, lang := range c.cfg.TargetLanguages {
		if lang == item.Language {
			now := time.Now()
			translations[lang] = ItemTranslation{
				Title: translate.Result{Text: item.Title, ProducedAt: now},
				Body:  translate.Result{Text: item.Body, ProducedAt: now},
			}
			continue
		}
		targets = append(targets, lang)
		reqs = append(reqs,
			translate.Request{Text: item.Title, Source: item.Language, Target: lang},
			translate.Request{Text: item.Body, Source: item.Language, Target: lang},
		)
	}

	if len(reqs) == 0 {
		return translations
	}

	results := c.translator.TranslateBatch(ctx, reqs)
	for i, lang := range targets {
		translations[lang] = ItemTranslation{
			Title: results[2*i],
			Body:  results[2*i+1],
		}
	}
	return translations
}

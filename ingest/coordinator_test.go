package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"firefeed/config"
	"firefeed/dedup"
	"firefeed/feed"
	"firefeed/translate"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeFetcher struct {
	mu    sync.Mutex
	items map[string][]feed.NormalizedItem
	errs  map[string]error
	calls []string
}

func (f *fakeFetcher) Fetch(_ context.Context, fc config.Feed) ([]feed.NormalizedItem, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fc.URL)
	f.mu.Unlock()
	if err, ok := f.errs[fc.URL]; ok {
		return nil, err
	}
	return f.items[fc.URL], nil
}

type fakeEmbedder struct {
	mu      sync.Mutex
	failIDs map[string]bool
}

func (e *fakeEmbedder) Embed(_ context.Context, item feed.NormalizedItem) (dedup.Vector, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failIDs[item.ID] {
		return dedup.Vector{}, dedup.ErrEmbeddingFailed
	}
	return dedup.Vector{ItemID: item.ID, Values: []float32{1, 0}, ModelVersion: "v1"}, nil
}

// fakeClassifier marks items whose title contains "dup" as duplicates and the
// rest as new.
type fakeClassifier struct {
	mu     sync.Mutex
	pruned int
}

func (c *fakeClassifier) Classify(item feed.NormalizedItem, _ dedup.Vector) dedup.Verdict {
	if strings.Contains(item.Title, "dup") {
		return dedup.Verdict{Kind: dedup.VerdictDuplicate, DuplicateOf: "earlier", Score: 0.97}
	}
	return dedup.Verdict{Kind: dedup.VerdictNew}
}

func (c *fakeClassifier) ClassifyWithoutVector(feed.NormalizedItem) dedup.Verdict {
	return dedup.Verdict{Kind: dedup.VerdictNew, Unindexed: true}
}

func (c *fakeClassifier) Accepted(v dedup.Verdict) bool {
	return v.Kind != dedup.VerdictDuplicate
}

func (c *fakeClassifier) Prune(time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruned++
	return 0
}

type fakeTranslator struct {
	mu      sync.Mutex
	batches [][]translate.Request
}

func (t *fakeTranslator) TranslateBatch(_ context.Context, reqs []translate.Request) []translate.Result {
	t.mu.Lock()
	t.batches = append(t.batches, reqs)
	t.mu.Unlock()
	results := make([]translate.Result, len(reqs))
	for i, r := range reqs {
		results[i] = translate.Result{
			Text:         "[" + r.Target + "] " + r.Text,
			ModelVersion: "fake",
			ProducedAt:   time.Now(),
		}
	}
	return results
}

type fakeStorage struct {
	mu      sync.Mutex
	records map[string]Record
	err     error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{records: make(map[string]Record)}
}

func (s *fakeStorage) Save(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records[rec.Item.ID] = rec
	return nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []string
}

func (p *fakePublisher) Publish(_ context.Context, rec Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, rec.Item.ID)
	return nil
}

func item(id, lang, title string) feed.NormalizedItem {
	return feed.NormalizedItem{
		ID:       id,
		SourceID: "src",
		Language: lang,
		Title:    title,
		Body:     "body of " + id,
	}
}

func newTestCoordinator(f *fakeFetcher, e *fakeEmbedder, cl *fakeClassifier, tr *fakeTranslator, st *fakeStorage, pub Publisher) *Coordinator {
	return NewCoordinator(f, e, cl, tr, st, pub, CoordinatorConfig{
		MaxConcurrentFetches: 4,
		FetchTimeout:         time.Second,
		TargetLanguages:      []string{"en", "de"},
	}, zap.NewNop())
}

func TestRunPassProcessesAllFeeds(t *testing.T) {
	fetcher := &fakeFetcher{items: map[string][]feed.NormalizedItem{
		"feed-a": {item("a1", "en", "story one"), item("a2", "en", "dup of one")},
		"feed-b": {item("b1", "en", "story two")},
	}}
	classifier := &fakeClassifier{}
	translator := &fakeTranslator{}
	storage := newFakeStorage()
	publisher := &fakePublisher{}

	c := newTestCoordinator(fetcher, &fakeEmbedder{}, classifier, translator, storage, publisher)
	stats := c.RunPass(context.Background(), []config.Feed{
		{URL: "feed-a", Source: "a"},
		{URL: "feed-b", Source: "b"},
	})

	assert.Equal(t, 2, stats.Feeds)
	assert.Equal(t, 0, stats.FeedFailures)
	assert.Equal(t, 3, stats.Fetched)
	assert.Equal(t, 2, stats.New)
	assert.Equal(t, 1, stats.Duplicates)

	// Every item lands in storage, duplicates included.
	assert.Len(t, storage.records, 3)

	// Duplicates carry no translations and are never published.
	dup := storage.records["a2"]
	assert.Equal(t, dedup.VerdictDuplicate, dup.Verdict.Kind)
	assert.Empty(t, dup.Translations)
	assert.NotContains(t, publisher.published, "a2")
	assert.ElementsMatch(t, []string{"a1", "b1"}, publisher.published)

	// The index prunes once per pass.
	assert.Equal(t, 1, classifier.pruned)
}

func TestRunPassFeedFailureIsolation(t *testing.T) {
	fetcher := &fakeFetcher{
		items: map[string][]feed.NormalizedItem{
			"feed-ok": {item("ok1", "en", "fine")},
		},
		errs: map[string]error{
			"feed-bad": errors.New("connection refused"),
		},
	}
	storage := newFakeStorage()

	c := newTestCoordinator(fetcher, &fakeEmbedder{}, &fakeClassifier{}, &fakeTranslator{}, storage, nil)
	stats := c.RunPass(context.Background(), []config.Feed{
		{URL: "feed-bad"},
		{URL: "feed-ok"},
	})

	assert.Equal(t, 1, stats.FeedFailures)
	assert.Equal(t, 1, stats.Fetched)
	assert.Len(t, storage.records, 1)
}

func TestRunPassEmbeddingFailureDowngradesToUnindexed(t *testing.T) {
	fetcher := &fakeFetcher{items: map[string][]feed.NormalizedItem{
		"feed": {item("broken", "en", "no vector"), item("fine", "en", "has vector")},
	}}
	embedder := &fakeEmbedder{failIDs: map[string]bool{"broken": true}}
	storage := newFakeStorage()

	c := newTestCoordinator(fetcher, embedder, &fakeClassifier{}, &fakeTranslator{}, storage, nil)
	stats := c.RunPass(context.Background(), []config.Feed{{URL: "feed"}})

	assert.Equal(t, 1, stats.Unindexed)
	assert.Equal(t, 2, stats.New)

	rec := storage.records["broken"]
	assert.True(t, rec.Verdict.Unindexed)
	// Unindexed items still continue down the pipeline.
	assert.NotEmpty(t, rec.Translations)
}

func TestTranslateItemOneBatchPerItem(t *testing.T) {
	fetcher := &fakeFetcher{items: map[string][]feed.NormalizedItem{
		"feed": {item("a", "en", "hello")},
	}}
	translator := &fakeTranslator{}
	storage := newFakeStorage()

	c := NewCoordinator(fetcher, &fakeEmbedder{}, &fakeClassifier{}, translator, storage, nil, CoordinatorConfig{
		MaxConcurrentFetches: 1,
		TargetLanguages:      []string{"en", "de", "fr"},
	}, zap.NewNop())
	c.RunPass(context.Background(), []config.Feed{{URL: "feed"}})

	// One batch covers every target language: two requests (title, body) per
	// non-source target.
	require.Len(t, translator.batches, 1)
	assert.Len(t, translator.batches[0], 4)

	rec := storage.records["a"]
	require.Len(t, rec.Translations, 3)

	// The source language entry is the untranslated original.
	assert.Equal(t, "hello", rec.Translations["en"].Title.Text)
	assert.Equal(t, "[de] hello", rec.Translations["de"].Title.Text)
	assert.Equal(t, "[fr] body of a", rec.Translations["fr"].Body.Text)
}

func TestProcessItemStorageFailureSkipsPublish(t *testing.T) {
	fetcher := &fakeFetcher{items: map[string][]feed.NormalizedItem{
		"feed": {item("a", "en", "hello")},
	}}
	storage := newFakeStorage()
	storage.err = errors.New("disk full")
	publisher := &fakePublisher{}

	c := newTestCoordinator(fetcher, &fakeEmbedder{}, &fakeClassifier{}, &fakeTranslator{}, storage, publisher)
	c.RunPass(context.Background(), []config.Feed{{URL: "feed"}})

	assert.Empty(t, publisher.published)
}

func TestRunPassBoundsConcurrentFetches(t *testing.T) {
	items := map[string][]feed.NormalizedItem{}
	var feeds []config.Feed
	for i := 0; i < 10; i++ {
		url := fmt.Sprintf("feed-%d", i)
		items[url] = nil
		feeds = append(feeds, config.Feed{URL: url})
	}

	var mu sync.Mutex
	active, peak := 0, 0
	fetcher := &slowFetcher{onFetch: func() {
		mu.Lock()
		active++
		if active > peak {
			peak = active
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		active--
		mu.Unlock()
	}}

	c := NewCoordinator(fetcher, &fakeEmbedder{}, &fakeClassifier{}, &fakeTranslator{}, newFakeStorage(), nil, CoordinatorConfig{
		MaxConcurrentFetches: 3,
	}, zap.NewNop())
	c.RunPass(context.Background(), feeds)

	assert.LessOrEqual(t, peak, 3)
}

type slowFetcher struct {
	onFetch func()
}

func (f *slowFetcher) Fetch(context.Context, config.Feed) ([]feed.NormalizedItem, error) {
	f.onFetch()
	return nil, nil
}

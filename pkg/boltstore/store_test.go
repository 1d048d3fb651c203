package boltstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"firefeed/dedup"
	"firefeed/feed"
	"firefeed/ingest"
	"firefeed/translate"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "test.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRecord(id string) ingest.Record {
	return ingest.Record{
		Item: feed.NormalizedItem{
			ID:          id,
			SourceID:    "src",
			Language:    "en",
			Title:       "title",
			Body:        "body",
			Link:        "https://example.com/" + id,
			PublishedAt: time.Now().UTC().Truncate(time.Second),
		},
		Verdict: dedup.Verdict{Kind: dedup.VerdictNew},
		Translations: map[string]ingest.ItemTranslation{
			"de": {
				Title: translate.Result{Text: "titel", ModelVersion: "v1", ProducedAt: time.Now().UTC()},
				Body:  translate.Result{Text: "korper", ModelVersion: "v1", ProducedAt: time.Now().UTC()},
			},
		},
	}
}

func TestStoreSaveAndGet(t *testing.T) {
	s := openTestStore(t)

	rec := sampleRecord("item-1")
	require.NoError(t, s.Save(context.Background(), rec))

	got, ok, err := s.Get("item-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec.Item.ID, got.Item.ID)
	assert.Equal(t, rec.Item.Title, got.Item.Title)
	assert.Equal(t, dedup.VerdictNew, got.Verdict.Kind)
	assert.Equal(t, "titel", got.Translations["de"].Title.Text)
}

func TestStoreGetMissing(t *testing.T) {
	s := openTestStore(t)

	_, ok, err := s.Get("absent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreSaveReplacesSameID(t *testing.T) {
	s := openTestStore(t)

	rec := sampleRecord("item-1")
	require.NoError(t, s.Save(context.Background(), rec))

	rec.Item.Title = "updated title"
	require.NoError(t, s.Save(context.Background(), rec))

	got, ok, err := s.Get("item-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "updated title", got.Item.Title)

	n, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStorePersistsFailureMarkers(t *testing.T) {
	s := openTestStore(t)

	rec := sampleRecord("item-1")
	rec.Translations["fr"] = ingest.ItemTranslation{
		Title: translate.Result{Err: errors.New("model load failed"), ProducedAt: time.Now().UTC()},
		Body:  translate.Result{Err: errors.New("model load failed"), ProducedAt: time.Now().UTC()},
	}
	require.NoError(t, s.Save(context.Background(), rec))

	got, ok, err := s.Get("item-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Translations["fr"].Title.Failed())
	assert.Contains(t, got.Translations["fr"].Title.Err.Error(), "model load failed")
	assert.False(t, got.Translations["de"].Title.Failed())
}

func TestStoreCount(t *testing.T) {
	s := openTestStore(t)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Save(context.Background(), sampleRecord(id)))
	}

	n, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

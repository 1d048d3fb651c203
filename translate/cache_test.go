package translate

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCachePutGet(t *testing.T) {
	cache := NewCache(10, time.Minute, zap.NewNop())

	key := CacheKey("hello world", "en", "de")
	cache.Put(key, Result{Text: "hallo welt", ModelVersion: "v1", ProducedAt: time.Now()})

	got, ok := cache.Get(key)
	require.True(t, ok)
	assert.Equal(t, "hallo welt", got.Text)
	assert.Equal(t, "v1", got.ModelVersion)

	_, ok = cache.Get(CacheKey("hello world", "en", "fr"))
	assert.False(t, ok)
}

func TestCacheNeverStoresFailures(t *testing.T) {
	cache := NewCache(10, time.Minute, zap.NewNop())

	key := CacheKey("hello", "en", "de")
	cache.Put(key, Result{Err: errors.New("inference failed"), ProducedAt: time.Now()})

	_, ok := cache.Get(key)
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Len())
}

func TestCacheTTLExpiry(t *testing.T) {
	cache := NewCache(10, 20*time.Millisecond, zap.NewNop())

	key := CacheKey("hello", "en", "de")
	cache.Put(key, Result{Text: "hallo", ProducedAt: time.Now()})

	_, ok := cache.Get(key)
	require.True(t, ok)

	time.Sleep(40 * time.Millisecond)
	_, ok = cache.Get(key)
	assert.False(t, ok)
}

func TestCacheCapacityEviction(t *testing.T) {
	cache := NewCache(3, time.Minute, zap.NewNop())

	for i := 0; i < 5; i++ {
		text := fmt.Sprintf("text %d", i)
		cache.Put(CacheKey(text, "en", "de"), Result{Text: text, ProducedAt: time.Now()})
	}

	assert.Equal(t, 3, cache.Len())

	_, ok := cache.Get(CacheKey("text 0", "en", "de"))
	assert.False(t, ok)
	_, ok = cache.Get(CacheKey("text 4", "en", "de"))
	assert.True(t, ok)
}

func TestCacheKeyNormalization(t *testing.T) {
	base := CacheKey("Hello World", "en", "de")

	assert.Equal(t, base, CacheKey("hello world", "en", "de"))
	assert.Equal(t, base, CacheKey("  hello \t world\n", "en", "de"))
	assert.NotEqual(t, base, CacheKey("hello worlds", "en", "de"))
	assert.NotEqual(t, base, CacheKey("Hello World", "en", "fr"))
	assert.NotEqual(t, base, CacheKey("Hello World", "de", "en"))

	// Deterministic across calls, so entries survive being rebuilt from the
	// same inputs on a later pass.
	assert.Equal(t, CacheKey("Hello World", "en", "de"), base)
}

package translate

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

// Cache stores translation results keyed by CacheKey. Entries expire after
// the configured TTL and the least recently used entry is evicted when a put
// would exceed MaxEntries. Expired entries are dropped lazily on Get and by
// the LRU's periodic sweep. Concurrent writers racing on one key simply
// overwrite each other with content-equivalent results, so no locking beyond
// the LRU's own is needed.
type Cache struct {
	lru    *expirable.LRU[string, Result]
	logger *zap.Logger
}

func NewCache(maxEntries int, ttl time.Duration, logger *zap.Logger) *Cache {
	if maxEntries <= 0 {
		maxEntries = 5000
	}
	return &Cache{
		lru:    expirable.NewLRU[string, Result](maxEntries, nil, ttl),
		logger: logger,
	}
}

func (c *Cache) Get(key string) (Result, bool) {
	return c.lru.Get(key)
}

// Put stores a successful result. Failure markers are never cached: a failed
// pair should be retried on the next pass, not remembered.
func (c *Cache) Put(key string, r Result) {
	if r.Failed() {
		return
	}
	c.lru.Add(key, r)
}

func (c *Cache) Len() int {
	return c.lru.Len()
}

package dedup

import (
	"sort"
	"sync"
	"time"

	"firefeed/pkg/embedding"

	"go.uber.org/zap"
)

// Vector is an embedding tagged with the item it represents and the model
// version that produced it. Vectors of different versions are never compared.
type Vector struct {
	ItemID       string    `json:"item_id"`
	Values       []float32 `json:"values"`
	ModelVersion string    `json:"model_version"`
}

// Entry is what the index owns per item.
type Entry struct {
	ItemID       string
	SourceID     string
	Values       []float32
	ModelVersion string
	InsertedAt   time.Time
}

// Match is one query candidate, scored by cosine similarity.
type Match struct {
	ItemID string
	Score  float32
}

type IndexConfig struct {
	TopK             int
	RetentionHorizon time.Duration
	MaxEntries       int
}

// Index holds recent item vectors in memory and answers nearest-neighbour
// queries with a linear scan. One writer lock serializes inserts against
// queries so a vector is visible to every query that starts after its insert
// completes. The index lives for the process lifetime; restart clears it.
type Index struct {
	mu      sync.RWMutex
	entries []Entry
	byID    map[string]int
	cfg     IndexConfig
	logger  *zap.Logger
}

func NewIndex(cfg IndexConfig, logger *zap.Logger) *Index {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	return &Index{
		byID:   make(map[string]int),
		cfg:    cfg,
		logger: logger,
	}
}

// Insert adds an entry, replacing any previous entry for the same item id.
func (ix *Index) Insert(e Entry) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.insertLocked(e)
}

func (ix *Index) insertLocked(e Entry) {
	if pos, ok := ix.byID[e.ItemID]; ok {
		ix.removeAt(pos)
	}
	ix.byID[e.ItemID] = len(ix.entries)
	ix.entries = append(ix.entries, e)
}

// entries is kept in insertion order; removal shifts the tail down.
func (ix *Index) removeAt(pos int) {
	delete(ix.byID, ix.entries[pos].ItemID)
	ix.entries = append(ix.entries[:pos], ix.entries[pos+1:]...)
	for i := pos; i < len(ix.entries); i++ {
		ix.byID[ix.entries[i].ItemID] = i
	}
}

// Query returns up to TopK entries with similarity >= epsilon, best first.
// Entries from a different model version are excluded before scoring, as is
// the entry whose item id equals excludeID: an item re-fetched within the
// retention horizon must not match its own earlier entry.
func (ix *Index) Query(values []float32, modelVersion string, epsilon float32, excludeID string) []Match {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.queryLocked(values, modelVersion, epsilon, excludeID)
}

func (ix *Index) queryLocked(values []float32, modelVersion string, epsilon float32, excludeID string) []Match {
	var matches []Match
	versionSkips := 0

	for i := range ix.entries {
		e := &ix.entries[i]
		if e.ItemID == excludeID {
			continue
		}
		if e.ModelVersion != modelVersion {
			versionSkips++
			continue
		}
		score := embedding.CosineSimilarity(values, e.Values)
		if score >= epsilon {
			matches = append(matches, Match{ItemID: e.ItemID, Score: score})
		}
	}

	if versionSkips > 0 {
		ix.logger.Debug("index entries skipped on model version mismatch",
			zap.String("model_version", modelVersion),
			zap.Int("skipped", versionSkips))
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > ix.cfg.TopK {
		matches = matches[:ix.cfg.TopK]
	}
	return matches
}

// Prune drops entries older than the retention horizon, then, if the index
// still exceeds MaxEntries, drops the oldest remaining entries until the
// capacity holds. Returns the number of removed entries.
func (ix *Index) Prune(now time.Time) int {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	removed := 0
	if ix.cfg.RetentionHorizon > 0 {
		cutoff := now.Add(-ix.cfg.RetentionHorizon)
		kept := ix.entries[:0]
		for _, e := range ix.entries {
			if e.InsertedAt.Before(cutoff) {
				removed++
				continue
			}
			kept = append(kept, e)
		}
		ix.entries = kept
	}

	if ix.cfg.MaxEntries > 0 && len(ix.entries) > ix.cfg.MaxEntries {
		over := len(ix.entries) - ix.cfg.MaxEntries
		ix.entries = append(ix.entries[:0], ix.entries[over:]...)
		removed += over
	}

	ix.byID = make(map[string]int, len(ix.entries))
	for i, e := range ix.entries {
		ix.byID[e.ItemID] = i
	}

	if removed > 0 {
		ix.logger.Info("similarity index pruned",
			zap.Int("removed", removed),
			zap.Int("remaining", len(ix.entries)))
	}
	return removed
}

func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

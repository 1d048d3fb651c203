package dedup

import (
	"sync"
	"time"

	"firefeed/feed"

	"go.uber.org/zap"
)

type VerdictKind string

const (
	VerdictNew       VerdictKind = "new"
	VerdictDuplicate VerdictKind = "duplicate"
	VerdictAmbiguous VerdictKind = "ambiguous"
)

// AmbiguousPolicy decides what happens to items the detector cannot
// confidently classify.
type AmbiguousPolicy string

const (
	// AmbiguousAccept treats the item as new and indexes it; the verdict is
	// logged for later review.
	AmbiguousAccept AmbiguousPolicy = "accept"
	// AmbiguousDrop rejects the item without indexing it.
	AmbiguousDrop AmbiguousPolicy = "drop"
)

// Candidate is a possible duplicate with its similarity score.
type Candidate struct {
	ItemID string  `json:"item_id"`
	Score  float32 `json:"score"`
}

// Verdict is the immutable outcome of one classification.
type Verdict struct {
	Kind VerdictKind `json:"kind"`
	// DuplicateOf and Score are set for duplicate verdicts.
	DuplicateOf string  `json:"duplicate_of,omitempty"`
	Score       float32 `json:"score,omitempty"`
	// Candidates is set for ambiguous verdicts.
	Candidates []Candidate `json:"candidates,omitempty"`
	// Unindexed marks a verdict produced without a vector (embedding failed):
	// the item is treated as new but carries no dedup protection.
	Unindexed bool `json:"unindexed,omitempty"`
}

type DetectorConfig struct {
	HighThreshold   float32
	LowThreshold    float32
	AmbiguousPolicy AmbiguousPolicy
}

// Detector classifies incoming items against the similarity index. It is the
// index's sole writer: the check-then-insert step runs under one mutex so two
// near-duplicates racing through Classify cannot both come out as new.
type Detector struct {
	index  *Index
	cfg    DetectorConfig
	logger *zap.Logger
	mu     sync.Mutex
}

func NewDetector(index *Index, cfg DetectorConfig, logger *zap.Logger) *Detector {
	if cfg.AmbiguousPolicy == "" {
		cfg.AmbiguousPolicy = AmbiguousAccept
	}
	return &Detector{index: index, cfg: cfg, logger: logger}
}

// Classify decides whether item is new, a duplicate of an indexed item, or
// ambiguous. New items (and accepted ambiguous items) are inserted into the
// index before Classify returns, so later classifications in the same pass
// see them. An item never matches its own earlier entry: re-fetching a feed
// reclassifies each item against the rest of the index and refreshes its
// entry on insert.
func (d *Detector) Classify(item feed.NormalizedItem, vec Vector) Verdict {
	d.mu.Lock()
	defer d.mu.Unlock()

	matches := d.index.Query(vec.Values, vec.ModelVersion, d.cfg.LowThreshold, item.ID)

	if len(matches) > 0 && matches[0].Score >= d.cfg.HighThreshold {
		best := matches[0]
		d.logger.Info("duplicate detected",
			zap.String("item_id", item.ID),
			zap.String("duplicate_of", best.ItemID),
			zap.Float32("score", best.Score))
		return Verdict{Kind: VerdictDuplicate, DuplicateOf: best.ItemID, Score: best.Score}
	}

	if len(matches) > 1 {
		candidates := make([]Candidate, len(matches))
		for i, m := range matches {
			candidates[i] = Candidate{ItemID: m.ItemID, Score: m.Score}
		}
		if d.cfg.AmbiguousPolicy == AmbiguousAccept {
			d.insert(item, vec)
		}
		d.logger.Warn("ambiguous classification",
			zap.String("item_id", item.ID),
			zap.String("policy", string(d.cfg.AmbiguousPolicy)),
			zap.Float32("best_score", matches[0].Score),
			zap.Int("candidates", len(candidates)))
		return Verdict{Kind: VerdictAmbiguous, Candidates: candidates}
	}

	// A single candidate below the high threshold does not qualify as
	// ambiguous; the item counts as new.
	d.insert(item, vec)
	return Verdict{Kind: VerdictNew}
}

// ClassifyWithoutVector produces the conservative verdict for an item whose
// embedding step failed: new, but never indexed.
func (d *Detector) ClassifyWithoutVector(item feed.NormalizedItem) Verdict {
	d.logger.Warn("item classified without vector",
		zap.String("item_id", item.ID),
		zap.String("source", item.SourceID))
	return Verdict{Kind: VerdictNew, Unindexed: true}
}

// Accepted reports whether the verdict lets the item continue down the
// pipeline to translation and storage.
func (d *Detector) Accepted(v Verdict) bool {
	switch v.Kind {
	case VerdictNew:
		return true
	case VerdictAmbiguous:
		return d.cfg.AmbiguousPolicy == AmbiguousAccept
	default:
		return false
	}
}

// Prune forwards to the index's retention pruning.
func (d *Detector) Prune(now time.Time) int {
	return d.index.Prune(now)
}

func (d *Detector) insert(item feed.NormalizedItem, vec Vector) {
	d.index.Insert(Entry{
		ItemID:       item.ID,
		SourceID:     item.SourceID,
		Values:       vec.Values,
		ModelVersion: vec.ModelVersion,
		InsertedAt:   time.Now(),
	})
}

package translate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

type ServiceConfig struct {
	// MaxConcurrentGroups bounds how many language-pair groups translate at
	// once; further groups queue FIFO on the semaphore.
	MaxConcurrentGroups int64
	// InferenceTimeout bounds a single group's inference. A timeout fails
	// that group only.
	InferenceTimeout time.Duration
	// Pivots maps "src-dst" to an intermediate language for pairs with no
	// direct model (e.g. ru-de via en).
	Pivots map[string]string
}

// Service answers translation batches. Requests hit the cache first; misses
// are grouped by language pair so each group costs one model acquisition and
// one batched inference, then written back to the cache.
type Service struct {
	cache   *Cache
	manager *Manager
	sem     *semaphore.Weighted
	cfg     ServiceConfig
	logger  *zap.Logger
}

func NewService(cache *Cache, manager *Manager, cfg ServiceConfig, logger *zap.Logger) *Service {
	if cfg.MaxConcurrentGroups <= 0 {
		cfg.MaxConcurrentGroups = 2
	}
	return &Service{
		cache:   cache,
		manager: manager,
		sem:     semaphore.NewWeighted(cfg.MaxConcurrentGroups),
		cfg:     cfg,
		logger:  logger,
	}
}

// TranslateBatch resolves every request, returning results in request order.
// Failures are isolated per language-pair group: a failed group yields
// failure markers for its own requests and nothing else.
func (s *Service) TranslateBatch(ctx context.Context, reqs []Request) []Result {
	results := make([]Result, len(reqs))
	groups := make(map[Pair][]int)
	hits := 0

	for i, req := range reqs {
		if req.Source == req.Target || req.Text == "" {
			results[i] = Result{Text: req.Text, ProducedAt: time.Now()}
			continue
		}
		if r, ok := s.cache.Get(CacheKey(req.Text, req.Source, req.Target)); ok {
			results[i] = r
			hits++
			continue
		}
		p := req.pair()
		groups[p] = append(groups[p], i)
	}

	if len(groups) > 0 {
		s.logger.Debug("translation batch",
			zap.Int("requests", len(reqs)),
			zap.Int("cache_hits", hits),
			zap.Int("groups", len(groups)))
	}

	var wg sync.WaitGroup
	for pair, idxs := range groups {
		wg.Add(1)
		go func(pair Pair, idxs []int) {
			defer wg.Done()
			if err := s.sem.Acquire(ctx, 1); err != nil {
				s.failGroup(results, idxs, err)
				return
			}
			defer s.sem.Release(1)
			s.translateGroup(ctx, pair, reqs, idxs, results)
		}(pair, idxs)
	}
	wg.Wait()

	return results
}

// translateGroup runs one language-pair group. Group goroutines write only
// their own result indices, so no extra synchronization is needed.
func (s *Service) translateGroup(ctx context.Context, pair Pair, reqs []Request, idxs []int, results []Result) {
	texts := make([]string, len(idxs))
	for j, i := range idxs {
		texts[j] = reqs[i].Text
	}

	out, version, err := s.translatePair(ctx, pair, texts)
	if err != nil {
		s.logger.Error("translation group failed",
			zap.String("pair", pair.String()),
			zap.Int("requests", len(idxs)),
			zap.Error(err))
		s.failGroup(results, idxs, err)
		return
	}

	now := time.Now()
	for j, i := range idxs {
		if IsBrokenTranslation(out[j]) {
			s.logger.Warn("degenerate translation discarded",
				zap.String("pair", pair.String()),
				zap.String("head", head(out[j], 50)))
			results[i] = Result{
				Err:        fmt.Errorf("%w: degenerate output for %s", ErrInference, pair),
				ProducedAt: now,
			}
			continue
		}
		r := Result{Text: out[j], ModelVersion: version, ProducedAt: now}
		results[i] = r
		s.cache.Put(CacheKey(reqs[i].Text, reqs[i].Source, reqs[i].Target), r)
	}
}

// translatePair resolves pivot pairs by chaining two direct translations
// under the caller's group slot.
func (s *Service) translatePair(ctx context.Context, pair Pair, texts []string) ([]string, string, error) {
	if pivot, ok := s.cfg.Pivots[pair.String()]; ok && pivot != pair.Source && pivot != pair.Target {
		mid, _, err := s.translateDirect(ctx, Pair{Source: pair.Source, Target: pivot}, texts)
		if err != nil {
			return nil, "", err
		}
		return s.translateDirect(ctx, Pair{Source: pivot, Target: pair.Target}, mid)
	}
	return s.translateDirect(ctx, pair, texts)
}

func (s *Service) translateDirect(ctx context.Context, pair Pair, texts []string) ([]string, string, error) {
	h, err := s.manager.Acquire(ctx, pair)
	if err != nil {
		return nil, "", err
	}
	defer h.Release()

	tctx := ctx
	if s.cfg.InferenceTimeout > 0 {
		var cancel context.CancelFunc
		tctx, cancel = context.WithTimeout(ctx, s.cfg.InferenceTimeout)
		defer cancel()
	}

	out, err := h.Model().Translate(tctx, texts)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s: %v", ErrInference, pair, err)
	}
	if len(out) != len(texts) {
		return nil, "", fmt.Errorf("%w: %s: got %d outputs for %d inputs", ErrInference, pair, len(out), len(texts))
	}
	return out, h.Model().Version(), nil
}

func (s *Service) failGroup(results []Result, idxs []int, err error) {
	now := time.Now()
	for _, i := range idxs {
		results[i] = Result{Err: err, ProducedAt: now}
	}
}

func head(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

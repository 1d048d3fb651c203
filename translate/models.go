package translate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

type ManagerConfig struct {
	// CapacityMB bounds the estimated resident footprint of loaded models.
	CapacityMB int64
	// IdleEviction evicts unused models idle this long, regardless of
	// capacity pressure.
	IdleEviction time.Duration
	// SweepInterval is the background sweep cadence for Run.
	SweepInterval time.Duration
}

type slot struct {
	model       Model
	pair        Pair
	footprintMB int64
	lastUsed    time.Time
	refs        int
}

// Manager owns every loaded translation model. Models load lazily per
// language pair; least-recently-used models with no in-flight users are
// evicted when the resident footprint exceeds capacity, and a background
// sweep releases idle models during quiet periods. A model with a non-zero
// reference count is never evicted.
type Manager struct {
	backend Backend
	cfg     ManagerConfig
	logger  *zap.Logger

	mu         sync.Mutex
	slots      map[Pair]*slot
	loading    map[Pair]chan struct{}
	residentMB int64
}

func NewManager(backend Backend, cfg ManagerConfig, logger *zap.Logger) *Manager {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	return &Manager{
		backend: backend,
		cfg:     cfg,
		logger:  logger,
		slots:   make(map[Pair]*slot),
		loading: make(map[Pair]chan struct{}),
	}
}

// Handle is a scoped reference to an acquired model. Release must be called
// when the caller is done; releasing twice is safe.
type Handle struct {
	m     *Manager
	pair  Pair
	model Model
	once  sync.Once
}

func (h *Handle) Model() Model {
	return h.model
}

func (h *Handle) Release() {
	h.once.Do(func() {
		h.m.release(h.pair)
	})
}

// Acquire returns a handle to the model for pair, loading it first if needed.
// Concurrent acquires for the same missing pair coalesce into one load.
func (m *Manager) Acquire(ctx context.Context, pair Pair) (*Handle, error) {
	var loadCh chan struct{}
	for {
		m.mu.Lock()
		if s, ok := m.slots[pair]; ok {
			s.refs++
			s.lastUsed = time.Now()
			m.mu.Unlock()
			return &Handle{m: m, pair: pair, model: s.model}, nil
		}
		if ch, ok := m.loading[pair]; ok {
			m.mu.Unlock()
			select {
			case <-ch:
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		loadCh = make(chan struct{})
		m.loading[pair] = loadCh
		m.mu.Unlock()
		break
	}

	// Slow path: load outside the lock so other pairs stay serviceable.
	model, err := m.backend.Load(ctx, pair)

	m.mu.Lock()
	delete(m.loading, pair)
	close(loadCh)

	if err != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s: %v", ErrModelLoad, pair, err)
	}

	s := &slot{
		model:       model,
		pair:        pair,
		footprintMB: model.FootprintMB(),
		lastUsed:    time.Now(),
		refs:        1,
	}
	m.slots[pair] = s
	m.residentMB += s.footprintMB

	victims := m.evictOverCapacityLocked()
	m.mu.Unlock()

	m.closeVictims(victims)

	return &Handle{m: m, pair: pair, model: s.model}, nil
}

func (m *Manager) release(pair Pair) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.slots[pair]; ok && s.refs > 0 {
		s.refs--
		s.lastUsed = time.Now()
	}
}

// evictOverCapacityLocked evicts LRU zero-ref slots until the footprint fits.
// If everything left is in use, the overshoot stands; correctness wins over
// the memory bound and the condition is logged.
func (m *Manager) evictOverCapacityLocked() []*slot {
	if m.cfg.CapacityMB <= 0 {
		return nil
	}

	var victims []*slot
	for m.residentMB > m.cfg.CapacityMB {
		var oldest *slot
		for _, s := range m.slots {
			if s.refs > 0 {
				continue
			}
			if oldest == nil || s.lastUsed.Before(oldest.lastUsed) {
				oldest = s
			}
		}
		if oldest == nil {
			m.logger.Warn("model cache over capacity with no evictable model",
				zap.Int64("resident_mb", m.residentMB),
				zap.Int64("capacity_mb", m.cfg.CapacityMB))
			break
		}
		delete(m.slots, oldest.pair)
		m.residentMB -= oldest.footprintMB
		victims = append(victims, oldest)
	}
	return victims
}

// Sweep evicts zero-ref models idle longer than the idle-eviction interval.
// Returns the number of evicted models.
func (m *Manager) Sweep(now time.Time) int {
	if m.cfg.IdleEviction <= 0 {
		return 0
	}

	m.mu.Lock()
	var victims []*slot
	for pair, s := range m.slots {
		if s.refs == 0 && now.Sub(s.lastUsed) >= m.cfg.IdleEviction {
			delete(m.slots, pair)
			m.residentMB -= s.footprintMB
			victims = append(victims, s)
		}
	}
	m.mu.Unlock()

	m.closeVictims(victims)
	return len(victims)
}

// Run drives the background sweep until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.Sweep(now)
		}
	}
}

// ResidentMB reports the current estimated footprint of loaded models.
func (m *Manager) ResidentMB() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.residentMB
}

// Loaded reports how many models are resident.
func (m *Manager) Loaded() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.slots)
}

// Close releases every model. Meant for shutdown, after in-flight work ends.
func (m *Manager) Close() {
	m.mu.Lock()
	victims := make([]*slot, 0, len(m.slots))
	for pair, s := range m.slots {
		delete(m.slots, pair)
		m.residentMB -= s.footprintMB
		victims = append(victims, s)
	}
	m.mu.Unlock()

	m.closeVictims(victims)
}

func (m *Manager) closeVictims(victims []*slot) {
	for _, s := range victims {
		if err := s.model.Close(); err != nil {
			m.logger.Warn("failed to close evicted model",
				zap.String("pair", s.pair.String()),
				zap.Error(err))
		} else {
			m.logger.Info("translation model evicted",
				zap.String("pair", s.pair.String()),
				zap.Int64("footprint_mb", s.footprintMB))
		}
	}
}

package replay

import (
	"StarLedger/internal/observability"
	"fmt"

	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog"
)

// DefaultCapacity bounds the in-memory tier.
const DefaultCapacity = 10_000

// Guard implements two-tier challenge deduplication: a bounded in-memory LRU
// in front of an optional durable log. It satisfies ledger.ReplayGuard.
type Guard struct {
	// Tier 1: In-memory LRU (thread-safe)
	recent *lru.Cache

	// Tier 2: durable log, survives restarts and LRU eviction
	durable DurableLog

	metrics *observability.Metrics
	log     zerolog.Logger
}

// DurableLog records claimed challenges outside the process.
type DurableLog interface {
	// Claim records key and reports false when it was already recorded.
	Claim(key string) (bool, error)
	Release(key string) error
}

// NewGuard creates a guard remembering up to capacity challenges in memory.
// durable may be nil.
func NewGuard(capacity int, durable DurableLog, metrics *observability.Metrics, logger zerolog.Logger) (*Guard, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	cache, err := lru.New(capacity)
	if err != nil {
		return nil, fmt.Errorf("create replay cache: %w", err)
	}
	return &Guard{
		recent:  cache,
		durable: durable,
		metrics: metrics,
		log:     logger,
	}, nil
}

// Claim reports whether key is seen for the first time, remembering it.
func (g *Guard) Claim(key string) bool {
	// Tier 1: LRU check (hot path)
	if found, _ := g.recent.ContainsOrAdd(key, struct{}{}); found {
		g.recordRejected("lru")
		return false
	}

	// Tier 2: durable check (cold path)
	if g.durable == nil {
		return true
	}
	fresh, err := g.durable.Claim(key)
	if err != nil {
		// Fail open: a durable-log outage must not block submissions
		if g.metrics != nil {
			g.metrics.ReplayErrors.Inc()
		}
		g.log.Warn().Err(err).Msg("durable replay lookup failed")
		return true
	}
	if !fresh {
		g.recordRejected("durable")
		return false
	}
	return true
}

// Release forgets key after its append failed.
func (g *Guard) Release(key string) {
	g.recent.Remove(key)
	if g.durable == nil {
		return
	}
	if err := g.durable.Release(key); err != nil {
		g.log.Warn().Err(err).Msg("durable replay release failed")
	}
}

// Len returns the number of keys held in memory.
func (g *Guard) Len() int {
	return g.recent.Len()
}

func (g *Guard) recordRejected(tier string) {
	if g.metrics != nil {
		g.metrics.ReplayRejected.WithLabelValues(tier).Inc()
	}
}

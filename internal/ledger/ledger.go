package ledger

import (
	"StarLedger/internal/observability"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultChallengeWindow is how long a signed challenge stays acceptable.
const DefaultChallengeWindow = 300 * time.Second

// Config wires the ledger to its collaborators. Only Verifier is required;
// everything else falls back to an in-memory, wall-clock, unobserved ledger.
type Config struct {
	Clock           Clock
	Verifier        SignatureVerifier
	Store           BlockStore
	Observers       []Observer
	Replay          ReplayGuard
	ChallengeWindow time.Duration
	Metrics         *observability.Metrics
	Logger          *zerolog.Logger
}

// Ledger is the append-only chain. Appends are serialized by a single writer
// lock; readers share a read lock and receive copies.
type Ledger struct {
	mu     sync.RWMutex
	chain  []Block // index == height
	height int64

	clock     Clock
	verifier  SignatureVerifier
	store     BlockStore
	observers []Observer
	replay    ReplayGuard
	window    int64 // seconds
	metrics   *observability.Metrics
	log       zerolog.Logger
}

// New builds a ledger, restores any blocks held by cfg.Store and seals the
// genesis block if the chain is still empty.
func New(ctx context.Context, cfg Config) (*Ledger, error) {
	if cfg.Verifier == nil {
		return nil, fmt.Errorf("ledger: signature verifier is required")
	}

	l := &Ledger{
		chain:     make([]Block, 0, 64),
		height:    -1,
		clock:     cfg.Clock,
		verifier:  cfg.Verifier,
		store:     cfg.Store,
		observers: cfg.Observers,
		replay:    cfg.Replay,
		window:    int64(cfg.ChallengeWindow / time.Second),
		metrics:   cfg.Metrics,
		log:       zerolog.Nop(),
	}
	if l.clock == nil {
		l.clock = SystemClock{}
	}
	if l.window <= 0 {
		l.window = int64(DefaultChallengeWindow / time.Second)
	}
	if cfg.Logger != nil {
		l.log = *cfg.Logger
	}

	if l.store != nil {
		blocks, err := l.store.LoadBlocks(ctx)
		if err != nil {
			return nil, fmt.Errorf("load blocks: %w", err)
		}
		if err := l.restore(blocks); err != nil {
			return nil, err
		}
		if len(blocks) > 0 {
			l.log.Info().Int64("height", l.height).Msg("restored chain from store")
		}
	}

	if err := l.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("initialize chain: %w", err)
	}
	return l, nil
}

// restore loads previously persisted blocks. Every block must re-pass
// validation and link to its predecessor.
func (l *Ledger) restore(blocks []Block) error {
	for i, b := range blocks {
		if b.Height != int64(i) {
			return fmt.Errorf("%w: stored block at position %d has height %d", ErrChainCorruption, i, b.Height)
		}
		if !b.Validate() {
			return fmt.Errorf("%w: stored block %d failed validation", ErrChainCorruption, b.Height)
		}
		prev := SentinelPrevHash
		if i > 0 {
			prev = blocks[i-1].Hash
		}
		if b.PreviousBlockHash != prev {
			return fmt.Errorf("%w: stored block %d does not link to block %d", ErrChainCorruption, b.Height, b.Height-1)
		}
	}

	l.chain = append(l.chain, blocks...)
	l.height = int64(len(l.chain)) - 1
	if l.metrics != nil {
		l.metrics.LedgerHeight.Set(float64(l.height))
	}
	return nil
}

// Initialize seals the genesis block when the chain is empty. It is a no-op
// otherwise.
func (l *Ledger) Initialize(ctx context.Context) error {
	if l.Height() != -1 {
		return nil
	}
	genesis, err := l.AppendBlock(ctx, GenesisMarker{Data: GenesisData})
	if err != nil {
		return err
	}
	l.log.Info().Str("hash", genesis.Hash).Msg("genesis block sealed")
	return nil
}

// Height returns the height of the tip, or -1 for an empty chain.
func (l *Ledger) Height() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.height
}

// AppendBlock seals p on top of the current tip and appends it. The existing
// chain is fully re-validated first; any integrity record refuses the append
// with a *CorruptionError. On every failure the chain is left untouched.
func (l *Ledger) AppendBlock(ctx context.Context, p Payload) (Block, error) {
	start := time.Now()

	// Encode outside the lock: a bad payload never reaches the chain
	body, err := EncodePayload(p)
	if err != nil {
		l.recordRejected("encode")
		return Block{}, fmt.Errorf("encode payload: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Step 1: previous hash
	prevHash := SentinelPrevHash
	if l.height != -1 {
		prevHash = l.chain[l.height].Hash
	}

	// Step 2: seal
	block := seal(body, l.height+1, l.clock.Now(), prevHash)

	// Step 3: never extend a chain that is already inconsistent
	if l.height != -1 {
		if records := l.validateLocked(); len(records) > 0 {
			l.recordRejected("corruption")
			l.log.Error().
				Int("records", len(records)).
				Int64("height", l.height).
				Msg("refusing append on corrupted chain")
			return Block{}, &CorruptionError{Records: records}
		}
	}

	// Step 4: write-ahead
	if l.store != nil {
		if err := l.store.AppendBlock(ctx, block); err != nil {
			l.recordRejected("store")
			if l.metrics != nil {
				l.metrics.StoreErrors.WithLabelValues("append").Inc()
			}
			return Block{}, fmt.Errorf("%w: height %d: %v", ErrPersist, block.Height, err)
		}
	}

	// Step 5: push
	l.chain = append(l.chain, block)
	l.height++

	kind := p.Kind()
	if l.metrics != nil {
		l.metrics.BlocksAppended.WithLabelValues(kind.String()).Inc()
		l.metrics.LedgerHeight.Set(float64(l.height))
		l.metrics.AppendDuration.Observe(time.Since(start).Seconds())
	}
	for _, o := range l.observers {
		o.BlockAppended(block, kind)
	}

	l.log.Debug().
		Int64("height", block.Height).
		Str("hash", block.Hash).
		Str("kind", kind.String()).
		Msg("block appended")

	return block, nil
}

// BlockByHash returns the first block whose hash equals hash.
func (l *Ledger) BlockByHash(hash string) (Block, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, b := range l.chain {
		if b.Hash == hash {
			return b, nil
		}
	}
	return Block{}, fmt.Errorf("%w: hash %s", ErrNotFound, hash)
}

// BlockByHeight returns the block at height.
func (l *Ledger) BlockByHeight(height int64) (Block, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if height < 0 || height > l.height {
		return Block{}, fmt.Errorf("%w: height %d", ErrNotFound, height)
	}
	return l.chain[height], nil
}

// StarsByOwner decodes every block and returns the star claims owned by
// address, in chain order. No match is an empty result, not an error.
func (l *Ledger) StarsByOwner(address string) ([]StarClaim, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stars := make([]StarClaim, 0)
	for _, b := range l.chain {
		claim, ok, err := b.StarClaim()
		if err != nil {
			return nil, err
		}
		if ok && claim.Owner == address {
			stars = append(stars, claim)
		}
	}
	return stars, nil
}

// Blocks returns a copy of the whole chain.
func (l *Ledger) Blocks() []Block {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Block, len(l.chain))
	copy(out, l.chain)
	return out
}

func (l *Ledger) recordRejected(reason string) {
	if l.metrics != nil {
		l.metrics.AppendRejected.WithLabelValues(reason).Inc()
	}
}

package persistence

import (
	"StarLedger/internal/ledger"
	"StarLedger/internal/observability"
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// MirrorWorker copies appended blocks into Postgres in the background while
// another store (LevelDB) is authoritative. It implements ledger.Observer;
// BlockAppended never blocks the ledger. A block dropped on a full channel is
// recovered by the next Backfill.
type MirrorWorker struct {
	db           *sql.DB
	writer       *BlockWriter
	input        chan ledger.Block
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
	log          zerolog.Logger
}

func NewMirrorWorker(
	db *sql.DB,
	bufferSize int,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *MirrorWorker {
	return &MirrorWorker{
		db:           db,
		writer:       NewBlockWriter(db),
		input:        make(chan ledger.Block, bufferSize),
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
		log:          logger,
	}
}

// BlockAppended queues b for mirroring.
func (mw *MirrorWorker) BlockAppended(b ledger.Block, kind ledger.PayloadKind) {
	select {
	case mw.input <- b:
	default:
		if mw.metrics != nil {
			mw.metrics.MirrorDrops.Inc()
		}
		mw.log.Warn().Int64("height", b.Height).Msg("mirror channel full, block deferred to backfill")
	}
}

// Backfill writes blocks in batches; rows already mirrored are skipped.
func (mw *MirrorWorker) Backfill(ctx context.Context, blocks []ledger.Block) error {
	for start := 0; start < len(blocks); start += mw.batchSize {
		end := start + mw.batchSize
		if end > len(blocks) {
			end = len(blocks)
		}
		if err := mw.flush(ctx, blocks[start:end]); err != nil {
			return fmt.Errorf("backfill heights %d-%d: %w", blocks[start].Height, blocks[end-1].Height, err)
		}
	}
	mw.log.Info().Int("blocks", len(blocks)).Msg("mirror backfill complete")
	return nil
}

// Run drains the queue, flushing when a batch is full or the flush timeout
// expires. Blocks until ctx is cancelled.
func (mw *MirrorWorker) Run(ctx context.Context) error {
	batch := make([]ledger.Block, 0, mw.batchSize)

	timer := time.NewTimer(mw.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			// Graceful shutdown: flush remaining
			if len(batch) > 0 {
				if err := mw.flush(context.Background(), batch); err != nil {
					mw.log.Error().Err(err).Msg("final mirror flush failed")
				}
			}
			return ctx.Err()

		case b := <-mw.input:
			batch = append(batch, b)

			if len(batch) >= mw.batchSize {
				if err := mw.flushWithRetry(ctx, batch); err != nil {
					mw.log.Error().Err(err).Msg("mirror flush failed after retries")
				}
				batch = batch[:0]
				timer.Reset(mw.flushTimeout)
			}

		case <-timer.C:
			if len(batch) > 0 {
				if err := mw.flushWithRetry(ctx, batch); err != nil {
					mw.log.Error().Err(err).Msg("mirror timeout flush failed after retries")
				}
				batch = batch[:0]
			}
			timer.Reset(mw.flushTimeout)
		}
	}
}

// flushWithRetry retries with exponential backoff until the write succeeds or
// ctx is cancelled.
func (mw *MirrorWorker) flushWithRetry(ctx context.Context, blocks []ledger.Block) error {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			mw.log.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Int("blocks", len(blocks)).
				Msg("mirror retry")
			select {
			case <-ctx.Done():
				// One last try so shutdown does not lose the batch
				if err := mw.flush(context.Background(), blocks); err != nil {
					return fmt.Errorf("final flush on shutdown failed: %w", err)
				}
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		err := mw.flush(ctx, blocks)
		if err == nil {
			if attempt > 0 {
				mw.log.Info().Int("retries", attempt).Msg("mirror flush succeeded")
			}
			return nil
		}

		if mw.metrics != nil {
			mw.metrics.MirrorErrors.WithLabelValues("retry").Inc()
		}
	}
}

func (mw *MirrorWorker) flush(ctx context.Context, blocks []ledger.Block) error {
	start := time.Now()

	tx, err := mw.db.BeginTx(ctx, nil)
	if err != nil {
		mw.recordError("tx_begin")
		return err
	}
	defer tx.Rollback()

	if err := mw.writer.WriteBlockBatch(ctx, tx, blocks); err != nil {
		mw.recordError("write_blocks")
		return err
	}

	if err := tx.Commit(); err != nil {
		mw.recordError("tx_commit")
		return err
	}

	if mw.metrics != nil {
		mw.metrics.MirrorBatchDur.Observe(time.Since(start).Seconds())
		mw.metrics.MirrorWritten.Add(float64(len(blocks)))
	}
	return nil
}

func (mw *MirrorWorker) recordError(stage string) {
	if mw.metrics != nil {
		mw.metrics.MirrorErrors.WithLabelValues(stage).Inc()
	}
}

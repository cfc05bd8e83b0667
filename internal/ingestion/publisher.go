package ingestion

import (
	"StarLedger/internal/ledger"
	"StarLedger/internal/observability"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

const (
	BlockStreamName    = "STAR_LEDGER_BLOCKS"
	BlockSubjectPrefix = "star.ledger.blocks"
)

// Publisher is the subset of jetstream.JetStream the block publisher needs.
type Publisher interface {
	PublishMsg(ctx context.Context, msg *nats.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// BlockEvent is the outbound message for one sealed block.
type BlockEvent struct {
	EventID     string       `json:"event_id"`
	Kind        string       `json:"kind"`
	Block       ledger.Block `json:"block"`
	Owner       string       `json:"owner,omitempty"`
	PublishedAt time.Time    `json:"published_at"`
}

// BlockPublisher publishes appended blocks to star.ledger.blocks.{kind}.
// It implements ledger.Observer: BlockAppended only enqueues, so a slow or
// absent NATS server never holds the ledger lock. Downstream consumers can
// always recover missed blocks from the HTTP or gRPC API.
type BlockPublisher struct {
	js      Publisher
	queue   chan BlockEvent
	metrics *observability.Metrics
	log     zerolog.Logger
}

func NewBlockPublisher(js Publisher, bufferSize int, metrics *observability.Metrics, logger zerolog.Logger) *BlockPublisher {
	return &BlockPublisher{
		js:      js,
		queue:   make(chan BlockEvent, bufferSize),
		metrics: metrics,
		log:     logger,
	}
}

// BlockAppended enqueues b without blocking; a full queue drops the event.
func (bp *BlockPublisher) BlockAppended(b ledger.Block, kind ledger.PayloadKind) {
	evt := BlockEvent{
		EventID: uuid.NewString(),
		Kind:    kind.String(),
		Block:   b,
	}
	if claim, ok, err := b.StarClaim(); err == nil && ok {
		evt.Owner = claim.Owner
	}

	select {
	case bp.queue <- evt:
	default:
		if bp.metrics != nil {
			bp.metrics.PublishDrops.Inc()
		}
		bp.log.Warn().Int64("height", b.Height).Msg("publish queue full, block event dropped")
	}
}

// Run starts the publisher loop. Blocks until ctx is cancelled.
func (bp *BlockPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case evt := <-bp.queue:
			if err := bp.publish(ctx, evt); err != nil {
				// Non-fatal: consumers can read the chain directly
				bp.log.Warn().
					Err(err).
					Int64("height", evt.Block.Height).
					Msg("block publish failed")
				continue
			}
			if bp.metrics != nil {
				bp.metrics.PublishedBlocks.Inc()
			}
		}
	}
}

func (bp *BlockPublisher) publish(ctx context.Context, evt BlockEvent) error {
	evt.PublishedAt = time.Now().UTC()
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal block event: %w", err)
	}

	msg := nats.NewMsg(fmt.Sprintf("%s.%s", BlockSubjectPrefix, evt.Kind))
	msg.Data = data
	msg.Header.Set("Star-Event-Id", evt.EventID)
	msg.Header.Set("Star-Block-Height", fmt.Sprintf("%d", evt.Block.Height))

	// The block hash doubles as the JetStream dedup ID
	_, err = bp.js.PublishMsg(ctx, msg, jetstream.WithMsgID(evt.Block.Hash))
	return err
}

// Pending returns the number of queued events.
func (bp *BlockPublisher) Pending() int {
	return len(bp.queue)
}

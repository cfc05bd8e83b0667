package ingestion

import (
	"StarLedger/internal/ledger"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

const (
	SubmissionStreamName = "STAR_SUBMISSIONS"
	SubmissionSubject    = "star.submissions.>"
	SubmissionConsumer   = "ledger-submissions"
)

// RawSubmission is an undecoded message from NATS, handed to the worker
// together with its ack controls.
type RawSubmission struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	AckFunc   func() // ACK after the message reached a final outcome
	NakFunc   func() // NAK on a transient failure (will be redelivered)
}

// Submitter is the ledger operation NATS submissions feed.
type Submitter interface {
	SubmitStar(ctx context.Context, address, message, signature string, star json.RawMessage) (ledger.Block, error)
}

// NATSSubscriber consumes star submissions from JetStream.
type NATSSubscriber struct {
	js        jetstream.JetStream
	rawChan   chan<- RawSubmission
	consumers []jetstream.ConsumeContext
	log       zerolog.Logger
}

func NewNATSSubscriber(js jetstream.JetStream, rawChan chan<- RawSubmission, logger zerolog.Logger) *NATSSubscriber {
	return &NATSSubscriber{
		js:      js,
		rawChan: rawChan,
		log:     logger,
	}
}

// Subscribe creates the durable submissions consumer.
// The consumer uses explicit ACK, max_deliver=5, ack_wait=30s.
func (ns *NATSSubscriber) Subscribe(ctx context.Context) error {
	consumer, err := ns.js.CreateOrUpdateConsumer(ctx, SubmissionStreamName, jetstream.ConsumerConfig{
		Durable:       SubmissionConsumer,
		FilterSubject: SubmissionSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", SubmissionConsumer, err)
	}

	consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		raw := RawSubmission{
			Subject:   msg.Subject(),
			Data:      msg.Data(),
			Timestamp: time.Now(),
			AckFunc:   func() { msg.Ack() },
			NakFunc:   func() { msg.Nak() },
		}

		select {
		case ns.rawChan <- raw:
		case <-ctx.Done():
			msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("consume %s: %w", SubmissionConsumer, err)
	}

	ns.consumers = append(ns.consumers, consumeCtx)
	ns.log.Info().
		Str("subject", SubmissionSubject).
		Str("consumer", SubmissionConsumer).
		Msg("subscribed")
	return nil
}

// Stop gracefully stops all consumers.
func (ns *NATSSubscriber) Stop() {
	for _, cc := range ns.consumers {
		cc.Stop()
	}
	ns.log.Info().Msg("NATS subscribers stopped")
}

// SubmissionWorker applies queued submissions to the ledger.
type SubmissionWorker struct {
	submitter Submitter
	rawChan   <-chan RawSubmission
	log       zerolog.Logger
}

func NewSubmissionWorker(submitter Submitter, rawChan <-chan RawSubmission, logger zerolog.Logger) *SubmissionWorker {
	return &SubmissionWorker{
		submitter: submitter,
		rawChan:   rawChan,
		log:       logger,
	}
}

// Run processes submissions until ctx is cancelled or the channel closes.
func (w *SubmissionWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-w.rawChan:
			if !ok {
				return nil
			}
			w.Handle(ctx, raw)
		}
	}
}

// Handle processes one message. Malformed messages and protocol rejections
// are final and acked; store and corruption failures are nak'ed for redelivery.
func (w *SubmissionWorker) Handle(ctx context.Context, raw RawSubmission) {
	sub, err := ParseSubmission(raw.Data)
	if err != nil {
		w.log.Warn().Err(err).Str("subject", raw.Subject).Msg("dropping malformed submission")
		ack(raw)
		return
	}

	block, err := w.submitter.SubmitStar(ctx, sub.Address, sub.Message, sub.Signature, sub.Star)
	switch {
	case err == nil:
		w.log.Info().
			Str("address", sub.Address).
			Int64("height", block.Height).
			Msg("star registered from NATS")
		ack(raw)
	case isTransient(err):
		w.log.Error().Err(err).Str("address", sub.Address).Msg("submission failed, requesting redelivery")
		nak(raw)
	default:
		w.log.Info().
			Err(err).
			Str("address", sub.Address).
			Str("outcome", ledger.SubmissionOutcome(err)).
			Msg("submission rejected")
		ack(raw)
	}
}

func isTransient(err error) bool {
	return errors.Is(err, ledger.ErrPersist) ||
		errors.Is(err, ledger.ErrChainCorruption) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func ack(raw RawSubmission) {
	if raw.AckFunc != nil {
		raw.AckFunc()
	}
}

func nak(raw RawSubmission) {
	if raw.NakFunc != nil {
		raw.NakFunc()
	}
}

// EnsureStreams creates the submission and block streams if they don't exist.
// Streams use FileStorage, retention=Limits, max_age=72h.
func EnsureStreams(ctx context.Context, js jetstream.JetStream, logger zerolog.Logger) error {
	streams := []jetstream.StreamConfig{
		{
			Name:      SubmissionStreamName,
			Subjects:  []string{SubmissionSubject},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:       BlockStreamName,
			Subjects:   []string{BlockSubjectPrefix + ".>"},
			Storage:    jetstream.FileStorage,
			Retention:  jetstream.LimitsPolicy,
			MaxAge:     72 * time.Hour,
			Duplicates: 10 * time.Minute,
			Replicas:   1,
		},
	}

	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		logger.Info().Str("stream", cfg.Name).Msg("ensured stream")
	}
	return nil
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string, logger zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.Name("starledger"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}

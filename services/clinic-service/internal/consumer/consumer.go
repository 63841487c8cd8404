// Package consumer reads clinic events from Kafka and hands each new one to
// a handler. Delivery is at least once; the inbox drops repeats.
package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/segmentio/kafka-go"

	"github.com/md-rashed-zaman/clinicops/libs/kafkax"
)

type Handler func(ctx context.Context, msg kafka.Message) error

// Inbox remembers which events were handled.
type Inbox interface {
	Record(ctx context.Context, eventID, eventType string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

// MessageReader is the part of *kafka.Reader the consumer uses.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Consumer struct {
	reader   MessageReader
	logger   *slog.Logger
	inbox    Inbox
	handler  Handler
	group    string
	maxTries uint
}

type Config struct {
	Brokers string
	GroupID string
	Topic   string
	// MaxTries bounds handler attempts per message. Zero means 5.
	MaxTries uint
}

func New(logger *slog.Logger, inbox Inbox, cfg Config, handler Handler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  kafkax.SplitBrokers(cfg.Brokers),
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return NewWithReader(reader, logger, inbox, cfg, handler)
}

func NewWithReader(reader MessageReader, logger *slog.Logger, inbox Inbox, cfg Config, handler Handler) *Consumer {
	if cfg.MaxTries == 0 {
		cfg.MaxTries = 5
	}
	return &Consumer{
		reader:   reader,
		logger:   logger.With("topic", cfg.Topic, "group", cfg.GroupID),
		inbox:    inbox,
		handler:  handler,
		group:    cfg.GroupID,
		maxTries: cfg.MaxTries,
	}
}

func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		c.process(ctx, msg)
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	ctx, span := kafkax.StartConsumeSpan(ctx, msg, c.group)
	defer span.End()

	meta := kafkax.ExtractEventMeta(msg)
	ok, err := c.inbox.Record(ctx, meta.EventID, meta.EventType)
	if err != nil {
		c.logger.Error("inbox record failed", "err", err, "event_id", meta.EventID)
		span.RecordError(err)
		return
	}
	if !ok {
		c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
		return
	}

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, c.handler(ctx, msg)
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(c.maxTries))
	if err == nil {
		return
	}

	c.logger.Error("handler error", "err", err, "event_id", meta.EventID, "event_type", meta.EventType, "company_id", meta.CompanyID)
	span.RecordError(err)
	if ferr := c.inbox.Forget(context.WithoutCancel(ctx), meta.EventID); ferr != nil {
		c.logger.Warn("inbox forget failed", "err", ferr, "event_id", meta.EventID)
	}
}

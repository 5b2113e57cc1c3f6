// Package consumer reads the topics the service subscribes to and dispatches each message by event
// type.
package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/mentorslots/libs/kafkax"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Handler applies one message. Handlers own their dedupe so it can commit with their writes.
type Handler func(ctx context.Context, meta kafkax.EventMeta, msg kafka.Message) error

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Consumer struct {
	reader   messageReader
	logger   *slog.Logger
	handlers map[string]Handler
	backoff  time.Duration
}

type Config struct {
	Brokers string
	GroupID string
}

// New subscribes the consumer group to every event type in handlers.
func New(logger *slog.Logger, cfg Config, handlers map[string]Handler) *Consumer {
	topics := make([]string, 0, len(handlers))
	for topic := range handlers {
		topics = append(topics, topic)
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     kafkax.SplitBrokers(cfg.Brokers),
		GroupID:     cfg.GroupID,
		GroupTopics: topics,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return &Consumer{reader: reader, logger: logger, handlers: handlers, backoff: time.Second}
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
			case <-time.After(c.backoff):
			}
			continue
		}
		c.dispatch(ctx, msg)
	}
}

func (c *Consumer) dispatch(ctx context.Context, msg kafka.Message) {
	meta := kafkax.ExtractEventMeta(msg)

	ctxMsg := kafkax.ExtractTraceContext(ctx, msg)
	ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
			attribute.String("messaging.message.id", meta.EventID),
		),
	)
	defer span.End()

	handler, ok := c.handlers[meta.EventType]
	if !ok {
		handler, ok = c.handlers[msg.Topic]
	}
	if !ok {
		c.logger.Warn("no handler for event", "event_type", meta.EventType, "topic", msg.Topic)
		return
	}
	if err := handler(ctxSpan, meta, msg); err != nil {
		c.logger.Error("handler error", "err", err, "event_id", meta.EventID, "event_type", meta.EventType)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"

	"nrrp.app/referrals/common/id"
	"nrrp.app/referrals/internal/platform"
)

type EventMessage struct {
	EventID string
	Event   platform.MemberEvent
	TraceID *string
	Attempt int
}

type Producer interface {
	Enqueue(ctx context.Context, msg EventMessage) error
	Close() error
}

type redisProducer struct {
	client *redis.Client
	stream string
	logger *slog.Logger
}

func NewRedisProducer(client *redis.Client, stream string, logger *slog.Logger) Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisProducer{
		client: client,
		stream: stream,
		logger: logger,
	}
}

func (p *redisProducer) Enqueue(ctx context.Context, msg EventMessage) error {
	if err := msg.Event.Validate(); err != nil {
		return fmt.Errorf("enqueue event: %w", err)
	}

	attempt := msg.Attempt
	if attempt <= 0 {
		attempt = 1
	}
	traceID := ""
	if msg.TraceID != nil {
		traceID = *msg.TraceID
	}

	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: eventValues(msg.EventID, msg.Event, attempt, traceID),
	}).Err(); err != nil {
		return fmt.Errorf("enqueue event: %w", err)
	}

	p.logger.InfoContext(ctx, "enqueued member event",
		"event_id", msg.EventID,
		"kind", msg.Event.Kind,
		"invitee_id", msg.Event.InviteeID,
		"attempt", attempt)
	return nil
}

func (p *redisProducer) Close() error {
	return p.client.Close()
}

// StreamPublisher publishes member events onto the stream with a fresh event
// ID and the caller's trace ID.
type StreamPublisher struct {
	producer Producer
}

func NewStreamPublisher(producer Producer) *StreamPublisher {
	return &StreamPublisher{producer: producer}
}

func (p *StreamPublisher) Publish(ctx context.Context, event platform.MemberEvent) error {
	msg := EventMessage{
		EventID: id.NewString(),
		Event:   event,
		Attempt: 1,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		traceID := sc.TraceID().String()
		msg.TraceID = &traceID
	}
	return p.producer.Enqueue(ctx, msg)
}

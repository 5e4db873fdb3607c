package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"nrrp.app/referrals/common/logger"
	"nrrp.app/referrals/internal/metrics"
	"nrrp.app/referrals/internal/queue"
)

type Config struct {
	MaxAttempts int
	// ErrorBackoff is the pause after a failed read. Defaults to one second.
	ErrorBackoff time.Duration
}

type Worker struct {
	consumer Consumer
	handler  EventHandler
	cfg      Config

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func New(consumer Consumer, handler EventHandler, cfg Config) *Worker {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = time.Second
	}
	return &Worker{
		consumer:  consumer,
		handler:   handler,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

func (w *Worker) Run(ctx context.Context) error {
	defer close(w.stoppedCh)

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "referrals.worker",
	})
	slog.InfoContext(ctx, "worker started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			slog.InfoContext(ctx, "worker stopping")
			return nil
		default:
			if err := w.processOneBatch(ctx); err != nil {
				slog.ErrorContext(ctx, "batch processing error", "error", err)
				select {
				case <-ctx.Done():
				case <-w.stopCh:
				case <-time.After(w.cfg.ErrorBackoff):
				}
			}
		}
	}
}

func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.stoppedCh
}

func (w *Worker) processOneBatch(ctx context.Context) error {
	messages, err := w.consumer.Read(ctx)
	if err != nil {
		return fmt.Errorf("reading from stream: %w", err)
	}

	for _, msg := range messages {
		if err := w.processMessageSafe(ctx, msg); err != nil {
			slog.ErrorContext(ctx, "message processing failed",
				"error", err,
				"message_id", msg.ID,
				"invitee_id", msg.Event.InviteeID)
			w.handleFailedMessage(ctx, msg, err)
		}
	}

	return nil
}

func (w *Worker) processMessageSafe(ctx context.Context, msg queue.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in message processing",
				"panic", r,
				"message_id", msg.ID,
				"invitee_id", msg.Event.InviteeID)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.ProcessMessage(ctx, msg)
}

// ProcessMessage applies one event and acks it. Exported so it can be reused
// by the reclaimer.
func (w *Worker) ProcessMessage(ctx context.Context, msg queue.Message) error {
	msgID := msg.ID
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		MessageID: &msgID,
		InviteeID: &msg.Event.InviteeID,
	})

	span := logger.StartSpanFromTraceID(ctx, msg.TraceID, "worker.process_event")
	defer span.End()
	ctx = span.Context()

	slog.InfoContext(ctx, "processing message",
		"kind", msg.Event.Kind,
		"event_id", msg.EventID,
		"attempt", msg.Attempt)

	if err := w.handler.Handle(ctx, msg); err != nil {
		span.RecordError(err)
		metrics.EventsProcessed.WithLabelValues(string(msg.Event.Kind), "failed").Inc()
		// Not acked here; the failure path requeues or dead-letters it.
		return err
	}

	if err := w.consumer.Ack(ctx, msg); err != nil {
		// The event is already applied and applying it again is a no-op.
		slog.WarnContext(ctx, "failed to ACK message",
			"error", err,
			"message_id", msg.ID)
	}
	metrics.EventsProcessed.WithLabelValues(string(msg.Event.Kind), "ok").Inc()
	return nil
}

func (w *Worker) handleFailedMessage(ctx context.Context, msg queue.Message, err error) {
	if errors.Is(err, ErrPermanent) || msg.Attempt >= w.cfg.MaxAttempts {
		slog.ErrorContext(ctx, "sending message to DLQ",
			"message_id", msg.ID,
			"invitee_id", msg.Event.InviteeID,
			"attempts", msg.Attempt,
			"permanent", errors.Is(err, ErrPermanent))
		metrics.EventsProcessed.WithLabelValues(string(msg.Event.Kind), "dead_lettered").Inc()
		if dlqErr := w.consumer.SendDLQ(ctx, msg, err.Error()); dlqErr != nil {
			slog.ErrorContext(ctx, "failed to send to DLQ", "error", dlqErr)
		}
		return
	}

	slog.WarnContext(ctx, "requeuing failed message",
		"message_id", msg.ID,
		"invitee_id", msg.Event.InviteeID,
		"attempt", msg.Attempt)
	metrics.EventsProcessed.WithLabelValues(string(msg.Event.Kind), "requeued").Inc()
	if requeueErr := w.consumer.Requeue(ctx, msg, err.Error()); requeueErr != nil {
		slog.ErrorContext(ctx, "failed to requeue message", "error", requeueErr)
	}
}

package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"nrrp.app/referrals/common/logger"
	"nrrp.app/referrals/internal/ledger"
	"nrrp.app/referrals/internal/platform"
	"nrrp.app/referrals/internal/queue"
	"nrrp.app/referrals/internal/validation"
)

// ErrPermanent marks failures that a retry cannot fix. The worker sends such
// messages straight to the DLQ.
var ErrPermanent = errors.New("permanent event failure")

type EventProcessor struct {
	ledger ledger.Ledger
	engine validation.Engine
	logger *slog.Logger
}

func NewEventProcessor(l ledger.Ledger, engine validation.Engine, logger *slog.Logger) *EventProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventProcessor{
		ledger: l,
		engine: engine,
		logger: logger,
	}
}

func (p *EventProcessor) Handle(ctx context.Context, msg queue.Message) error {
	event := msg.Event
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		InviteeID: &event.InviteeID,
		InviterID: event.InviterID,
	})

	switch event.Kind {
	case platform.EventKindJoined:
		return p.handleJoin(ctx, event)
	case platform.EventKindLeft:
		return p.handleLeave(ctx, event)
	default:
		return fmt.Errorf("%w: unknown event kind %q", ErrPermanent, event.Kind)
	}
}

func (p *EventProcessor) handleJoin(ctx context.Context, event platform.MemberEvent) error {
	result, err := p.ledger.RecordJoin(ctx, ledger.JoinParams{
		InviteeID:   event.InviteeID,
		InviterID:   event.InviterID,
		JoinedAt:    event.At,
		InviteCode:  event.InviteCode,
		InviterName: event.InviterName,
		InviteeName: event.InviteeName,
	})
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidJoin) {
			return fmt.Errorf("%w: %w", ErrPermanent, err)
		}
		return fmt.Errorf("recording join: %w", err)
	}

	p.logger.DebugContext(ctx, "join applied",
		"duplicate", result.Duplicate,
		"status", result.Referral.Status)
	return nil
}

func (p *EventProcessor) handleLeave(ctx context.Context, event platform.MemberEvent) error {
	outcome, err := p.engine.HandleLeave(ctx, event.InviteeID)
	if err != nil {
		return fmt.Errorf("handling leave: %w", err)
	}
	if outcome != nil && outcome.Changed {
		p.logger.InfoContext(ctx, "referral rejected after leave")
	}
	return nil
}

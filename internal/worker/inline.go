package worker

import (
	"context"

	"nrrp.app/referrals/common/id"
	"nrrp.app/referrals/internal/platform"
	"nrrp.app/referrals/internal/queue"
)

// InlinePublisher applies events in the publishing process. Used when no
// Redis stream is configured.
type InlinePublisher struct {
	handler EventHandler
}

func NewInlinePublisher(handler EventHandler) *InlinePublisher {
	return &InlinePublisher{handler: handler}
}

func (p *InlinePublisher) Publish(ctx context.Context, event platform.MemberEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}
	return p.handler.Handle(ctx, queue.Message{
		EventID: id.NewString(),
		Event:   event,
		Attempt: 1,
	})
}

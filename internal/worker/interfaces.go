package worker

import (
	"context"

	"nrrp.app/referrals/internal/queue"
)

// Consumer abstracts the message queue for testability.
type Consumer interface {
	Read(ctx context.Context) ([]queue.Message, error)
	Ack(ctx context.Context, msg queue.Message) error
	Requeue(ctx context.Context, msg queue.Message, errMsg string) error
	SendDLQ(ctx context.Context, msg queue.Message, errMsg string) error
}

// EventHandler applies one member event to the referral ledger.
type EventHandler interface {
	Handle(ctx context.Context, msg queue.Message) error
}

// RunLock guards the validation sweep across processes. Acquire reports
// false when another holder owns the lock.
type RunLock interface {
	Acquire(ctx context.Context) (release func(context.Context), ok bool, err error)
}

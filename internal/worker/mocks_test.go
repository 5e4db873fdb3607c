package worker_test

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"nrrp.app/referrals/internal/platform"
	"nrrp.app/referrals/internal/queue"
	"nrrp.app/referrals/internal/validation"
)

// mockConsumer hands out queued batches, then empty reads.
type mockConsumer struct {
	mu       sync.Mutex
	batches  [][]queue.Message
	readErr  error
	acked    []string
	requeued []string
	dlq      []string
	reasons  map[string]string
}

func newMockConsumer(batches ...[]queue.Message) *mockConsumer {
	return &mockConsumer{batches: batches, reasons: map[string]string{}}
}

func (m *mockConsumer) Read(ctx context.Context) ([]queue.Message, error) {
	m.mu.Lock()
	if m.readErr != nil {
		err := m.readErr
		m.readErr = nil
		m.mu.Unlock()
		return nil, err
	}
	if len(m.batches) > 0 {
		batch := m.batches[0]
		m.batches = m.batches[1:]
		m.mu.Unlock()
		return batch, nil
	}
	m.mu.Unlock()

	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Millisecond):
	}
	return nil, nil
}

func (m *mockConsumer) Ack(_ context.Context, msg queue.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acked = append(m.acked, msg.ID)
	return nil
}

func (m *mockConsumer) Requeue(_ context.Context, msg queue.Message, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requeued = append(m.requeued, msg.ID)
	m.reasons[msg.ID] = errMsg
	return nil
}

func (m *mockConsumer) SendDLQ(_ context.Context, msg queue.Message, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dlq = append(m.dlq, msg.ID)
	m.reasons[msg.ID] = errMsg
	return nil
}

func (m *mockConsumer) snapshot() (acked, requeued, dlq []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.acked...), append([]string(nil), m.requeued...), append([]string(nil), m.dlq...)
}

type mockHandler struct {
	handleFn func(ctx context.Context, msg queue.Message) error
}

func (m *mockHandler) Handle(ctx context.Context, msg queue.Message) error {
	if m.handleFn != nil {
		return m.handleFn(ctx, msg)
	}
	return nil
}

// mockEngine records ValidateAll calls; everything else is unused here.
type mockEngine struct {
	validation.Engine

	mu            sync.Mutex
	calls         int
	validateAllFn func(ctx context.Context, directory platform.MemberDirectory) (*validation.BatchReport, error)
}

func (m *mockEngine) ValidateAll(ctx context.Context, directory platform.MemberDirectory) (*validation.BatchReport, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.validateAllFn != nil {
		return m.validateAllFn(ctx, directory)
	}
	return &validation.BatchReport{RunID: 1}, nil
}

func (m *mockEngine) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockRunLock struct {
	mu       sync.Mutex
	held     bool
	err      error
	released int
}

func (m *mockRunLock) Acquire(context.Context) (func(context.Context), bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, false, m.err
	}
	if m.held {
		return nil, false, nil
	}
	m.held = true
	return func(context.Context) {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.held = false
		m.released++
	}, true, nil
}

func joined(id, invitee string, inviter *string, attempt int) queue.Message {
	return queue.Message{
		ID:      id,
		EventID: "evt-" + id,
		Attempt: attempt,
		Event: platform.MemberEvent{
			Kind:      platform.EventKindJoined,
			InviteeID: invitee,
			InviterID: inviter,
			At:        time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		},
	}
}

func left(id, invitee string) queue.Message {
	return queue.Message{
		ID:      id,
		Attempt: 1,
		Event: platform.MemberEvent{
			Kind:      platform.EventKindLeft,
			InviteeID: invitee,
			At:        time.Date(2024, 6, 2, 12, 0, 0, 0, time.UTC),
		},
	}
}

func strPtr(s string) *string {
	return &s
}

// mockStream serves XPENDING/XCLAIM from fixed entries. Each entry is handed
// out once; later claims come back empty as if another worker took it.
type mockStream struct {
	mu       sync.Mutex
	entries  map[string]redis.XMessage
	order    []string
	claimers []string
}

func newMockStream(entries ...redis.XMessage) *mockStream {
	s := &mockStream{entries: map[string]redis.XMessage{}}
	for _, e := range entries {
		s.entries[e.ID] = e
		s.order = append(s.order, e.ID)
	}
	return s
}

func (m *mockStream) XPendingExt(ctx context.Context, _ *redis.XPendingExtArgs) *redis.XPendingExtCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	var pending []redis.XPendingExt
	for _, id := range m.order {
		if _, ok := m.entries[id]; ok {
			pending = append(pending, redis.XPendingExt{ID: id, Consumer: "dead-worker", Idle: time.Hour, RetryCount: 1})
		}
	}
	cmd := redis.NewXPendingExtCmd(ctx)
	cmd.SetVal(pending)
	return cmd
}

func (m *mockStream) XClaim(ctx context.Context, a *redis.XClaimArgs) *redis.XMessageSliceCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	var claimed []redis.XMessage
	for _, id := range a.Messages {
		if e, ok := m.entries[id]; ok {
			claimed = append(claimed, e)
			delete(m.entries, id)
		}
	}
	m.claimers = append(m.claimers, a.Consumer)
	cmd := redis.NewXMessageSliceCmd(ctx)
	cmd.SetVal(claimed)
	return cmd
}

func (m *mockStream) remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

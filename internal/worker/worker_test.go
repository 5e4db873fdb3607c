package worker_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"nrrp.app/referrals/internal/queue"
	"nrrp.app/referrals/internal/store"
	"nrrp.app/referrals/internal/worker"
)

var _ = Describe("Worker", func() {
	var (
		ctx      context.Context
		cancel   context.CancelFunc
		consumer *mockConsumer
		handler  *mockHandler
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		DeferCleanup(func() { cancel() })
		handler = &mockHandler{}
	})

	start := func(w *worker.Worker) chan error {
		done := make(chan error, 1)
		go func() { done <- w.Run(ctx) }()
		return done
	}

	It("acks handled messages", func() {
		consumer = newMockConsumer([]queue.Message{
			joined("1-0", "101", strPtr("7"), 1),
			joined("2-0", "102", nil, 1),
		})
		w := worker.New(consumer, handler, worker.Config{MaxAttempts: 3})
		done := start(w)

		Eventually(func() []string {
			acked, _, _ := consumer.snapshot()
			return acked
		}).Should(Equal([]string{"1-0", "2-0"}))

		w.Stop()
		Expect(<-done).NotTo(HaveOccurred())
	})

	It("requeues transient failures below the attempt limit", func() {
		consumer = newMockConsumer([]queue.Message{joined("1-0", "101", nil, 1)})
		handler.handleFn = func(context.Context, queue.Message) error {
			return store.ErrUnavailable
		}
		w := worker.New(consumer, handler, worker.Config{MaxAttempts: 3})
		start(w)

		Eventually(func() []string {
			_, requeued, _ := consumer.snapshot()
			return requeued
		}).Should(Equal([]string{"1-0"}))
		w.Stop()

		acked, _, dlq := consumer.snapshot()
		Expect(acked).To(BeEmpty())
		Expect(dlq).To(BeEmpty())
		Expect(consumer.reasons["1-0"]).To(ContainSubstring("unavailable"))
	})

	It("dead-letters messages on their last attempt", func() {
		consumer = newMockConsumer([]queue.Message{joined("1-0", "101", nil, 3)})
		handler.handleFn = func(context.Context, queue.Message) error {
			return store.ErrUnavailable
		}
		w := worker.New(consumer, handler, worker.Config{MaxAttempts: 3})
		start(w)

		Eventually(func() []string {
			_, _, dlq := consumer.snapshot()
			return dlq
		}).Should(Equal([]string{"1-0"}))
		w.Stop()
	})

	It("dead-letters permanent failures on the first attempt", func() {
		consumer = newMockConsumer([]queue.Message{joined("1-0", "101", nil, 1)})
		handler.handleFn = func(context.Context, queue.Message) error {
			return errors.Join(worker.ErrPermanent, errors.New("bad payload"))
		}
		w := worker.New(consumer, handler, worker.Config{MaxAttempts: 5})
		start(w)

		Eventually(func() []string {
			_, _, dlq := consumer.snapshot()
			return dlq
		}).Should(Equal([]string{"1-0"}))
		w.Stop()

		_, requeued, _ := consumer.snapshot()
		Expect(requeued).To(BeEmpty())
	})

	It("turns a handler panic into a retry", func() {
		consumer = newMockConsumer([]queue.Message{joined("1-0", "101", nil, 1)})
		handler.handleFn = func(context.Context, queue.Message) error {
			panic("boom")
		}
		w := worker.New(consumer, handler, worker.Config{MaxAttempts: 3})
		start(w)

		Eventually(func() []string {
			_, requeued, _ := consumer.snapshot()
			return requeued
		}).Should(Equal([]string{"1-0"}))
		w.Stop()
		Expect(consumer.reasons["1-0"]).To(ContainSubstring("panic: boom"))
	})

	It("keeps reading after a read error", func() {
		consumer = newMockConsumer([]queue.Message{joined("1-0", "101", nil, 1)})
		consumer.readErr = errors.New("connection reset")
		w := worker.New(consumer, handler, worker.Config{MaxAttempts: 3, ErrorBackoff: time.Millisecond})
		start(w)

		Eventually(func() []string {
			acked, _, _ := consumer.snapshot()
			return acked
		}).Should(Equal([]string{"1-0"}))
		w.Stop()
	})

	It("returns the context error when cancelled", func() {
		consumer = newMockConsumer()
		w := worker.New(consumer, handler, worker.Config{MaxAttempts: 3})
		done := start(w)

		cancel()
		Eventually(done).Should(Receive(MatchError(context.Canceled)))
	})

	Describe("ProcessMessage", func() {
		It("leaves failed messages unacked for the caller", func() {
			consumer = newMockConsumer()
			handler.handleFn = func(context.Context, queue.Message) error {
				return store.ErrUnavailable
			}
			w := worker.New(consumer, handler, worker.Config{MaxAttempts: 3})

			err := w.ProcessMessage(ctx, joined("9-0", "109", nil, 1))
			Expect(err).To(MatchError(store.ErrUnavailable))
			acked, _, _ := consumer.snapshot()
			Expect(acked).To(BeEmpty())
		})

		It("acks messages that carry a remote trace id", func() {
			consumer = newMockConsumer()
			var seen queue.Message
			handler.handleFn = func(_ context.Context, msg queue.Message) error {
				seen = msg
				return nil
			}
			w := worker.New(consumer, handler, worker.Config{})

			msg := joined("9-0", "109", nil, 1)
			msg.TraceID = "4bf92f3577b34da6a3ce929d0e0e4736"
			Expect(w.ProcessMessage(ctx, msg)).To(Succeed())
			Expect(seen.EventID).To(Equal("evt-9-0"))
			acked, _, _ := consumer.snapshot()
			Expect(acked).To(Equal([]string{"9-0"}))
		})
	})
})

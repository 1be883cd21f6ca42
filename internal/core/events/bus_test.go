package events_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"

	"github.com/frahmantamala/expense-approvals/internal/core/events"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestEvents(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Events Suite")
}

var _ = Describe("EventBus", func() {
	var bus *events.EventBus

	BeforeEach(func() {
		bus = events.NewEventBus(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})))
	})

	It("delivers asynchronously to every subscriber of the type", func() {
		var calls atomic.Int32
		bus.Subscribe(events.EventTypeExpenseApproved, func(ctx context.Context, e events.Event) error {
			calls.Add(1)
			return nil
		})
		bus.Subscribe(events.EventTypeExpenseApproved, func(ctx context.Context, e events.Event) error {
			calls.Add(1)
			return errors.New("mail server down")
		})
		bus.Subscribe(events.EventTypeExpenseRejected, func(ctx context.Context, e events.Event) error {
			calls.Add(100)
			return nil
		})

		evt := events.NewExpenseEvent(events.EventTypeExpenseApproved, events.ExpenseEvent{ExpenseID: 7})
		Expect(bus.Publish(context.Background(), evt)).To(Succeed())
		bus.Wait()

		Expect(calls.Load()).To(Equal(int32(2)))
	})

	It("hands async handlers a context that outlives the publisher", func() {
		ctx, cancel := context.WithCancel(context.Background())
		release := make(chan struct{})
		var handlerErr atomic.Value

		bus.Subscribe(events.EventTypeExpenseSubmitted, func(hctx context.Context, e events.Event) error {
			<-release
			if err := hctx.Err(); err != nil {
				handlerErr.Store(err)
			}
			return nil
		})

		Expect(bus.Publish(ctx, events.NewExpenseEvent(events.EventTypeExpenseSubmitted, events.ExpenseEvent{}))).To(Succeed())
		cancel()
		close(release)
		bus.Wait()

		Expect(handlerErr.Load()).To(BeNil())
	})

	It("survives a panicking handler", func() {
		bus.Subscribe(events.EventTypeExpenseRejected, func(ctx context.Context, e events.Event) error {
			panic("boom")
		})
		Expect(bus.Publish(context.Background(), events.NewExpenseEvent(events.EventTypeExpenseRejected, events.ExpenseEvent{}))).To(Succeed())
		bus.Wait()
	})

	It("stops synchronous delivery at the first failure", func() {
		var second bool
		bus.Subscribe(events.EventTypeUserPasswordIssued, func(ctx context.Context, e events.Event) error {
			return errors.New("first failed")
		})
		bus.Subscribe(events.EventTypeUserPasswordIssued, func(ctx context.Context, e events.Event) error {
			second = true
			return nil
		})

		err := bus.PublishSync(context.Background(), events.NewUserPasswordIssuedEvent(1, "a@b.c", "A", "tmp", events.PasswordReasonCreated))
		Expect(err).To(MatchError(ContainSubstring("first failed")))
		Expect(second).To(BeFalse())
	})

	It("fills the payload of expense events", func() {
		evt := events.NewExpenseEvent(events.EventTypeExpenseStepAdvanced, events.ExpenseEvent{
			ExpenseID:  3,
			Recipients: []int64{5},
		})
		Expect(evt.EventType()).To(Equal(events.EventTypeExpenseStepAdvanced))
		Expect(evt.EventID()).NotTo(BeEmpty())
		Expect(evt.Payload()).To(HaveKeyWithValue("expense_id", int64(3)))
	})
})

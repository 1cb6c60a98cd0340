package events_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-tenant-auth/events"
	"github.com/stretchr/testify/require"
)

func TestInlineSubscriberRunsBeforePublishReturns(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()

	var count int
	bus.SubscribeInline(func(_ context.Context, e events.Event) {
		count++
	}, events.LoginFailed)

	bus.Publish(context.Background(), events.Event{Type: events.LoginFailed, Username: "alice"})
	bus.Publish(context.Background(), events.Event{Type: events.LoginSucceeded, Username: "alice"})

	require.Equal(t, 1, count)
}

func TestAsyncSubscriberReceivesEvents(t *testing.T) {
	bus := events.NewBus(events.WithWorkers(2))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan events.Event, 4)
	bus.Subscribe(func(_ context.Context, e events.Event) {
		received <- e
	})
	bus.Start(ctx)

	bus.Publish(ctx, events.Event{Type: events.Logout, TenantID: "t1", Username: "alice"})

	select {
	case e := <-received:
		require.Equal(t, events.Logout, e.Type)
		require.False(t, e.OccurredAt.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("async subscriber did not receive the event")
	}
	bus.Close()
}

func TestAsyncDeliveryOutlivesRequestContext(t *testing.T) {
	bus := events.NewBus(events.WithWorkers(1))
	bus.Start(context.Background())

	var mu sync.Mutex
	var errs []error
	done := make(chan struct{})
	bus.Subscribe(func(ctx context.Context, _ events.Event) {
		mu.Lock()
		errs = append(errs, ctx.Err())
		mu.Unlock()
		close(done)
	})

	reqCtx, cancel := context.WithCancel(context.Background())
	bus.Publish(reqCtx, events.Event{Type: events.LoginSucceeded})
	cancel()

	<-done
	bus.Close()
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []error{nil}, errs)
}

func TestCloseDrainsQueuedDeliveries(t *testing.T) {
	bus := events.NewBus(events.WithWorkers(1), events.WithQueueSize(16))
	var delivered atomic.Int32
	bus.Subscribe(func(context.Context, events.Event) {
		delivered.Add(1)
	})

	for i := 0; i < 10; i++ {
		bus.Publish(context.Background(), events.Event{Type: events.LoginFailed, Username: "alice"})
	}
	bus.Start(context.Background())
	bus.Close()

	require.Equal(t, int32(10), delivered.Load())

	bus.Publish(context.Background(), events.Event{Type: events.LoginFailed})
	require.Equal(t, int32(10), delivered.Load())
}

func TestFullQueueDropsWithoutBlocking(t *testing.T) {
	bus := events.NewBus(events.WithWorkers(1), events.WithQueueSize(1))
	bus.Subscribe(func(context.Context, events.Event) {})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Publish(context.Background(), events.Event{Type: events.LoginFailed})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full queue")
	}
	bus.Close()
}

func TestHandlerPanicIsRecovered(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()

	var after bool
	bus.SubscribeInline(func(context.Context, events.Event) { panic("boom") })
	bus.SubscribeInline(func(context.Context, events.Event) { after = true })

	require.NotPanics(t, func() {
		bus.Publish(context.Background(), events.Event{Type: events.AccountLocked})
	})
	require.True(t, after)
}

func TestNestedPublishFromInlineHandler(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()

	var locked bool
	bus.SubscribeInline(func(ctx context.Context, e events.Event) {
		bus.Publish(ctx, events.Event{Type: events.AccountLocked, Username: e.Username})
	}, events.LoginFailed)
	bus.SubscribeInline(func(context.Context, events.Event) { locked = true }, events.AccountLocked)

	bus.Publish(context.Background(), events.Event{Type: events.LoginFailed, Username: "alice"})
	require.True(t, locked)
}

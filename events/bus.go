package events

import (
	"context"
	"fmt"
	"hash/fnv"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/jrsteele09/go-tenant-auth/internal/metrics"
	"github.com/rs/zerolog"
)

const (
	defaultWorkers = 4
	channelBuffer  = 256
)

type subscription struct {
	types   []Type
	handler Handler
}

func (s subscription) wants(t Type) bool {
	return len(s.types) == 0 || slices.Contains(s.types, t)
}

type delivery struct {
	ctx     context.Context
	event   Event
	handler Handler
}

// Bus delivers events to inline subscribers synchronously and to async
// subscribers through a fixed set of workers. Events for the same account
// are routed to the same worker so async subscribers see them in order.
type Bus struct {
	log     zerolog.Logger
	nowFunc func() time.Time
	buffer  int

	mu      sync.RWMutex
	inline  []subscription
	async   []subscription
	workers []chan delivery
	closed  bool

	wg        sync.WaitGroup
	startOnce sync.Once
	closeOnce sync.Once
}

type BusOption func(*Bus)

func WithLogger(log zerolog.Logger) BusOption {
	return func(b *Bus) {
		b.log = log
	}
}

func WithWorkers(n int) BusOption {
	return func(b *Bus) {
		if n > 0 {
			b.workers = make([]chan delivery, n)
		}
	}
}

func WithQueueSize(n int) BusOption {
	return func(b *Bus) {
		if n > 0 {
			b.buffer = n
		}
	}
}

func WithNowFunc(now func() time.Time) BusOption {
	return func(b *Bus) {
		b.nowFunc = now
	}
}

func NewBus(options ...BusOption) *Bus {
	b := &Bus{
		log:     zerolog.Nop(),
		nowFunc: time.Now,
		buffer:  channelBuffer,
		workers: make([]chan delivery, defaultWorkers),
	}
	for _, opt := range options {
		opt(b)
	}
	for i := range b.workers {
		b.workers[i] = make(chan delivery, b.buffer)
	}
	return b
}

var _ Publisher = (*Bus)(nil)

// SubscribeInline registers a handler that runs inside Publish, before it
// returns. No types means every type.
func (b *Bus) SubscribeInline(h Handler, types ...Type) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inline = append(b.inline, subscription{types: types, handler: h})
}

// Subscribe registers a handler that runs on a bus worker. No types means every type.
func (b *Bus) Subscribe(h Handler, types ...Type) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.async = append(b.async, subscription{types: types, handler: h})
}

// Start launches the async workers. Workers stop when ctx is cancelled or Close is called.
func (b *Bus) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		for i, ch := range b.workers {
			b.wg.Add(1)
			go b.runWorker(ctx, i, ch)
		}
	})
}

// Close stops accepting async deliveries and waits for queued ones to finish.
func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		for _, ch := range b.workers {
			close(ch)
		}
		b.mu.Unlock()
		b.wg.Wait()
	})
}

// Publish runs inline subscribers and queues the event for async subscribers.
// It never blocks on async subscribers: a full worker queue drops the delivery.
func (b *Bus) Publish(ctx context.Context, e Event) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = b.nowFunc()
	}

	b.mu.RLock()
	inline := slices.Clone(b.inline)
	b.mu.RUnlock()

	for _, sub := range inline {
		if sub.wants(e.Type) {
			b.call(ctx, sub.handler, e)
		}
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	detached := context.WithoutCancel(ctx)
	ch := b.workers[b.shardIndex(e.TenantID+"/"+e.Username)]
	for _, sub := range b.async {
		if !sub.wants(e.Type) {
			continue
		}
		select {
		case ch <- delivery{ctx: detached, event: e, handler: sub.handler}:
		default:
			metrics.EventsDroppedTotal.WithLabelValues(string(e.Type)).Inc()
			b.log.Warn().
				Str("type", string(e.Type)).
				Str("tenant", e.TenantID).
				Str("username", e.Username).
				Msg("event queue full, delivery dropped")
		}
	}
}

func (b *Bus) shardIndex(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(b.workers)))
}

func (b *Bus) runWorker(ctx context.Context, id int, ch <-chan delivery) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-ch:
			if !ok {
				return
			}
			b.call(d.ctx, d.handler, d.event)
		}
	}
}

func (b *Bus) call(ctx context.Context, h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().
				Err(fmt.Errorf("panic: %v", r)).
				Str("type", string(e.Type)).
				Bytes("stack", debug.Stack()).
				Msg("event handler panicked")
		}
	}()
	h(ctx, e)
}

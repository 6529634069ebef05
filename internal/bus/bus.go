package bus

import (
	"sync"
	"sync/atomic"
)

// DefaultCapacity is the ring size used by the host.
const DefaultCapacity = 1024

// Stats is a point-in-time view of the bus counters.
type Stats struct {
	Published uint64 `json:"published"`
	Consumed  uint64 `json:"consumed"`
	Dropped   uint64 `json:"dropped"`
	Pending   int    `json:"pending"`
	Capacity  int    `json:"capacity"`
}

// Bus is a bounded, lossy change-event channel.
//
// Publish never blocks: when the ring is full the oldest pending event is
// discarded. TryConsume never blocks and hands each event out at most once.
// The mutex orders every publish after the table write that preceded it, so a
// consumer that receives an event also observes that write.
type Bus struct {
	mu     sync.Mutex
	buf    []Event
	head   int // next read position
	count  int
	closed bool

	ready chan struct{}

	published atomic.Uint64
	consumed  atomic.Uint64
	dropped   atomic.Uint64
}

// New creates a bus holding up to capacity pending events.
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{
		buf:   make([]Event, capacity),
		ready: make(chan struct{}, 1),
	}
}

// Publish admits ev, evicting the oldest pending event when full.
func (b *Bus) Publish(ev Event) Outcome {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return Failed
	}
	out := Delivered
	if b.count == len(b.buf) {
		b.head = (b.head + 1) % len(b.buf)
		b.count--
		b.dropped.Add(1)
		out = DeliveredWithDrop
	}
	b.buf[(b.head+b.count)%len(b.buf)] = ev
	b.count++
	b.mu.Unlock()

	b.published.Add(1)
	select {
	case b.ready <- struct{}{}:
	default:
	}
	return out
}

// TryConsume removes and returns the oldest pending event, if any.
func (b *Bus) TryConsume() (Event, bool) {
	b.mu.Lock()
	if b.count == 0 {
		b.mu.Unlock()
		return Event{}, false
	}
	ev := b.buf[b.head]
	b.head = (b.head + 1) % len(b.buf)
	b.count--
	b.mu.Unlock()

	b.consumed.Add(1)
	return ev, true
}

// Ready returns a channel that receives a value after events were published.
// Signals coalesce; a receive means "try draining", not "exactly one event".
func (b *Bus) Ready() <-chan struct{} { return b.ready }

// Close makes later publishes fail. Pending events can still be consumed.
func (b *Bus) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
}

// Len returns the number of pending events.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

func (b *Bus) Stats() Stats {
	return Stats{
		Published: b.published.Load(),
		Consumed:  b.consumed.Load(),
		Dropped:   b.dropped.Load(),
		Pending:   b.Len(),
		Capacity:  len(b.buf),
	}
}

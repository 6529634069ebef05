package history

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loykin/tablesync/internal/metrics"
)

const (
	DefaultQueueSize   = 1024
	DefaultSendTimeout = 5 * time.Second
)

// Dispatcher moves events from workers to sinks on its own goroutine so a
// slow or failing sink never stalls a worker loop. Submit never blocks: when
// the queue is full the event is dropped and counted.
type Dispatcher struct {
	ch      chan Event
	sinks   []Sink
	logger  *slog.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	done   chan struct{}

	sent    atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// NewDispatcher starts a dispatcher with a queue of size events.
func NewDispatcher(size int, logger *slog.Logger, sinks ...Sink) *Dispatcher {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		ch:      make(chan Event, size),
		sinks:   append([]Sink(nil), sinks...),
		logger:  logger.With("component", "history"),
		timeout: DefaultSendTimeout,
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Submit enqueues e. It reports false when the event was dropped.
func (d *Dispatcher) Submit(e Event) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	select {
	case d.ch <- e:
		return true
	default:
		d.dropped.Add(1)
		metrics.IncHistoryDropped()
		return false
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for e := range d.ch {
		for _, s := range d.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
			err := s.Send(ctx, e)
			cancel()
			if err != nil {
				d.failed.Add(1)
				d.logger.Warn("history sink send failed", "type", e.Type, "table", e.Change.Table, "error", err)
				continue
			}
			d.sent.Add(1)
		}
	}
}

// Close stops accepting events, drains the queue and closes every sink that
// implements io.Closer. It is safe to call more than once.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return nil
	}
	d.closed = true
	close(d.ch)
	d.mu.Unlock()
	<-d.done

	var errs []error
	for _, s := range d.sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Sent is the number of successful sink deliveries.
func (d *Dispatcher) Sent() uint64 { return d.sent.Load() }

// Dropped is the number of events discarded because the queue was full.
func (d *Dispatcher) Dropped() uint64 { return d.dropped.Load() }

// Failed is the number of sink deliveries that returned an error.
func (d *Dispatcher) Failed() uint64 { return d.failed.Load() }

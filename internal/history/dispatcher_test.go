package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/loykin/tablesync/internal/logger"
)

type memSink struct {
	mu     sync.Mutex
	events []Event
	block  chan struct{}
	err    error
	closed bool
}

func (m *memSink) Send(ctx context.Context, e Event) error {
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, e)
	return nil
}

func (m *memSink) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *memSink) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func TestDispatcherDeliversInOrder(t *testing.T) {
	s := &memSink{}
	d := NewDispatcher(16, logger.Discard(), s)
	for i := 0; i < 5; i++ {
		ok := d.Submit(NewEvent(EventWrite, Change{Worker: "writer", Table: "orders", Index: i, Op: "UPSERT", Version: uint32(i + 1)}))
		if !ok {
			t.Fatalf("submit %d rejected", i)
		}
	}
	if err := d.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if s.len() != 5 {
		t.Fatalf("expected 5 events, got %d", s.len())
	}
	for i, e := range s.events {
		if e.Change.Index != i || e.Type != EventWrite {
			t.Fatalf("event %d out of order: %+v", i, e)
		}
	}
	if !s.closed {
		t.Fatalf("sink should be closed")
	}
	if d.Sent() != 5 {
		t.Fatalf("sent = %d", d.Sent())
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	s := &memSink{block: make(chan struct{})}
	d := NewDispatcher(1, logger.Discard(), s)
	// first event is picked up by the goroutine and blocks in Send,
	// the second fills the queue, the rest are dropped
	var accepted int
	deadline := time.Now().Add(time.Second)
	for d.Dropped() == 0 && time.Now().Before(deadline) {
		if d.Submit(NewEvent(EventObserve, Change{Table: "users"})) {
			accepted++
		}
	}
	if d.Dropped() == 0 {
		t.Fatalf("expected drops with a blocked sink")
	}
	close(s.block)
	_ = d.Close()
	if s.len() != accepted {
		t.Fatalf("delivered %d, accepted %d", s.len(), accepted)
	}
}

func TestDispatcherCountsFailures(t *testing.T) {
	s := &memSink{err: errors.New("boom")}
	d := NewDispatcher(4, logger.Discard(), s)
	d.Submit(NewEvent(EventWrite, Change{Table: "orders"}))
	_ = d.Close()
	if d.Failed() != 1 || d.Sent() != 0 {
		t.Fatalf("failed=%d sent=%d", d.Failed(), d.Sent())
	}
}

func TestDispatcherSubmitAfterClose(t *testing.T) {
	d := NewDispatcher(4, logger.Discard())
	if err := d.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if d.Submit(NewEvent(EventWrite, Change{})) {
		t.Fatalf("submit after close should be rejected")
	}
	// second close is a no-op
	if err := d.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

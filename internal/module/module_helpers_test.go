package module

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/loykin/tablesync/internal/bus"
	"github.com/loykin/tablesync/internal/history"
	"github.com/loykin/tablesync/internal/logger"
	"github.com/loykin/tablesync/internal/table"
)

type runFlag struct{ atomic.Bool }

func (f *runFlag) IsRunning() bool { return f.Load() }

func newRunFlag() *runFlag {
	f := &runFlag{}
	f.Store(true)
	return f
}

// panicStore faults on every order read.
type panicStore struct{ *table.Tables }

func (panicStore) ReadOrder(int) (table.Order, bool) { panic("store corrupted") }

// rejectStore refuses every order write.
type rejectStore struct{ *table.Tables }

func (rejectStore) WriteOrder(idx int, _ table.Order) error {
	return errors.New("read-only store")
}

type recorder struct {
	mu     sync.Mutex
	events []history.Event
}

func (r *recorder) Submit(e history.Event) bool {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	return true
}

func (r *recorder) count(t history.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

type fixture struct {
	tables *table.Tables
	bus    *bus.Bus
	flag   *runFlag
	deps   Deps
}

func newFixture(busCap int) *fixture {
	f := &fixture{
		tables: table.NewTables(),
		bus:    bus.New(busCap),
		flag:   newRunFlag(),
	}
	f.deps = Deps{
		Store:   f.tables,
		Bus:     f.bus,
		Running: f.flag,
		Writer:  WriterConfig{Interval: time.Millisecond},
		Reader:  ReaderConfig{PollInterval: time.Millisecond},
		Logger:  logger.Discard(),
	}
	return f
}

func (f *fixture) controller(t *testing.T, opts ...Option) *Controller {
	t.Helper()
	c, err := NewController(f.deps, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		c.Shutdown()
		f.flag.Store(false)
	})
	return c
}

// heldHandles returns the controller's current handles without taking them.
func heldHandles(c *Controller) *handleGroup {
	c.hMu.Lock()
	defer c.hMu.Unlock()
	return c.handles
}

func joinWithin(t *testing.T, h *workerHandle, d time.Duration) error {
	t.Helper()
	select {
	case <-h.done:
		return h.err
	case <-time.After(d):
		t.Fatalf("%s worker did not exit within %s", h.name, d)
		return nil
	}
}

package module

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/loykin/tablesync/internal/bus"
	"github.com/loykin/tablesync/internal/history"
	"github.com/loykin/tablesync/internal/metrics"
	"github.com/loykin/tablesync/internal/table"
)

// observation is what the reader saw for one consumed event.
type observation struct {
	Event       bus.Event
	RecordID    uint64
	ReadVersion uint32
	Detail      string
}

// reader mirrors change events by reading the records they reference.
type reader struct {
	store   RecordStore
	bus     EventBus
	running RunFlag
	cfg     ReaderConfig
	logger  *slog.Logger
	history ChangeRecorder

	observed uint64
}

func newReader(c *Controller) *reader {
	r := &reader{
		store:   c.deps.Store,
		bus:     c.deps.Bus,
		running: c.deps.Running,
		cfg:     c.deps.Reader,
		logger:  c.logger.With("worker", workerReader),
	}
	if c.deps.ObserveHistory {
		r.history = c.deps.History
	}
	return r
}

func (r *reader) run(ctx context.Context) error {
	r.logger.Info("reader started", "poll_interval", r.cfg.PollInterval)
	t := time.NewTimer(r.cfg.PollInterval)
	defer t.Stop()
	for {
		if ctx.Err() != nil || !r.running.IsRunning() {
			break
		}
		r.drain(ctx)
		t.Reset(r.cfg.PollInterval)
		select {
		case <-ctx.Done():
		case <-r.bus.Ready():
		case <-t.C:
		}
	}
	r.logger.Info("reader stopped", "observed", r.observed)
	return nil
}

// drain consumes until the bus is empty, yielding every YieldEvery events.
func (r *reader) drain(ctx context.Context) int {
	n := 0
	for {
		ev, ok := r.bus.TryConsume()
		if !ok {
			return n
		}
		n++
		if obs, ok := r.process(ev); ok {
			r.emit(obs)
		}
		if n%r.cfg.YieldEvery == 0 {
			runtime.Gosched()
			if ctx.Err() != nil {
				return n
			}
		}
	}
}

func (r *reader) process(ev bus.Event) (observation, bool) {
	idx := int(ev.Index)
	if n, known := tableCap(ev.Table); known && idx >= n {
		r.logger.Warn("event index outside table",
			"table", ev.Table.String(), "idx", ev.Index, "cap", n, "error", table.ErrIndexOutOfRange)
		metrics.IncSkipped("out_of_range")
		return observation{}, false
	}
	switch ev.Table {
	case table.Orders:
		o, ok := r.store.ReadOrder(idx)
		if !ok {
			metrics.IncSkipped("empty")
			return observation{}, false
		}
		return observation{
			Event:       ev,
			RecordID:    o.ID,
			ReadVersion: o.Version,
			Detail:      fmt.Sprintf("qty=%d price=%.1f", o.Qty, o.Price),
		}, true
	case table.Users:
		u, ok := r.store.ReadUser(idx)
		if !ok {
			metrics.IncSkipped("empty")
			return observation{}, false
		}
		return observation{
			Event:       ev,
			RecordID:    u.ID,
			ReadVersion: u.Version,
			Detail:      "name=" + u.NameString(),
		}, true
	default:
		r.logger.Warn("event for unknown table", "table", uint8(ev.Table), "idx", ev.Index)
		metrics.IncSkipped("unknown_table")
		return observation{}, false
	}
}

func tableCap(id table.ID) (int, bool) {
	switch id {
	case table.Orders:
		return table.OrdersCap, true
	case table.Users:
		return table.UsersCap, true
	}
	return 0, false
}

func (r *reader) emit(obs observation) {
	r.observed++
	ev := obs.Event
	metrics.IncObservation(ev.Table.String())
	r.logger.Info("EVT READ",
		"table", ev.Table.String(),
		"idx", ev.Index,
		"op", ev.Op.String(),
		"ver", ev.Version,
		"id", obs.RecordID,
		"read_ver", obs.ReadVersion,
		"detail", obs.Detail,
	)
	if r.history != nil {
		r.history.Submit(history.NewEvent(history.EventObserve, history.Change{
			Worker:   workerReader,
			Table:    ev.Table.String(),
			Index:    int(ev.Index),
			Op:       ev.Op.String(),
			Version:  ev.Version,
			RecordID: obs.RecordID,
			Detail:   obs.Detail,
		}))
	}
}

package module

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/loykin/tablesync/internal/bus"
	"github.com/loykin/tablesync/internal/history"
	"github.com/loykin/tablesync/internal/metrics"
	"github.com/loykin/tablesync/internal/table"
)

// writer generates orders round-robin over the orders table. Each write
// stores version current+1 and is then announced on the bus.
type writer struct {
	store   RecordStore
	bus     EventBus
	running RunFlag
	cfg     WriterConfig
	logger  *slog.Logger
	history ChangeRecorder
	nextID  func() uint64
	rng     *rand.Rand

	rr      uint64
	written uint64
}

func newWriter(c *Controller) *writer {
	return &writer{
		store:   c.deps.Store,
		bus:     c.deps.Bus,
		running: c.deps.Running,
		cfg:     c.deps.Writer,
		logger:  c.logger.With("worker", workerWriter),
		history: c.deps.History,
		nextID:  c.allocID,
		rng:     rand.New(rand.NewPCG(c.deps.Writer.Seed, c.deps.Writer.Seed^0x9e3779b97f4a7c15)), // #nosec G404
	}
}

func (w *writer) run(ctx context.Context) error {
	if w.cfg.Disabled {
		w.logger.Info("writer disabled")
		return nil
	}
	interval := w.cfg.sleep()
	w.logger.Info("writer started", "interval", interval, "high_frequency", w.cfg.HighFrequency)
	start := time.Now()
	t := time.NewTimer(interval)
	defer t.Stop()
	for {
		if ctx.Err() != nil || !w.running.IsRunning() {
			break
		}
		w.step()
		if w.rr%uint64(w.cfg.ProgressEvery) == 0 {
			w.logger.Info(fmt.Sprintf("writer active for %ds, %d orders written", int(time.Since(start).Seconds()), w.written),
				"iterations", w.rr)
		}
		t.Reset(interval)
		select {
		case <-ctx.Done():
		case <-t.C:
		}
	}
	w.logger.Info("writer stopped", "iterations", w.rr, "written", w.written)
	return nil
}

// step performs one iteration. It reports the announced event, or false when
// the store rejected the write. The round-robin position advances either way.
func (w *writer) step() (bus.Event, bool) {
	idx := int(w.rr % table.OrdersCap)
	w.rr++

	o := table.Order{
		ID:    w.nextID(),
		Qty:   int32(1 + w.rng.Uint32()%100),
		Price: float32(10000+w.rng.Uint32()%50000) / 100,
	}
	var cur uint32
	if prev, ok := w.store.ReadOrder(idx); ok {
		cur = prev.Version
	}
	o.Version = cur + 1

	if err := w.store.WriteOrder(idx, o); err != nil {
		w.logger.Error("order write failed", "idx", idx, "error", err)
		metrics.IncWriteError(table.Orders.String())
		return bus.Event{}, false
	}
	w.written++
	metrics.IncWrite(table.Orders.String())

	ev := bus.Event{Table: table.Orders, Index: uint16(idx), Op: bus.OpUpsert, Version: o.Version} // #nosec G115
	out := w.bus.Publish(ev)
	metrics.IncPublish(out.String())
	switch out {
	case bus.DeliveredWithDrop:
		w.logger.Warn("event dropped due to bus overflow", "idx", idx, "ver", o.Version)
	case bus.Failed:
		w.logger.Error("event publish failed", "idx", idx, "ver", o.Version)
	}

	detail := fmt.Sprintf("qty=%d price=%.1f", o.Qty, o.Price)
	w.logger.Info("EVT SNAPSHOT",
		"table", ev.Table.String(),
		"idx", idx,
		"op", ev.Op.String(),
		"ver", o.Version,
		"id", o.ID,
		"detail", detail,
	)
	if w.history != nil {
		w.history.Submit(history.NewEvent(history.EventWrite, history.Change{
			Worker:   workerWriter,
			Table:    ev.Table.String(),
			Index:    idx,
			Op:       ev.Op.String(),
			Version:  o.Version,
			RecordID: o.ID,
			Detail:   detail,
		}))
	}
	return ev, true
}

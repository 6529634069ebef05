package host

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/loykin/tablesync/internal/bus"
	"github.com/loykin/tablesync/internal/history"
	"github.com/loykin/tablesync/internal/metrics"
	"github.com/loykin/tablesync/internal/table"
)

// UserIDBase is added to the slot index to form a peer user's identifier.
const UserIDBase = 2000

var nameTemplates = [...]string{
	"Alice", "Bob", "Charlie", "Diana", "Eve", "Frank", "Grace", "Henry",
	"Ivy", "Jack", "Kate", "Liam", "Mia", "Noah", "Olivia", "Paul",
	"Quinn", "Rachel", "Sam", "Tina", "Uma", "Victor", "Wendy", "Xavier",
}

// UserName is the display name the peer writer stores at idx.
func UserName(idx int) string {
	return fmt.Sprintf("%s_%d", nameTemplates[idx%len(nameTemplates)], idx)
}

// peer is the host's own writer over the users table, sharing the bus with
// the sync module so the reader sees changes from more than one producer.
type peer struct {
	h      *Host
	logger *slog.Logger
	rr     int
}

func newPeer(h *Host) *peer {
	return &peer{h: h, logger: h.cfg.Logger.With("worker", "peer")}
}

func (p *peer) run(ctx context.Context) {
	interval := p.h.cfg.Peer.sleep()
	p.logger.Info("peer writer started", "interval", interval)
	t := time.NewTimer(interval)
	defer t.Stop()
	for p.h.IsRunning() && ctx.Err() == nil {
		p.step()
		t.Reset(interval)
		select {
		case <-ctx.Done():
		case <-t.C:
		}
	}
	p.logger.Info("peer writer stopped", "iterations", p.rr)
}

func (p *peer) step() bus.Event {
	idx := p.rr % table.UsersCap
	p.rr++

	name := UserName(idx)
	var ver uint32 = 1
	if cur, ok := p.h.tables.ReadUser(idx); ok {
		ver = cur.Version + 1
	}
	u := table.User{ID: uint64(UserIDBase + idx), Version: ver, Name: table.EncodeName(name)} // #nosec G115
	if err := p.h.tables.WriteUser(idx, u); err != nil {
		p.logger.Error("user write failed", "idx", idx, "error", err)
		metrics.IncWriteError(table.Users.String())
		return bus.Event{}
	}
	metrics.IncWrite(table.Users.String())

	ev := bus.Event{Table: table.Users, Index: uint16(idx), Op: bus.OpUpsert, Version: ver} // #nosec G115
	out := p.h.bus.Publish(ev)
	metrics.IncPublish(out.String())
	if out == bus.DeliveredWithDrop {
		p.logger.Warn("event dropped due to bus overflow", "idx", idx, "ver", ver)
	}
	p.logger.Debug("EVT SNAPSHOT", "table", ev.Table.String(), "idx", idx, "op", ev.Op.String(),
		"ver", ver, "id", u.ID, "name", name)

	if p.h.cfg.History != nil {
		p.h.cfg.History.Submit(history.NewEvent(history.EventWrite, history.Change{
			Worker:   "peer",
			Table:    ev.Table.String(),
			Index:    idx,
			Op:       ev.Op.String(),
			Version:  ver,
			RecordID: u.ID,
			Detail:   "name=" + name,
		}))
	}
	return ev
}

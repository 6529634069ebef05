package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loykin/tablesync/internal/bus"
	"github.com/loykin/tablesync/internal/history"
	"github.com/loykin/tablesync/internal/table"
)

var (
	ErrAlreadyStarted = errors.New("host already started")
	ErrStopped        = errors.New("host stopped")
)

// Recorder accepts change events for export without blocking.
type Recorder interface {
	Submit(e history.Event) bool
}

type MonitorConfig struct {
	Interval          time.Duration
	DropWarnThreshold uint64
	// ProcessUsage samples CPU and memory of this process on every tick.
	ProcessUsage bool
}

type PeerConfig struct {
	Disabled              bool
	HighFrequency         bool
	Interval              time.Duration
	HighFrequencyInterval time.Duration
}

func (p PeerConfig) sleep() time.Duration {
	if p.HighFrequency {
		return valOr(p.HighFrequencyInterval, 25*time.Millisecond)
	}
	return valOr(p.Interval, 200*time.Millisecond)
}

type Config struct {
	BusCapacity int
	Monitor     MonitorConfig
	Peer        PeerConfig
	Logger      *slog.Logger
	History     Recorder
}

// Host owns the shared tables, the change bus and the process running flag.
// A host is started once; after Stop the flag stays lowered.
type Host struct {
	cfg    Config
	logger *slog.Logger

	tables  *table.Tables
	bus     *bus.Bus
	running atomic.Bool

	mu        sync.Mutex
	started   bool
	stopped   bool
	startedAt time.Time
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func New(cfg Config) *Host {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.BusCapacity <= 0 {
		cfg.BusCapacity = bus.DefaultCapacity
	}
	cfg.Monitor.Interval = valOr(cfg.Monitor.Interval, 10*time.Second)
	if cfg.Monitor.DropWarnThreshold == 0 {
		cfg.Monitor.DropWarnThreshold = 100
	}
	return &Host{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "host"),
		tables: table.NewTables(),
		bus:    bus.New(cfg.BusCapacity),
	}
}

func (h *Host) Tables() *table.Tables { return h.tables }
func (h *Host) Bus() *bus.Bus         { return h.bus }

// IsRunning reports the process running flag.
func (h *Host) IsRunning() bool { return h.running.Load() }

// Start raises the running flag and launches the monitor and the peer writer.
func (h *Host) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return ErrStopped
	}
	if h.started {
		return ErrAlreadyStarted
	}
	h.logger.Info("shared tables ready",
		"orders", table.OrdersCap, "users", table.UsersCap, "bus_capacity", h.cfg.BusCapacity)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.started = true
	h.startedAt = time.Now()
	h.running.Store(true)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		newMonitor(h).run(ctx)
	}()
	if h.cfg.Peer.Disabled {
		h.logger.Info("peer writer disabled")
	} else {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			newPeer(h).run(ctx)
		}()
	}
	return nil
}

// Stop lowers the running flag, waits for host goroutines and closes the bus.
// Publishes after Stop report bus.Failed; pending events stay consumable.
func (h *Host) Stop() {
	h.mu.Lock()
	if !h.started || h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	h.running.Store(false)
	cancel := h.cancel
	h.mu.Unlock()

	cancel()
	h.wg.Wait()
	h.bus.Close()
	h.logger.Info("host stopped", "runtime", h.Uptime().Round(time.Millisecond))
}

// Uptime is the time since Start, or zero when never started.
func (h *Host) Uptime() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.startedAt.IsZero() {
		return 0
	}
	return time.Since(h.startedAt)
}

// Stats summarizes the bus counters for a run.
type Stats struct {
	Running bool          `json:"running"`
	Uptime  time.Duration `json:"uptime_ns"`
	Bus     bus.Stats     `json:"bus"`
}

func (h *Host) Stats() Stats {
	return Stats{Running: h.IsRunning(), Uptime: h.Uptime(), Bus: h.bus.Stats()}
}

func (s Stats) String() string {
	return fmt.Sprintf("published=%d consumed=%d drops=%d pending=%d",
		s.Bus.Published, s.Bus.Consumed, s.Bus.Dropped, s.Bus.Pending)
}

func valOr(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

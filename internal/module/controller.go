package module

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loykin/tablesync/internal/metrics"
)

// Name identifies this module in logs.
const Name = "sync"

// Status reports the controller state using the host's integer codes.
type Status int

const (
	StatusInconsistent Status = -1
	StatusStopped      Status = 0
	StatusRunning      Status = 1
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusStopped:
		return "stopped"
	case StatusInconsistent:
		return "inconsistent"
	default:
		return "unknown"
	}
}

const (
	workerReader = "reader"
	workerWriter = "writer"
)

type signalGroup struct {
	reader context.CancelFunc
	writer context.CancelFunc
}

type handleGroup struct {
	reader *workerHandle
	writer *workerHandle
}

// Controller starts and stops the reader/writer pair on behalf of the host.
//
// Lock order is sigMu then hMu. Both are held only for the instant it takes
// to swap a group in or out; never across a spawn handshake or a join, so
// Status never waits behind a slow worker.
type Controller struct {
	deps   Deps
	logger *slog.Logger

	onFault      FaultHandler
	spawnTimeout time.Duration
	goFn         goFunc

	// record identifiers stay unique across worker restarts
	nextID atomic.Uint64

	// transition serializes Init and Shutdown with each other
	transition sync.Mutex
	contain    *containment

	sigMu   sync.Mutex
	signals *signalGroup

	hMu     sync.Mutex
	handles *handleGroup
}

type Option func(*Controller)

// WithFaultHandler registers a callback invoked when a worker fault is contained.
func WithFaultHandler(fn FaultHandler) Option {
	return func(c *Controller) { c.onFault = fn }
}

// WithSpawnTimeout bounds how long Init waits for each worker to start.
func WithSpawnTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.spawnTimeout = d
		}
	}
}

// WithIDStart sets the first record identifier handed to the writer.
func WithIDStart(n uint64) Option {
	return func(c *Controller) { c.nextID.Store(n) }
}

func NewController(deps Deps, opts ...Option) (*Controller, error) {
	if err := deps.normalize(); err != nil {
		return nil, err
	}
	c := &Controller{
		deps:         deps,
		logger:       deps.Logger.With("module", Name),
		spawnTimeout: DefaultSpawnTimeout,
		goFn:         goRoutine,
	}
	c.nextID.Store(DefaultIDStart)
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func (c *Controller) allocID() uint64 { return c.nextID.Add(1) - 1 }

// Init spawns the reader and then the writer. It fails with ErrAlreadyRunning
// unless the controller is stopped, and with ErrSpawnFailed when a worker
// cannot be started; in that case any started worker is stopped and the
// controller stays stopped.
func (c *Controller) Init() error {
	c.transition.Lock()
	defer c.transition.Unlock()

	switch c.Status() {
	case StatusRunning:
		return ErrAlreadyRunning
	case StatusInconsistent:
		return ErrInconsistent
	}

	c.logger.Info("module init")
	c.contain = newContainment(c.logger, c.onFault)

	rctx, rcancel := context.WithCancel(context.Background())
	wctx, wcancel := context.WithCancel(context.Background())

	rh, err := c.spawn(rctx, workerReader, newReader(c).run)
	if err != nil {
		rcancel()
		wcancel()
		c.logger.Error("module init failed", "worker", workerReader, "error", err)
		metrics.IncTransition("init_failed")
		return err
	}
	wh, err := c.spawn(wctx, workerWriter, newWriter(c).run)
	if err != nil {
		rcancel()
		wcancel()
		if jerr := rh.join(); jerr != nil {
			c.logger.Warn("reader result during aborted init", "error", jerr)
		}
		c.logger.Error("module init failed", "worker", workerWriter, "error", err)
		metrics.IncTransition("init_failed")
		return err
	}

	c.sigMu.Lock()
	c.hMu.Lock()
	c.signals = &signalGroup{reader: rcancel, writer: wcancel}
	c.handles = &handleGroup{reader: rh, writer: wh}
	c.hMu.Unlock()
	c.sigMu.Unlock()

	metrics.SetModuleStatus(int(StatusRunning))
	metrics.IncTransition("init")
	c.logger.Info("module running")
	return nil
}

// Shutdown signals both workers and joins the reader, then the writer.
// Worker faults are logged, not returned. Calling it while stopped is a no-op.
func (c *Controller) Shutdown() {
	c.transition.Lock()
	defer c.transition.Unlock()

	sig, hs := c.take()
	if sig == nil && hs == nil {
		c.logger.Debug("shutdown: module not running")
		return
	}
	c.logger.Info("module shutdown")

	if sig != nil {
		if sig.reader != nil {
			sig.reader()
		}
		if sig.writer != nil {
			sig.writer()
		}
	}
	if hs != nil {
		c.joinLogged(hs.reader)
		c.joinLogged(hs.writer)
	}

	metrics.SetModuleStatus(int(StatusStopped))
	metrics.IncTransition("shutdown")
	c.logger.Info("module stopped")
}

// EmergencyShutdown forgets both workers without signalling or joining them.
// They keep running until the host running flag clears.
func (c *Controller) EmergencyShutdown() {
	sig, hs := c.take()
	if sig == nil && hs == nil {
		return
	}
	metrics.SetModuleStatus(int(StatusStopped))
	metrics.IncTransition("emergency_shutdown")
	c.logger.Warn("module emergency shutdown: workers detached")
}

// Status is Running when both groups are held, Stopped when neither is and
// Inconsistent otherwise.
func (c *Controller) Status() Status {
	c.sigMu.Lock()
	c.hMu.Lock()
	hasSig, hasHandles := c.signals != nil, c.handles != nil
	c.hMu.Unlock()
	c.sigMu.Unlock()

	switch {
	case hasSig && hasHandles:
		return StatusRunning
	case !hasSig && !hasHandles:
		return StatusStopped
	default:
		return StatusInconsistent
	}
}

// WorkerState describes one held worker.
type WorkerState struct {
	Name  string `json:"name"`
	Alive bool   `json:"alive"`
}

// Workers lists the held workers and whether their goroutines are still
// alive. A worker that faulted stays held until Shutdown.
func (c *Controller) Workers() []WorkerState {
	c.hMu.Lock()
	hs := c.handles
	c.hMu.Unlock()
	if hs == nil {
		return nil
	}
	out := make([]WorkerState, 0, 2)
	for _, h := range []*workerHandle{hs.reader, hs.writer} {
		if h != nil {
			out = append(out, WorkerState{Name: h.name, Alive: !h.exited()})
		}
	}
	return out
}

// take removes both groups from the controller in one step.
func (c *Controller) take() (*signalGroup, *handleGroup) {
	c.sigMu.Lock()
	c.hMu.Lock()
	sig, hs := c.signals, c.handles
	c.signals, c.handles = nil, nil
	c.hMu.Unlock()
	c.sigMu.Unlock()
	return sig, hs
}

func (c *Controller) joinLogged(h *workerHandle) {
	if h == nil {
		return
	}
	err := h.join()
	if err == nil {
		return
	}
	var fe *FaultError
	if errors.As(err, &fe) {
		c.logger.Warn("worker ended with fault", "worker", h.name, "fault", fe.Value)
		return
	}
	c.logger.Warn("worker ended with error", "worker", h.name, "error", err)
}

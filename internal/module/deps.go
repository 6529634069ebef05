package module

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/loykin/tablesync/internal/bus"
	"github.com/loykin/tablesync/internal/history"
	"github.com/loykin/tablesync/internal/table"
)

// RecordStore is the shared table capability the workers depend on.
// Reads return whole snapshots; a missing or empty slot reports false.
type RecordStore interface {
	ReadOrder(idx int) (table.Order, bool)
	WriteOrder(idx int, o table.Order) error
	ReadUser(idx int) (table.User, bool)
}

// EventBus is the bounded change-event channel shared with the host.
type EventBus interface {
	Publish(ev bus.Event) bus.Outcome
	TryConsume() (bus.Event, bool)
	Ready() <-chan struct{}
}

// RunFlag reports whether the host is still running.
type RunFlag interface {
	IsRunning() bool
}

// ChangeRecorder accepts change events for export. Submit must not block.
type ChangeRecorder interface {
	Submit(e history.Event) bool
}

const (
	DefaultWriterInterval        = 150 * time.Millisecond
	DefaultHighFrequencyInterval = 15 * time.Millisecond
	DefaultProgressEvery         = 50
	DefaultPollInterval          = 2 * time.Millisecond
	DefaultYieldEvery            = 10
	DefaultSpawnTimeout          = 2 * time.Second
	DefaultIDStart               = 8000
	DefaultSeed                  = 42
)

// WriterConfig is read once when the writer starts.
type WriterConfig struct {
	Disabled              bool
	HighFrequency         bool
	Interval              time.Duration
	HighFrequencyInterval time.Duration
	ProgressEvery         int
	Seed                  uint64
}

func (c WriterConfig) sleep() time.Duration {
	if c.HighFrequency {
		return valOr(c.HighFrequencyInterval, DefaultHighFrequencyInterval)
	}
	return valOr(c.Interval, DefaultWriterInterval)
}

type ReaderConfig struct {
	PollInterval time.Duration
	YieldEvery   int
}

// Deps wires the controller to its collaborators. Store, Bus and Running are
// required; History is optional.
type Deps struct {
	Store   RecordStore
	Bus     EventBus
	Running RunFlag

	Writer WriterConfig
	Reader ReaderConfig

	Logger *slog.Logger

	History ChangeRecorder
	// ObserveHistory also exports reader observations, not only writes.
	ObserveHistory bool
}

var ErrMissingDependency = errors.New("missing dependency")

func (d *Deps) normalize() error {
	switch {
	case d.Store == nil:
		return fmt.Errorf("%w: record store", ErrMissingDependency)
	case d.Bus == nil:
		return fmt.Errorf("%w: event bus", ErrMissingDependency)
	case d.Running == nil:
		return fmt.Errorf("%w: running flag", ErrMissingDependency)
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Writer.ProgressEvery <= 0 {
		d.Writer.ProgressEvery = DefaultProgressEvery
	}
	if d.Writer.Seed == 0 {
		d.Writer.Seed = DefaultSeed
	}
	d.Reader.PollInterval = valOr(d.Reader.PollInterval, DefaultPollInterval)
	if d.Reader.YieldEvery <= 0 {
		d.Reader.YieldEvery = DefaultYieldEvery
	}
	return nil
}

func valOr(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

package history

import (
	"context"
	"time"
)

// EventType defines the kind of change event.
type EventType string

const (
	// EventWrite is emitted by a writer after a record is committed and announced.
	EventWrite EventType = "write"
	// EventObserve is emitted by the reader when it mirrors a committed record.
	EventObserve EventType = "observe"
)

// Change describes one record-level change as seen by a worker.
type Change struct {
	Worker   string `json:"worker"`
	Table    string `json:"table"`
	Index    int    `json:"index"`
	Op       string `json:"op"`
	Version  uint32 `json:"version"`
	RecordID uint64 `json:"record_id"`
	Detail   string `json:"detail,omitempty"`
}

// Event represents a change event to be exported to external systems.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Change     Change    `json:"change"`
}

// NewEvent stamps c with the current UTC time.
func NewEvent(t EventType, c Change) Event {
	return Event{Type: t, OccurredAt: time.Now().UTC(), Change: c}
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

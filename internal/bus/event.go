package bus

import (
	"fmt"

	"github.com/loykin/tablesync/internal/table"
)

// Op is the kind of change an event announces.
type Op uint8

const (
	OpUpsert Op = 1
	OpDelete Op = 2
)

func (o Op) String() string {
	switch o {
	case OpUpsert:
		return "UPSERT"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// Event is a change notification. It references a slot; the record itself is
// read from the table by the consumer.
type Event struct {
	Table   table.ID `json:"table_id"`
	Index   uint16   `json:"index"`
	Op      Op       `json:"op"`
	Version uint32   `json:"version"`
}

func (e Event) String() string {
	return fmt.Sprintf("table=%d idx=%d op=%s ver=%d", e.Table, e.Index, e.Op, e.Version)
}

// Outcome reports how Publish admitted an event.
type Outcome int

const (
	Delivered Outcome = iota
	// DeliveredWithDrop means the oldest pending event was discarded to make room.
	DeliveredWithDrop
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case DeliveredWithDrop:
		return "delivered_with_drop"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

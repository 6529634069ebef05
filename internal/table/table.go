package table

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// ID identifies one of the shared record arrays.
type ID uint8

const (
	Orders ID = 1
	Users  ID = 2
)

func (id ID) String() string {
	switch id {
	case Orders:
		return "orders"
	case Users:
		return "users"
	default:
		return "unknown"
	}
}

// Capacity constants for the shared arrays.
const (
	OrdersCap = 128
	UsersCap  = 64
)

// ErrIndexOutOfRange is returned when a slot index falls outside a table.
var ErrIndexOutOfRange = errors.New("index out of range")

// Versioned is implemented by every record kind stored in a Table.
// A zero RecordID marks an empty slot.
type Versioned interface {
	RecordID() uint64
	RecordVersion() uint32
}

// Table is a fixed-capacity array of versioned records.
//
// Each slot holds a pointer to an immutable record value. Writers always
// publish a freshly built value with a single atomic store, so a reader never
// observes a mix of two writes. atomic.Pointer stores are sequentially
// consistent, which gives the release edge required before an event about the
// write is published.
type Table[R Versioned] struct {
	id    ID
	slots []atomic.Pointer[R]
}

// New creates a table with the given capacity.
func New[R Versioned](id ID, capacity int) *Table[R] {
	return &Table[R]{id: id, slots: make([]atomic.Pointer[R], capacity)}
}

func (t *Table[R]) ID() ID { return t.id }

func (t *Table[R]) Cap() int { return len(t.slots) }

// Read returns a snapshot of the record at idx. ok is false when the index is
// out of range or the slot is empty.
func (t *Table[R]) Read(idx int) (R, bool) {
	var zero R
	if idx < 0 || idx >= len(t.slots) {
		return zero, false
	}
	p := t.slots[idx].Load()
	if p == nil || (*p).RecordID() == 0 {
		return zero, false
	}
	return *p, true
}

// Write replaces the record at idx with rec.
func (t *Table[R]) Write(idx int, rec R) error {
	if idx < 0 || idx >= len(t.slots) {
		return fmt.Errorf("%s[%d]: %w", t.id, idx, ErrIndexOutOfRange)
	}
	v := rec
	t.slots[idx].Store(&v)
	return nil
}

// Delete empties the slot at idx. The next write to the slot starts a new
// version sequence.
func (t *Table[R]) Delete(idx int) error {
	if idx < 0 || idx >= len(t.slots) {
		return fmt.Errorf("%s[%d]: %w", t.id, idx, ErrIndexOutOfRange)
	}
	t.slots[idx].Store(nil)
	return nil
}

// Tables groups the orders and users arrays shared with the host.
type Tables struct {
	Orders *Table[Order]
	Users  *Table[User]
}

// NewTables allocates both arrays at their fixed capacities.
func NewTables() *Tables {
	return &Tables{
		Orders: New[Order](Orders, OrdersCap),
		Users:  New[User](Users, UsersCap),
	}
}

func (t *Tables) ReadOrder(idx int) (Order, bool)   { return t.Orders.Read(idx) }
func (t *Tables) WriteOrder(idx int, o Order) error { return t.Orders.Write(idx, o) }
func (t *Tables) ReadUser(idx int) (User, bool)     { return t.Users.Read(idx) }
func (t *Tables) WriteUser(idx int, u User) error   { return t.Users.Write(idx, u) }
func (t *Tables) DeleteOrder(idx int) error         { return t.Orders.Delete(idx) }
func (t *Tables) DeleteUser(idx int) error          { return t.Users.Delete(idx) }

package table

import (
	"strings"
	"unicode/utf8"
)

// NameSize is the size of the bounded user name field, terminator included.
const NameSize = 32

// Order is a versioned order record.
type Order struct {
	ID      uint64  `json:"id"`
	Version uint32  `json:"version"`
	Qty     int32   `json:"qty"`
	Price   float32 `json:"price"`
}

func (o Order) RecordID() uint64      { return o.ID }
func (o Order) RecordVersion() uint32 { return o.Version }

// User is a versioned user record with a bounded, NUL-terminated name.
type User struct {
	ID      uint64         `json:"id"`
	Version uint32         `json:"version"`
	Name    [NameSize]byte `json:"-"`
}

func (u User) RecordID() uint64      { return u.ID }
func (u User) RecordVersion() uint32 { return u.Version }

// NameString decodes the bounded name field.
func (u User) NameString() string { return DecodeName(u.Name) }

// EncodeName stores s into a bounded name field. At most NameSize-1 bytes are
// kept so the field stays NUL-terminated; truncation never splits a rune.
func EncodeName(s string) [NameSize]byte {
	var out [NameSize]byte
	n := len(s)
	if n > NameSize-1 {
		n = NameSize - 1
		for n > 0 && !utf8.RuneStart(s[n]) {
			n--
		}
	}
	copy(out[:n], s[:n])
	return out
}

// DecodeName returns the text up to the first NUL byte.
func DecodeName(b [NameSize]byte) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return strings.ToValidUTF8(string(b[:n]), "\uFFFD")
}

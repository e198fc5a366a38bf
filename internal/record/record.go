package record

import (
	"bytes"
	"errors"
)

var (
	ErrDecode      = errors.New("record: cannot decode record payload")
	ErrUnknownKind = errors.New("record: unknown record kind tag")
)

// Record is the opaque unit a leaf page stores. Implementations carry
// their node key and, when the resource assigns them, a dewey id.
type Record interface {
	NodeKey() uint64
	// DeweyID returns the hierarchical order key, or nil when the
	// resource does not store dewey ids.
	DeweyID() []byte
}

// Deleted marks tombstones. Leaf pages, combined views included, return
// the tombstone itself; the read transaction maps it to absence.
type Deleted interface {
	Record
	Deleted() bool
}

// IsDeleted reports whether r is a tombstone.
func IsDeleted(r Record) bool {
	d, ok := r.(Deleted)
	return ok && d.Deleted()
}

// Data is the plain payload-carrying record.
type Data struct {
	Key     uint64
	ID      []byte
	Payload []byte
}

func (d *Data) NodeKey() uint64 { return d.Key }
func (d *Data) DeweyID() []byte { return d.ID }

// Tombstone records a deletion of a node key in some revision.
type Tombstone struct {
	Key uint64
	ID  []byte
}

func (t *Tombstone) NodeKey() uint64 { return t.Key }
func (t *Tombstone) DeweyID() []byte { return t.ID }
func (t *Tombstone) Deleted() bool   { return true }

// Equal compares two records structurally.
func Equal(a, b Record) bool {
	if a.NodeKey() != b.NodeKey() || IsDeleted(a) != IsDeleted(b) {
		return false
	}
	if !bytes.Equal(a.DeweyID(), b.DeweyID()) {
		return false
	}
	da, aok := a.(*Data)
	db, bok := b.(*Data)
	if aok != bok {
		return false
	}
	if aok {
		return bytes.Equal(da.Payload, db.Payload)
	}
	return true
}

package page

import (
	"fmt"

	"github.com/sirixdb/sirix-go/internal/codec"
)

// IndirectPage is one interior trie node: a fixed array of references
// routing a level key to the next level. Immutable on disk; a writer
// clones before touching a slot.
//
// Layout:
//
//	i32     fanout
//	repeat: u64 page key (NullID when the slot is empty)
type IndirectPage struct {
	refs []*Reference
}

func NewIndirectPage(fanout int) *IndirectPage {
	refs := make([]*Reference, fanout)
	for i := range refs {
		refs[i] = NewReference()
	}
	return &IndirectPage{refs: refs}
}

func (p *IndirectPage) Kind() Kind  { return KindIndirect }
func (p *IndirectPage) Fanout() int { return len(p.refs) }

func (p *IndirectPage) RefAt(offset uint64) (*Reference, error) {
	if offset >= uint64(len(p.refs)) {
		return nil, fmt.Errorf("%w: offset %d beyond fanout %d", ErrUnsupportedKey, offset, len(p.refs))
	}
	return p.refs[offset], nil
}

// SetRefAt replaces a slot. Callers must hold a writable clone.
func (p *IndirectPage) SetRefAt(offset uint64, ref *Reference) error {
	if offset >= uint64(len(p.refs)) {
		return fmt.Errorf("%w: offset %d beyond fanout %d", ErrUnsupportedKey, offset, len(p.refs))
	}
	p.refs[offset] = ref
	return nil
}

// Clone copies the reference array for copy-on-write descent.
func (p *IndirectPage) Clone() *IndirectPage {
	refs := make([]*Reference, len(p.refs))
	for i, r := range p.refs {
		nr := NewReference()
		nr.SetKey(r.Key())
		nr.SetIndexType(r.IndexType())
		refs[i] = nr
	}
	return &IndirectPage{refs: refs}
}

func (p *IndirectPage) Serialize(out *codec.Buffer) error {
	out.WriteI32(int32(len(p.refs)))
	for _, ref := range p.refs {
		out.WriteU64(ref.Key())
	}
	return nil
}

func deserializeIndirect(in *codec.Buffer) (*IndirectPage, error) {
	fanout, err := in.ReadI32()
	if err != nil {
		return nil, fmt.Errorf("%w: indirect fanout: %v", ErrCorrupt, err)
	}
	if fanout <= 0 || int(fanout)*8 > in.Remaining() {
		return nil, fmt.Errorf("%w: indirect fanout %d", ErrCorrupt, fanout)
	}
	p := NewIndirectPage(int(fanout))
	for i := range p.refs {
		key, err := in.ReadU64()
		if err != nil {
			return nil, fmt.Errorf("%w: indirect ref: %v", ErrCorrupt, err)
		}
		if key != NullID {
			p.refs[i].SetKey(key)
		}
	}
	return p, nil
}

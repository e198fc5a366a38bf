package page

import (
	"fmt"

	"github.com/sirixdb/sirix-go/internal/codec"
)

// UberPage is the global root. It references the indirect tree whose
// leaves are revision root pages and fixes the per-subtree fanout
// exponent tables.
type UberPage struct {
	latestRevision  int32
	revisionRootRef *Reference

	// revisionExps shapes the trie over revision numbers; subtreeExps
	// shapes the trie of each index type below a revision root.
	revisionExps []uint8
	subtreeExps  [IndexTypeCount][]uint8
}

func NewUberPage() *UberPage {
	p := &UberPage{
		latestRevision:  -1,
		revisionRootRef: NewReference(),
		revisionExps:    append([]uint8(nil), DefaultFanoutExponents...),
	}
	for i := range p.subtreeExps {
		p.subtreeExps[i] = append([]uint8(nil), DefaultFanoutExponents...)
	}
	return p
}

func (p *UberPage) Kind() Kind { return KindUber }

// LatestRevision is the highest committed revision, -1 on a fresh
// resource.
func (p *UberPage) LatestRevision() int32          { return p.latestRevision }
func (p *UberPage) SetLatestRevision(r int32)      { p.latestRevision = r }
func (p *UberPage) RevisionRootRef() *Reference    { return p.revisionRootRef }
func (p *UberPage) RevisionPageCountExps() []uint8 { return p.revisionExps }

// PageCountExponents returns the per-level shift table of one subtree's
// indirect trie.
func (p *UberPage) PageCountExponents(t IndexType) ([]uint8, error) {
	if int(t) >= len(p.subtreeExps) {
		return nil, fmt.Errorf("%w: index type %d", ErrUnsupportedKey, t)
	}
	return p.subtreeExps[t], nil
}

func (p *UberPage) Serialize(out *codec.Buffer) error {
	out.WriteI32(p.latestRevision)
	out.WriteU64(p.revisionRootRef.Key())
	writeExps(out, p.revisionExps)
	for _, exps := range p.subtreeExps {
		writeExps(out, exps)
	}
	return nil
}

func deserializeUber(in *codec.Buffer) (*UberPage, error) {
	p := NewUberPage()
	var err error
	if p.latestRevision, err = in.ReadI32(); err != nil {
		return nil, fmt.Errorf("%w: latest revision: %v", ErrCorrupt, err)
	}
	key, err := in.ReadU64()
	if err != nil {
		return nil, fmt.Errorf("%w: revision root ref: %v", ErrCorrupt, err)
	}
	if key != NullID {
		p.revisionRootRef.SetKey(key)
	}
	if p.revisionExps, err = readExps(in); err != nil {
		return nil, err
	}
	for i := range p.subtreeExps {
		if p.subtreeExps[i], err = readExps(in); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func writeExps(out *codec.Buffer, exps []uint8) {
	out.WriteByte(uint8(len(exps)))
	out.Write(exps)
}

func readExps(in *codec.Buffer) ([]uint8, error) {
	n, err := in.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: exponent table: %v", ErrCorrupt, err)
	}
	raw, err := in.Next(int(n))
	if err != nil {
		return nil, fmt.Errorf("%w: exponent table: %v", ErrCorrupt, err)
	}
	return append([]uint8(nil), raw...), nil
}

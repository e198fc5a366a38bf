package page

import (
	"fmt"

	"github.com/sirixdb/sirix-go/internal/codec"
)

// Page is the closed family of page variants. The kind tag written by
// Serialize is the single dispatch point; there is no open registration.
type Page interface {
	Kind() Kind
	Serialize(out *codec.Buffer) error
}

// Serialize frames a page image: one kind byte, then the kind-specific
// body.
func Serialize(out *codec.Buffer, p Page) error {
	if err := out.WriteByte(byte(p.Kind())); err != nil {
		return err
	}
	return p.Serialize(out)
}

// Deserialize reads one framed page image.
func Deserialize(in *codec.Buffer, rc ResourceContext) (Page, error) {
	tag, err := in.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: kind tag: %v", ErrCorrupt, err)
	}
	switch Kind(tag) {
	case KindUber:
		return deserializeUber(in)
	case KindRevisionRoot:
		return deserializeRevisionRoot(in)
	case KindIndirect:
		return deserializeIndirect(in)
	case KindKeyValueLeaf:
		return deserializeKeyValueLeaf(in, rc)
	case KindOverflow:
		return deserializeOverflow(in)
	case KindName:
		return deserializeName(in)
	default:
		return nil, fmt.Errorf("%w: unknown kind tag %d", ErrCorrupt, tag)
	}
}

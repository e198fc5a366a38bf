package page

import (
	"fmt"

	"github.com/sirixdb/sirix-go/internal/codec"
)

// OverflowPage stores one record whose serialized form does not fit the
// inline threshold. Write-once; committed overflow pages are never
// rewritten, later leaves carry only the reference.
//
// Layout:
//
//	i32   len
//	bytes data
type OverflowPage struct {
	data []byte
}

func NewOverflowPage(data []byte) *OverflowPage {
	return &OverflowPage{data: data}
}

func (p *OverflowPage) Kind() Kind   { return KindOverflow }
func (p *OverflowPage) Data() []byte { return p.data }

func (p *OverflowPage) Serialize(out *codec.Buffer) error {
	out.WriteI32(int32(len(p.data)))
	out.Write(p.data)
	return nil
}

func deserializeOverflow(in *codec.Buffer) (*OverflowPage, error) {
	n, err := in.ReadI32()
	if err != nil {
		return nil, fmt.Errorf("%w: overflow length: %v", ErrCorrupt, err)
	}
	if n < 0 || int(n) > in.Remaining() {
		return nil, fmt.Errorf("%w: overflow length %d exceeds image", ErrCorrupt, n)
	}
	raw, err := in.Next(int(n))
	if err != nil {
		return nil, fmt.Errorf("%w: overflow payload: %v", ErrCorrupt, err)
	}
	data := make([]byte, n)
	copy(data, raw)
	return &OverflowPage{data: data}, nil
}

package page

import "github.com/sirixdb/sirix-go/internal/record"

// OverflowReader resolves an overflow reference to its page. The page
// read transaction implements it; leaves call back through it when a
// lookup hits an overflow slot.
type OverflowReader interface {
	ReadOverflow(ref *Reference) (*OverflowPage, error)
}

// ResourceContext carries the per-resource capabilities a page needs to
// encode and decode itself. Passed in at construction and deserialization
// so pages never reach for global state.
type ResourceContext struct {
	Serializer    record.Serializer
	StoreDeweyIDs bool
	Overflow      OverflowReader
}

// DeweyCodec probes the serializer for delta-coded dewey id support.
// Dewey ids are only serialized when the resource stores them and the
// serializer can delta-code them.
func (rc ResourceContext) DeweyCodec() (record.DeweyCapable, bool) {
	if !rc.StoreDeweyIDs {
		return nil, false
	}
	dc, ok := rc.Serializer.(record.DeweyCapable)
	return dc, ok
}

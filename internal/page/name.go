package page

import (
	"fmt"
	"sort"

	"github.com/sirixdb/sirix-go/internal/codec"
)

// NamePage holds the per-kind name dictionaries of one revision: name key
// to bytes plus a reference count, one dictionary per record kind.
type NamePage struct {
	dicts map[uint8]map[int32]*nameEntry
}

type nameEntry struct {
	name  []byte
	count uint32
}

func NewNamePage() *NamePage {
	return &NamePage{dicts: make(map[uint8]map[int32]*nameEntry)}
}

func (p *NamePage) Kind() Kind { return KindName }

func (p *NamePage) SetName(key int32, kind uint8, name []byte) {
	dict, ok := p.dicts[kind]
	if !ok {
		dict = make(map[int32]*nameEntry)
		p.dicts[kind] = dict
	}
	if e, ok := dict[key]; ok {
		e.count++
		return
	}
	dict[key] = &nameEntry{name: append([]byte(nil), name...), count: 1}
}

// RawName returns the stored bytes for a name key, nil when absent.
func (p *NamePage) RawName(key int32, kind uint8) []byte {
	if e, ok := p.dicts[kind][key]; ok {
		return e.name
	}
	return nil
}

func (p *NamePage) Name(key int32, kind uint8) string {
	return string(p.RawName(key, kind))
}

// Count returns how many records reference the name key.
func (p *NamePage) Count(key int32, kind uint8) uint32 {
	if e, ok := p.dicts[kind][key]; ok {
		return e.count
	}
	return 0
}

func (p *NamePage) Serialize(out *codec.Buffer) error {
	kinds := make([]uint8, 0, len(p.dicts))
	for k := range p.dicts {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	out.WriteI32(int32(len(kinds)))
	for _, kind := range kinds {
		dict := p.dicts[kind]
		keys := make([]int32, 0, len(dict))
		for k := range dict {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

		out.WriteByte(kind)
		out.WriteI32(int32(len(keys)))
		for _, key := range keys {
			e := dict[key]
			out.WriteI32(key)
			out.WriteU32(e.count)
			out.WriteI32(int32(len(e.name)))
			out.Write(e.name)
		}
	}
	return nil
}

func deserializeName(in *codec.Buffer) (*NamePage, error) {
	numDicts, err := in.ReadI32()
	if err != nil || numDicts < 0 {
		return nil, fmt.Errorf("%w: name dict count: %v", ErrCorrupt, err)
	}
	p := NewNamePage()
	for i := int32(0); i < numDicts; i++ {
		kind, err := in.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("%w: name dict kind: %v", ErrCorrupt, err)
		}
		entries, err := in.ReadI32()
		if err != nil || entries < 0 {
			return nil, fmt.Errorf("%w: name dict size: %v", ErrCorrupt, err)
		}
		dict := make(map[int32]*nameEntry, entries)
		for j := int32(0); j < entries; j++ {
			key, err := in.ReadI32()
			if err != nil {
				return nil, fmt.Errorf("%w: name key: %v", ErrCorrupt, err)
			}
			count, err := in.ReadU32()
			if err != nil {
				return nil, fmt.Errorf("%w: name count: %v", ErrCorrupt, err)
			}
			n, err := in.ReadI32()
			if err != nil || n < 0 {
				return nil, fmt.Errorf("%w: name length: %v", ErrCorrupt, err)
			}
			raw, err := in.Next(int(n))
			if err != nil {
				return nil, fmt.Errorf("%w: name bytes: %v", ErrCorrupt, err)
			}
			dict[key] = &nameEntry{name: append([]byte(nil), raw...), count: count}
		}
		p.dicts[kind] = dict
	}
	return p, nil
}

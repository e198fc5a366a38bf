package page

import (
	"bytes"
	"fmt"
	"iter"
	"sort"

	"github.com/sirixdb/sirix-go/internal/codec"
	"github.com/sirixdb/sirix-go/internal/record"
)

// KeyValueLeafPage stores up to NDPNodeCount records covering one
// contiguous node-key range. Records live in one of three forms:
//
//   - records:      materialized, decoded records
//   - slots:        serialized payloads within the inline threshold
//   - overflowRefs: references to overflow pages for oversized payloads
//
// A node key appears in slots or overflowRefs, never both. The last
// serialized image is cached until a mutation dirties the page.
//
// Layout:
//
//	varint  recordPageKey
//	i32     revision
//	-- when dewey ids are stored:
//	i32     deweyCount
//	repeat: delta-coded dewey id, varint nodeKey, i32 slotLen, slot bytes
//	-- always:
//	bitset  slotBits       (NDPNodeCount bits)
//	bitset  overflowBits
//	i32     slotCount,     then per entry: i32 len, bytes (ascending key)
//	i32     overflowCount, then per entry: u64 target page key
//	u8      indexType
type KeyValueLeafPage struct {
	recordPageKey uint64
	revision      int32
	indexType     IndexType

	records      map[uint64]record.Record
	slots        map[uint64][]byte
	overflowRefs map[uint64]*Reference

	// deweyIndex orders serialization when the resource stores dewey
	// ids; keyDewey is its inverse for decode-time lookups.
	deweyIndex map[string]uint64
	keyDewey   map[uint64][]byte

	cachedBytes []byte
	dirty       bool

	rc ResourceContext
}

func NewKeyValueLeafPage(recordPageKey uint64, indexType IndexType, rc ResourceContext) *KeyValueLeafPage {
	return &KeyValueLeafPage{
		recordPageKey: recordPageKey,
		indexType:     indexType,
		records:       make(map[uint64]record.Record),
		slots:         make(map[uint64][]byte),
		overflowRefs:  make(map[uint64]*Reference),
		deweyIndex:    make(map[string]uint64),
		keyDewey:      make(map[uint64][]byte),
		dirty:         true,
		rc:            rc,
	}
}

func (p *KeyValueLeafPage) Kind() Kind            { return KindKeyValueLeaf }
func (p *KeyValueLeafPage) RecordPageKey() uint64 { return p.recordPageKey }
func (p *KeyValueLeafPage) Revision() int32       { return p.revision }
func (p *KeyValueLeafPage) SetRevision(r int32)   { p.revision = r }
func (p *KeyValueLeafPage) IndexType() IndexType  { return p.indexType }
func (p *KeyValueLeafPage) Dirty() bool           { return p.dirty }

// Size counts logically present entries.
func (p *KeyValueLeafPage) Size() int {
	n := len(p.overflowRefs)
	for key := range p.records {
		if _, ok := p.overflowRefs[key]; !ok {
			n++
		}
	}
	for key := range p.slots {
		if _, hit := p.records[key]; hit {
			continue
		}
		if _, ok := p.overflowRefs[key]; !ok {
			n++
		}
	}
	return n
}

// Put inserts or replaces a record. The stale slot or overflow reference
// for the key is dropped so the next Serialize recomputes it.
func (p *KeyValueLeafPage) Put(key uint64, r record.Record) error {
	if key>>NDPNodeCountExponent != p.recordPageKey {
		return fmt.Errorf("%w: node key %d outside page %d", ErrUnsupportedKey, key, p.recordPageKey)
	}
	p.records[key] = r
	delete(p.slots, key)
	delete(p.overflowRefs, key)
	if old, ok := p.keyDewey[key]; ok {
		delete(p.deweyIndex, string(old))
		delete(p.keyDewey, key)
	}
	if id := r.DeweyID(); p.rc.StoreDeweyIDs && id != nil {
		p.deweyIndex[string(id)] = key
		p.keyDewey[key] = id
	}
	p.dirty = true
	p.cachedBytes = nil
	return nil
}

// Get materializes and returns the record for key, or nil when the key is
// not present on this leaf. Tombstones are returned as records; mapping
// them to absence is the transaction's concern.
func (p *KeyValueLeafPage) Get(key uint64) (record.Record, error) {
	if r, ok := p.records[key]; ok {
		return r, nil
	}
	if data, ok := p.slots[key]; ok {
		return p.materialize(key, data)
	}
	if ref, ok := p.overflowRefs[key]; ok {
		if ref.HasPage() {
			op, ok := ref.Page().(*OverflowPage)
			if !ok {
				return nil, fmt.Errorf("%w: %s behind overflow ref %d", ErrDanglingReference, ref.Page().Kind(), key)
			}
			return p.materialize(key, op.Data())
		}
		if p.rc.Overflow == nil {
			return nil, fmt.Errorf("%w: no overflow reader for key %d", ErrDanglingReference, key)
		}
		op, err := p.rc.Overflow.ReadOverflow(ref)
		if err != nil {
			return nil, err
		}
		return p.materialize(key, op.Data())
	}
	return nil, nil
}

func (p *KeyValueLeafPage) materialize(key uint64, data []byte) (record.Record, error) {
	r, err := p.rc.Serializer.Deserialize(codec.NewBuffer(data), key, p.keyDewey[key])
	if err != nil {
		return nil, err
	}
	p.records[key] = r
	return r, nil
}

// Entries iterates the materialized records.
func (p *KeyValueLeafPage) Entries() iter.Seq2[uint64, record.Record] {
	return func(yield func(uint64, record.Record) bool) {
		for k, r := range p.records {
			if !yield(k, r) {
				return
			}
		}
	}
}

// Keys returns every logically present node key in ascending order.
func (p *KeyValueLeafPage) Keys() []uint64 {
	seen := make(map[uint64]struct{}, len(p.records)+len(p.slots)+len(p.overflowRefs))
	for k := range p.records {
		seen[k] = struct{}{}
	}
	for k := range p.slots {
		seen[k] = struct{}{}
	}
	for k := range p.overflowRefs {
		seen[k] = struct{}{}
	}
	keys := make([]uint64, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Has reports whether key is present on this leaf in any form.
func (p *KeyValueLeafPage) Has(key uint64) bool {
	if _, ok := p.records[key]; ok {
		return true
	}
	if _, ok := p.slots[key]; ok {
		return true
	}
	_, ok := p.overflowRefs[key]
	return ok
}

// OverflowRef returns the overflow reference for key, if any.
func (p *KeyValueLeafPage) OverflowRef(key uint64) (*Reference, bool) {
	ref, ok := p.overflowRefs[key]
	return ref, ok
}

// HasSlot reports whether key currently holds an inline slot.
func (p *KeyValueLeafPage) HasSlot(key uint64) bool {
	_, ok := p.slots[key]
	return ok
}

// Commit routes pending records into slots or overflow pages, then hands
// every overflow reference to the write side for persistence. Runs
// before the leaf itself serializes so the target keys are known.
func (p *KeyValueLeafPage) Commit(c ReferenceCommitter) error {
	if err := p.computeReferences(); err != nil {
		return err
	}
	for _, ref := range p.overflowRefs {
		if ref == nil || ref.IsNull() {
			continue
		}
		if err := c.CommitReference(ref); err != nil {
			return err
		}
	}
	return nil
}

// ReferenceCommitter is the slice of the write transaction a leaf needs
// at commit time.
type ReferenceCommitter interface {
	CommitReference(ref *Reference) error
}

// ClearCachedBytes frees the last serialized image, typically after a
// commit flushed it.
func (p *KeyValueLeafPage) ClearCachedBytes() {
	p.cachedBytes = nil
}

// Serialize writes the page image. References are recomputed once per
// dirty cycle; clean pages replay the cached image.
func (p *KeyValueLeafPage) Serialize(out *codec.Buffer) error {
	if p.cachedBytes != nil && !p.dirty {
		out.Write(p.cachedBytes)
		return nil
	}
	start := out.Len()
	if err := p.computeReferences(); err != nil {
		return err
	}

	codec.PutUvarint(out, p.recordPageKey)
	out.WriteI32(p.revision)

	if dc, ok := p.rc.DeweyCodec(); ok {
		if err := p.serializeDeweyRecords(out, dc); err != nil {
			return err
		}
	}

	slotBits := codec.NewBitSet(NDPNodeCount)
	overflowBits := codec.NewBitSet(NDPNodeCount)
	for key := range p.slots {
		slotBits.Set(int(key - p.recordPageKey*NDPNodeCount))
	}
	for key := range p.overflowRefs {
		overflowBits.Set(int(key - p.recordPageKey*NDPNodeCount))
	}
	slotBits.Serialize(out)
	overflowBits.Serialize(out)

	slotKeys := sortedKeys(p.slots)
	out.WriteI32(int32(len(slotKeys)))
	for _, key := range slotKeys {
		data := p.slots[key]
		out.WriteI32(int32(len(data)))
		out.Write(data)
	}

	overflowKeys := make([]uint64, 0, len(p.overflowRefs))
	for key := range p.overflowRefs {
		overflowKeys = append(overflowKeys, key)
	}
	sort.Slice(overflowKeys, func(i, j int) bool { return overflowKeys[i] < overflowKeys[j] })
	out.WriteI32(int32(len(overflowKeys)))
	for _, key := range overflowKeys {
		out.WriteU64(p.overflowRefs[key].Key())
	}

	out.WriteByte(byte(p.indexType))

	// TODO: the content hash of the serialized image is meant to be
	// stamped here for integrity checks; it is currently not persisted.

	p.cachedBytes = append([]byte(nil), out.Bytes()[start:]...)
	p.dirty = false
	return nil
}

// computeReferences routes every not-yet-encoded record into an inline
// slot or an overflow page, depending on its payload size.
func (p *KeyValueLeafPage) computeReferences() error {
	for key, r := range p.records {
		if _, ok := p.slots[key]; ok {
			continue
		}
		if _, ok := p.overflowRefs[key]; ok {
			continue
		}
		scratch := codec.GetBuffer()
		err := p.rc.Serializer.Serialize(scratch, r)
		if err != nil {
			codec.PutBuffer(scratch)
			return err
		}
		payload := append([]byte(nil), scratch.Bytes()...)
		codec.PutBuffer(scratch)

		if len(payload) > MaxRecordSize {
			ref := NewReference()
			ref.SetIndexType(p.indexType)
			ref.SetPage(NewOverflowPage(payload))
			p.overflowRefs[key] = ref
		} else {
			p.slots[key] = payload
		}
	}
	return nil
}

// serializeDeweyRecords emits records in dewey order: ids sorted by byte
// length, ties broken lexicographically, each delta-coded against its
// predecessor and followed by its slot. Written slots move out of the
// slot map so the bitset phase skips them. Overflowed records keep their
// reference encoding and are skipped here.
func (p *KeyValueLeafPage) serializeDeweyRecords(out *codec.Buffer, dc record.DeweyCapable) error {
	ids := make([][]byte, 0, len(p.deweyIndex))
	for id, key := range p.deweyIndex {
		if _, ok := p.overflowRefs[key]; ok {
			continue
		}
		ids = append(ids, []byte(id))
	}
	sort.Slice(ids, func(i, j int) bool {
		if len(ids[i]) != len(ids[j]) {
			return len(ids[i]) < len(ids[j])
		}
		return bytes.Compare(ids[i], ids[j]) < 0
	})

	out.WriteI32(int32(len(ids)))
	var prev []byte
	for _, id := range ids {
		key := p.deweyIndex[string(id)]
		data, ok := p.slots[key]
		if !ok {
			return fmt.Errorf("%w: dewey id without slot for key %d", ErrIllegalState, key)
		}
		if err := dc.SerializeDeweyID(out, prev, id); err != nil {
			return err
		}
		codec.PutUvarint(out, key)
		out.WriteI32(int32(len(data)))
		out.Write(data)
		delete(p.slots, key)
		prev = id
	}
	return nil
}

func deserializeKeyValueLeaf(in *codec.Buffer, rc ResourceContext) (*KeyValueLeafPage, error) {
	imageStart := in.Len() - in.Remaining()

	rpk, err := codec.Uvarint(in)
	if err != nil {
		return nil, fmt.Errorf("%w: record page key: %v", ErrCorrupt, err)
	}
	revision, err := in.ReadI32()
	if err != nil {
		return nil, fmt.Errorf("%w: revision: %v", ErrCorrupt, err)
	}

	p := NewKeyValueLeafPage(rpk, Document, rc)
	p.revision = revision

	if dc, ok := rc.DeweyCodec(); ok {
		if err := p.deserializeDeweyRecords(in, dc); err != nil {
			return nil, err
		}
	}

	slotBits, err := codec.DeserializeBitSet(in, NDPNodeCount)
	if err != nil {
		return nil, fmt.Errorf("%w: slot bitset: %v", ErrCorrupt, err)
	}
	overflowBits, err := codec.DeserializeBitSet(in, NDPNodeCount)
	if err != nil {
		return nil, fmt.Errorf("%w: overflow bitset: %v", ErrCorrupt, err)
	}

	slotCount, err := in.ReadI32()
	if err != nil {
		return nil, fmt.Errorf("%w: slot count: %v", ErrCorrupt, err)
	}
	if int(slotCount) != slotBits.Count() {
		return nil, fmt.Errorf("%w: %d slot entries vs %d slot bits", ErrCorrupt, slotCount, slotBits.Count())
	}
	var derr error
	slotBits.ForEach(func(i int) {
		if derr != nil {
			return
		}
		n, err := in.ReadI32()
		if err != nil || n < 0 {
			derr = fmt.Errorf("%w: slot length: %v", ErrCorrupt, err)
			return
		}
		raw, err := in.Next(int(n))
		if err != nil {
			derr = fmt.Errorf("%w: slot data: %v", ErrCorrupt, err)
			return
		}
		p.slots[rpk*NDPNodeCount+uint64(i)] = append([]byte(nil), raw...)
	})
	if derr != nil {
		return nil, derr
	}

	overflowCount, err := in.ReadI32()
	if err != nil {
		return nil, fmt.Errorf("%w: overflow count: %v", ErrCorrupt, err)
	}
	if int(overflowCount) != overflowBits.Count() {
		return nil, fmt.Errorf("%w: %d overflow entries vs %d overflow bits", ErrCorrupt, overflowCount, overflowBits.Count())
	}
	overflowBits.ForEach(func(i int) {
		if derr != nil {
			return
		}
		target, err := in.ReadU64()
		if err != nil {
			derr = fmt.Errorf("%w: overflow key: %v", ErrCorrupt, err)
			return
		}
		ref := NewReference()
		ref.SetKey(target)
		p.overflowRefs[rpk*NDPNodeCount+uint64(i)] = ref
	})
	if derr != nil {
		return nil, derr
	}

	idxByte, err := in.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: index type: %v", ErrCorrupt, err)
	}
	idx, err := IndexTypeFromID(idxByte)
	if err != nil {
		return nil, err
	}
	p.indexType = idx
	for _, ref := range p.overflowRefs {
		ref.SetIndexType(idx)
	}

	p.cachedBytes = append([]byte(nil), in.Bytes()[imageStart:in.Len()-in.Remaining()]...)
	p.dirty = false
	return p, nil
}

func (p *KeyValueLeafPage) deserializeDeweyRecords(in *codec.Buffer, dc record.DeweyCapable) error {
	count, err := in.ReadI32()
	if err != nil {
		return fmt.Errorf("%w: dewey count: %v", ErrCorrupt, err)
	}
	var prev []byte
	for i := int32(0); i < count; i++ {
		id, err := dc.DeserializeDeweyID(in, prev)
		if err != nil {
			return err
		}
		key, err := codec.Uvarint(in)
		if err != nil {
			return fmt.Errorf("%w: dewey node key: %v", ErrCorrupt, err)
		}
		n, err := in.ReadI32()
		if err != nil || n < 0 {
			return fmt.Errorf("%w: dewey slot length: %v", ErrCorrupt, err)
		}
		raw, err := in.Next(int(n))
		if err != nil {
			return fmt.Errorf("%w: dewey slot data: %v", ErrCorrupt, err)
		}
		p.slots[key] = append([]byte(nil), raw...)
		p.deweyIndex[string(id)] = key
		p.keyDewey[key] = id
		prev = id
	}
	return nil
}

// MergeInto copies every entry of p that dst does not already hold.
// Folding a chain newest-first therefore gives the latest revision
// precedence per key.
func (p *KeyValueLeafPage) MergeInto(dst *KeyValueLeafPage) {
	for key, r := range p.records {
		if !dst.Has(key) {
			dst.records[key] = r
			if id, ok := p.keyDewey[key]; ok {
				dst.deweyIndex[string(id)] = key
				dst.keyDewey[key] = id
			}
		}
	}
	for key, data := range p.slots {
		if !dst.Has(key) {
			dst.slots[key] = data
			if id, ok := p.keyDewey[key]; ok {
				dst.deweyIndex[string(id)] = key
				dst.keyDewey[key] = id
			}
		}
	}
	for key, ref := range p.overflowRefs {
		if !dst.Has(key) {
			dst.overflowRefs[key] = ref
		}
	}
	dst.dirty = true
	dst.cachedBytes = nil
}

func sortedKeys(m map[uint64][]byte) []uint64 {
	keys := make([]uint64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

package page

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirixdb/sirix-go/internal/codec"
	"github.com/sirixdb/sirix-go/internal/record"
)

func testContext(deweyIDs bool) ResourceContext {
	return ResourceContext{
		Serializer:    record.DataSerializer{},
		StoreDeweyIDs: deweyIDs,
	}
}

func newLeaf(t *testing.T, rpk uint64, deweyIDs bool) *KeyValueLeafPage {
	t.Helper()
	p := NewKeyValueLeafPage(rpk, Document, testContext(deweyIDs))
	require.Equal(t, rpk, p.RecordPageKey())
	require.True(t, p.Dirty())
	return p
}

func roundTrip(t *testing.T, p *KeyValueLeafPage, deweyIDs bool) *KeyValueLeafPage {
	t.Helper()
	out := codec.NewBuffer(nil)
	require.NoError(t, Serialize(out, p))

	got, err := Deserialize(out, testContext(deweyIDs))
	require.NoError(t, err)
	leaf, ok := got.(*KeyValueLeafPage)
	require.True(t, ok)
	return leaf
}

func TestInlineRoundTrip(t *testing.T) {
	p := newLeaf(t, 0, false)
	require.NoError(t, p.Put(5, &record.Data{Key: 5, Payload: []byte("aa")}))
	require.NoError(t, p.Put(300, &record.Data{Key: 300, Payload: []byte("bb")}))

	q := roundTrip(t, p, false)
	assert.Equal(t, int32(0), q.Revision())
	assert.Equal(t, Document, q.IndexType())
	assert.Equal(t, []uint64{5, 300}, q.Keys())
	assert.True(t, q.HasSlot(5))
	assert.True(t, q.HasSlot(300))
	_, hasOverflow := q.OverflowRef(5)
	assert.False(t, hasOverflow)

	r5, err := q.Get(5)
	require.NoError(t, err)
	assert.Equal(t, []byte("aa"), r5.(*record.Data).Payload)

	r300, err := q.Get(300)
	require.NoError(t, err)
	assert.Equal(t, []byte("bb"), r300.(*record.Data).Payload)

	missing, err := q.Get(6)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestKeyOutsidePageRejected(t *testing.T) {
	p := newLeaf(t, 0, false)
	err := p.Put(NDPNodeCount, &record.Data{Key: NDPNodeCount})
	assert.ErrorIs(t, err, ErrUnsupportedKey)
}

// The inline threshold applies to the serialized payload, which carries a
// one-byte kind tag on top of the raw value.
func TestOverflowBoundary(t *testing.T) {
	p := newLeaf(t, 0, false)
	big := bytes.Repeat([]byte{'x'}, MaxRecordSize)      // encodes to MaxRecordSize+1
	small := bytes.Repeat([]byte{'y'}, MaxRecordSize-1)  // encodes to exactly MaxRecordSize
	require.NoError(t, p.Put(1, &record.Data{Key: 1, Payload: big}))
	require.NoError(t, p.Put(2, &record.Data{Key: 2, Payload: small}))

	out := codec.NewBuffer(nil)
	require.NoError(t, p.Serialize(out))

	ref, ok := p.OverflowRef(1)
	require.True(t, ok)
	assert.True(t, ref.HasPage())
	assert.True(t, p.HasSlot(2))

	// partition: a key never lives in both forms
	assert.False(t, p.HasSlot(1))
	_, both := p.OverflowRef(2)
	assert.False(t, both)

	// the in-memory overflow page resolves without a reader
	r1, err := p.Get(1)
	require.NoError(t, err)
	assert.Equal(t, big, r1.(*record.Data).Payload)
}

func TestSerializeReusesCachedBytes(t *testing.T) {
	p := newLeaf(t, 2, false)
	require.NoError(t, p.Put(1024, &record.Data{Key: 1024, Payload: []byte("v")}))

	first := codec.NewBuffer(nil)
	require.NoError(t, p.Serialize(first))
	assert.False(t, p.Dirty())

	second := codec.NewBuffer(nil)
	require.NoError(t, p.Serialize(second))
	assert.Equal(t, first.Bytes(), second.Bytes())

	require.NoError(t, p.Put(1025, &record.Data{Key: 1025, Payload: []byte("w")}))
	assert.True(t, p.Dirty())

	third := codec.NewBuffer(nil)
	require.NoError(t, p.Serialize(third))
	assert.NotEqual(t, first.Bytes(), third.Bytes())
}

// Dewey ids serialize sorted by byte length, ties broken
// lexicographically.
func TestDeweyOrdering(t *testing.T) {
	p := newLeaf(t, 0, true)
	require.NoError(t, p.Put(1, &record.Data{Key: 1, ID: []byte{0x01}, Payload: []byte("a")}))
	require.NoError(t, p.Put(2, &record.Data{Key: 2, ID: []byte{0x01, 0x02}, Payload: []byte("b")}))
	require.NoError(t, p.Put(3, &record.Data{Key: 3, ID: []byte{0x02}, Payload: []byte("c")}))

	out := codec.NewBuffer(nil)
	require.NoError(t, p.Serialize(out))

	// walk the header by hand to observe the serialized id order
	_, err := codec.Uvarint(out)
	require.NoError(t, err)
	_, err = out.ReadI32()
	require.NoError(t, err)

	count, err := out.ReadI32()
	require.NoError(t, err)
	require.Equal(t, int32(3), count)

	dc := record.DataSerializer{}
	var prev []byte
	var ids [][]byte
	for i := int32(0); i < count; i++ {
		id, err := dc.DeserializeDeweyID(out, prev)
		require.NoError(t, err)
		ids = append(ids, id)
		prev = id

		_, err = codec.Uvarint(out) // node key
		require.NoError(t, err)
		n, err := out.ReadI32()
		require.NoError(t, err)
		_, err = out.Next(int(n))
		require.NoError(t, err)
	}
	assert.Equal(t, [][]byte{{0x01}, {0x02}, {0x01, 0x02}}, ids)
}

func TestDeweyRoundTrip(t *testing.T) {
	p := newLeaf(t, 0, true)
	require.NoError(t, p.Put(1, &record.Data{Key: 1, ID: []byte{0x01}, Payload: []byte("a")}))
	require.NoError(t, p.Put(2, &record.Data{Key: 2, ID: []byte{0x01, 0x02}, Payload: []byte("b")}))

	q := roundTrip(t, p, true)
	r1, err := q.Get(1)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01}, r1.DeweyID())
	assert.Equal(t, []byte("a"), r1.(*record.Data).Payload)

	r2, err := q.Get(2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02}, r2.DeweyID())
}

func TestCorruptImageRejected(t *testing.T) {
	p := newLeaf(t, 0, false)
	require.NoError(t, p.Put(1, &record.Data{Key: 1, Payload: []byte("a")}))

	out := codec.NewBuffer(nil)
	require.NoError(t, Serialize(out, p))

	// truncate mid-image
	raw := out.Bytes()
	_, err := Deserialize(codec.NewBuffer(raw[:len(raw)/2]), testContext(false))
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestMergeIntoLatestWins(t *testing.T) {
	older := newLeaf(t, 0, false)
	require.NoError(t, older.Put(1, &record.Data{Key: 1, Payload: []byte("old")}))
	require.NoError(t, older.Put(2, &record.Data{Key: 2, Payload: []byte("keep")}))

	newer := newLeaf(t, 0, false)
	newer.SetRevision(1)
	require.NoError(t, newer.Put(1, &record.Data{Key: 1, Payload: []byte("new")}))

	dst := NewKeyValueLeafPage(0, Document, testContext(false))
	newer.MergeInto(dst)
	older.MergeInto(dst)

	r1, err := dst.Get(1)
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), r1.(*record.Data).Payload)

	r2, err := dst.Get(2)
	require.NoError(t, err)
	assert.Equal(t, []byte("keep"), r2.(*record.Data).Payload)
}

func TestTombstoneSurvivesRoundTrip(t *testing.T) {
	p := newLeaf(t, 0, false)
	require.NoError(t, p.Put(4, &record.Tombstone{Key: 4}))

	q := roundTrip(t, p, false)
	r, err := q.Get(4)
	require.NoError(t, err)
	assert.True(t, record.IsDeleted(r))
}

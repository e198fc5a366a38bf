package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferReadWrite(t *testing.T) {
	b := NewBuffer(nil)
	b.WriteU32(0xDEADBEEF)
	b.WriteU64(42)
	b.WriteI32(-7)
	_, err := b.Write([]byte("abc"))
	require.NoError(t, err)

	v32, err := b.ReadU32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0xDEADBEEF), v32)

	v64, err := b.ReadU64()
	require.NoError(t, err)
	assert.Equal(t, uint64(42), v64)

	i32, err := b.ReadI32()
	require.NoError(t, err)
	assert.Equal(t, int32(-7), i32)

	raw, err := b.Next(3)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), raw)

	_, err = b.ReadByte()
	assert.ErrorIs(t, err, ErrShortBuffer)
}

func TestBufferPoolReuse(t *testing.T) {
	b := GetBuffer()
	b.WriteU64(1)
	PutBuffer(b)

	b2 := GetBuffer()
	assert.Equal(t, 0, b2.Len())
	PutBuffer(b2)
}

func TestUvarintRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 127, 128, 300, 1 << 20, 1<<63 - 1, 1 << 63, ^uint64(0)}
	for _, v := range values {
		b := NewBuffer(nil)
		PutUvarint(b, v)
		got, err := Uvarint(b)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestVarintRoundTrip(t *testing.T) {
	values := []int64{0, 1, -1, 63, -64, 1 << 40, -(1 << 40), 1<<62 - 1, -(1 << 62)}
	for _, v := range values {
		b := NewBuffer(nil)
		PutVarint(b, v)
		got, err := Varint(b)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func TestUvarintTruncated(t *testing.T) {
	b := NewBuffer([]byte{0x80, 0x80})
	_, err := Uvarint(b)
	assert.ErrorIs(t, err, ErrShortBuffer)
}

func TestBitSetRoundTrip(t *testing.T) {
	s := NewBitSet(512)
	for _, i := range []int{0, 5, 63, 64, 300, 511} {
		s.Set(i)
	}
	assert.Equal(t, 6, s.Count())

	out := NewBuffer(nil)
	s.Serialize(out)

	got, err := DeserializeBitSet(out, 512)
	require.NoError(t, err)
	assert.Equal(t, 6, got.Count())

	var bits []int
	got.ForEach(func(i int) { bits = append(bits, i) })
	assert.Equal(t, []int{0, 5, 63, 64, 300, 511}, bits)
}

func TestBitSetClear(t *testing.T) {
	s := NewBitSet(128)
	s.Set(10)
	s.Clear(10)
	assert.False(t, s.Test(10))
	assert.Equal(t, 0, s.Count())
}

func TestBitSetCorruptWordCount(t *testing.T) {
	out := NewBuffer(nil)
	out.WriteI32(1000)
	_, err := DeserializeBitSet(out, 512)
	assert.ErrorIs(t, err, ErrBitsetRange)
}

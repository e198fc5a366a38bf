package bx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBigEndianRoundTrip(t *testing.T) {
	b := make([]byte, 8)

	PutU16(b, 0xBEEF)
	assert.Equal(t, uint16(0xBEEF), U16(b))
	assert.Equal(t, []byte{0xBE, 0xEF}, b[:2])

	PutU32(b, 0xDEADBEEF)
	assert.Equal(t, uint32(0xDEADBEEF), U32(b))

	PutU64(b, 0x0102030405060708)
	assert.Equal(t, uint64(0x0102030405060708), U64(b))
	assert.Equal(t, byte(0x01), b[0])

	PutI64(b, -5)
	assert.Equal(t, int64(-5), I64(b))

	PutI32(b, -9)
	assert.Equal(t, int32(-9), I32(b))
}

func TestOffsetHelpers(t *testing.T) {
	b := make([]byte, 16)
	PutU64At(b, 8, 42)
	assert.Equal(t, uint64(42), U64At(b, 8))
	assert.Equal(t, uint64(0), U64(b[:8]))

	PutU32At(b, 4, 7)
	assert.Equal(t, uint32(7), U32At(b, 4))
}

func TestLittleEndianScratch(t *testing.T) {
	b := make([]byte, 8)
	PutU64LE(b, 0x01)
	assert.Equal(t, byte(0x01), b[0])
	assert.Equal(t, uint64(0x01), U64LE(b))

	PutU16LE(b, 0x0203)
	assert.Equal(t, uint16(0x0203), U16LE(b))
}

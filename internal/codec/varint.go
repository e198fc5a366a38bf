package codec

import "errors"

var ErrVarintOverflow = errors.New("codec: varint overflows 64 bits")

// Unsigned varints use LEB128 framing: seven payload bits per byte, MSB
// set on every byte but the last. Signed values are zig-zag folded first
// so small negatives stay short.

func PutUvarint(b *Buffer, v uint64) {
	for v >= 0x80 {
		b.WriteByte(byte(v) | 0x80)
		v >>= 7
	}
	b.WriteByte(byte(v))
}

func Uvarint(b *Buffer) (uint64, error) {
	var v uint64
	var shift uint
	for {
		c, err := b.ReadByte()
		if err != nil {
			return 0, err
		}
		if shift >= 63 && c > 1 {
			return 0, ErrVarintOverflow
		}
		v |= uint64(c&0x7f) << shift
		if c < 0x80 {
			return v, nil
		}
		shift += 7
	}
}

func PutVarint(b *Buffer, v int64) {
	uv := uint64(v) << 1
	if v < 0 {
		uv = ^uv
	}
	PutUvarint(b, uv)
}

func Varint(b *Buffer) (int64, error) {
	uv, err := Uvarint(b)
	if err != nil {
		return 0, err
	}
	v := int64(uv >> 1)
	if uv&1 != 0 {
		v = ^v
	}
	return v, nil
}

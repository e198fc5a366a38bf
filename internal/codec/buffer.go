package codec

import (
	"errors"
	"io"
	"sync"

	"github.com/sirixdb/sirix-go/pkg/bx"
)

var ErrShortBuffer = errors.New("codec: read past end of buffer")

// Buffer is a growable byte buffer with a separate read cursor. Pages
// serialize into a Buffer and deserialize from one; the write side always
// appends, the read side walks pos forward.
type Buffer struct {
	buf []byte
	pos int
}

func NewBuffer(b []byte) *Buffer {
	return &Buffer{buf: b}
}

func (b *Buffer) Len() int      { return len(b.buf) }
func (b *Buffer) Bytes() []byte { return b.buf }

// Remaining reports how many unread bytes are left.
func (b *Buffer) Remaining() int { return len(b.buf) - b.pos }

// Reset drops all content and rewinds the cursor so the backing array can
// be reused.
func (b *Buffer) Reset() {
	b.buf = b.buf[:0]
	b.pos = 0
}

func (b *Buffer) WriteByte(c byte) error {
	b.buf = append(b.buf, c)
	return nil
}

func (b *Buffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *Buffer) WriteU16(v uint16) {
	var tmp [2]byte
	bx.PutU16(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
}

func (b *Buffer) WriteU32(v uint32) {
	var tmp [4]byte
	bx.PutU32(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
}

func (b *Buffer) WriteU64(v uint64) {
	var tmp [8]byte
	bx.PutU64(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
}

func (b *Buffer) WriteI32(v int32) { b.WriteU32(uint32(v)) }
func (b *Buffer) WriteI64(v int64) { b.WriteU64(uint64(v)) }

func (b *Buffer) ReadByte() (byte, error) {
	if b.pos >= len(b.buf) {
		return 0, ErrShortBuffer
	}
	c := b.buf[b.pos]
	b.pos++
	return c, nil
}

// Next returns the next n unread bytes without copying. The slice aliases
// the buffer and is only valid until the next Reset.
func (b *Buffer) Next(n int) ([]byte, error) {
	if n < 0 || b.Remaining() < n {
		return nil, ErrShortBuffer
	}
	p := b.buf[b.pos : b.pos+n]
	b.pos += n
	return p, nil
}

func (b *Buffer) Read(p []byte) (int, error) {
	if b.pos >= len(b.buf) {
		return 0, io.EOF
	}
	n := copy(p, b.buf[b.pos:])
	b.pos += n
	return n, nil
}

func (b *Buffer) ReadU16() (uint16, error) {
	p, err := b.Next(2)
	if err != nil {
		return 0, err
	}
	return bx.U16(p), nil
}

func (b *Buffer) ReadU32() (uint32, error) {
	p, err := b.Next(4)
	if err != nil {
		return 0, err
	}
	return bx.U32(p), nil
}

func (b *Buffer) ReadU64() (uint64, error) {
	p, err := b.Next(8)
	if err != nil {
		return 0, err
	}
	return bx.U64(p), nil
}

func (b *Buffer) ReadI32() (int32, error) {
	v, err := b.ReadU32()
	return int32(v), err
}

func (b *Buffer) ReadI64() (int64, error) {
	v, err := b.ReadU64()
	return int64(v), err
}

// bufPool recycles scratch buffers used by page encode/decode. Release
// must run on every path, error paths included; callers pair GetBuffer
// with a deferred PutBuffer.
var bufPool = sync.Pool{
	New: func() any { return &Buffer{buf: make([]byte, 0, 4096)} },
}

func GetBuffer() *Buffer {
	return bufPool.Get().(*Buffer)
}

func PutBuffer(b *Buffer) {
	if b == nil {
		return
	}
	b.Reset()
	bufPool.Put(b)
}

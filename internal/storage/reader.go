// Byte-level access to a resource file. The reader hands page images to
// the page codec; callers above never touch the file layout.
package storage

import (
	"errors"
	"fmt"
	"hash/crc32"
	"os"

	"github.com/klauspost/compress/snappy"
	"github.com/sirixdb/sirix-go/internal/codec"
	"github.com/sirixdb/sirix-go/internal/page"
	"github.com/sirixdb/sirix-go/pkg/bx"
)

const (
	magicU32   uint32 = 0x53525849 // "SRXI"
	versionU16 uint16 = 1

	// file header: magic(4) version(2) reserved(2) uberOffset(8)
	headerSize = 16

	// page block header: length(4) crc(4)
	blockHeaderSize = 8
)

var (
	ErrIO       = errors.New("storage: I/O error")
	ErrBadMagic = errors.New("storage: bad resource magic")
	ErrBadBlock = errors.New("storage: bad page block")
	ErrNoUber   = errors.New("storage: resource has no uber page")
	ErrClosed   = errors.New("storage: reader is closed")
)

// PageReader is the capability the transaction layer reads through.
// Implementations own the file handle; Close releases it.
type PageReader interface {
	// ReadPage loads the page block at the given file key.
	ReadPage(key uint64, rc page.ResourceContext) (page.Page, error)
	// ReadUber loads the uber page the file header points at.
	ReadUber(rc page.ResourceContext) (*page.UberPage, error)
	Close() error
}

// FileReader reads page blocks from a single resource file. Page keys are
// byte offsets of the block header. Blocks are snappy-compressed when the
// resource was written with compression.
type FileReader struct {
	f        *os.File
	compress bool
	closed   bool
}

var _ PageReader = (*FileReader)(nil)

func OpenReader(path string, compress bool) (*FileReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open resource: %v", ErrIO, err)
	}
	var hdr [headerSize]byte
	if _, err := f.ReadAt(hdr[:], 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: resource header: %v", ErrIO, err)
	}
	if bx.U32(hdr[0:4]) != magicU32 {
		f.Close()
		return nil, ErrBadMagic
	}
	return &FileReader{f: f, compress: compress}, nil
}

func (r *FileReader) ReadPage(key uint64, rc page.ResourceContext) (page.Page, error) {
	image, err := r.readBlock(key)
	if err != nil {
		return nil, err
	}
	return page.Deserialize(codec.NewBuffer(image), rc)
}

func (r *FileReader) ReadUber(rc page.ResourceContext) (*page.UberPage, error) {
	if r.closed {
		return nil, ErrClosed
	}
	var hdr [headerSize]byte
	if _, err := r.f.ReadAt(hdr[:], 0); err != nil {
		return nil, fmt.Errorf("%w: resource header: %v", ErrIO, err)
	}
	off := bx.U64(hdr[8:16])
	if off == 0 {
		return nil, ErrNoUber
	}
	p, err := r.ReadPage(off, rc)
	if err != nil {
		return nil, err
	}
	uber, ok := p.(*page.UberPage)
	if !ok {
		return nil, fmt.Errorf("%w: expected uber page at %d, got %s", ErrBadBlock, off, p.Kind())
	}
	return uber, nil
}

func (r *FileReader) readBlock(key uint64) ([]byte, error) {
	if r.closed {
		return nil, ErrClosed
	}
	var hdr [blockHeaderSize]byte
	if _, err := r.f.ReadAt(hdr[:], int64(key)); err != nil {
		return nil, fmt.Errorf("%w: block header at %d: %v", ErrIO, key, err)
	}
	n := bx.U32(hdr[0:4])
	wantCRC := bx.U32(hdr[4:8])

	raw := make([]byte, n)
	if _, err := r.f.ReadAt(raw, int64(key)+blockHeaderSize); err != nil {
		return nil, fmt.Errorf("%w: block body at %d: %v", ErrIO, key, err)
	}
	if crc32.ChecksumIEEE(raw) != wantCRC {
		return nil, fmt.Errorf("%w: crc mismatch at %d", ErrBadBlock, key)
	}
	if !r.compress {
		return raw, nil
	}
	image, err := snappy.Decode(nil, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: decompress at %d: %v", ErrBadBlock, key, err)
	}
	return image, nil
}

// Close is idempotent.
func (r *FileReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.f.Close()
}

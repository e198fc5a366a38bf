package storage

import (
	"fmt"
	"hash/crc32"
	"os"

	"github.com/klauspost/compress/snappy"
	"github.com/sirixdb/sirix-go/internal/codec"
	"github.com/sirixdb/sirix-go/internal/page"
	"github.com/sirixdb/sirix-go/pkg/bx"
)

// FileWriter appends page blocks to a resource file. Pages are never
// rewritten; a commit appends the new pages and finally repoints the
// header at the new uber page.
type FileWriter struct {
	f        *os.File
	compress bool
	end      int64
}

func OpenWriter(path string, compress bool) (*FileWriter, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: open resource: %v", ErrIO, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: stat resource: %v", ErrIO, err)
	}
	w := &FileWriter{f: f, compress: compress, end: info.Size()}
	if info.Size() == 0 {
		var hdr [headerSize]byte
		bx.PutU32(hdr[0:4], magicU32)
		bx.PutU16(hdr[4:6], versionU16)
		if _, err := f.WriteAt(hdr[:], 0); err != nil {
			f.Close()
			return nil, fmt.Errorf("%w: resource header: %v", ErrIO, err)
		}
		w.end = headerSize
	}
	return w, nil
}

// AppendPage writes one framed page block and returns its file key.
func (w *FileWriter) AppendPage(p page.Page) (uint64, error) {
	buf := codec.GetBuffer()
	defer codec.PutBuffer(buf)
	if err := page.Serialize(buf, p); err != nil {
		return 0, err
	}
	body := buf.Bytes()
	if w.compress {
		body = snappy.Encode(nil, body)
	}

	var hdr [blockHeaderSize]byte
	bx.PutU32(hdr[0:4], uint32(len(body)))
	bx.PutU32(hdr[4:8], crc32.ChecksumIEEE(body))

	key := uint64(w.end)
	if _, err := w.f.WriteAt(hdr[:], w.end); err != nil {
		return 0, fmt.Errorf("%w: block header: %v", ErrIO, err)
	}
	if _, err := w.f.WriteAt(body, w.end+blockHeaderSize); err != nil {
		return 0, fmt.Errorf("%w: block body: %v", ErrIO, err)
	}
	w.end += blockHeaderSize + int64(len(body))
	return key, nil
}

// WriteUber appends the uber page and repoints the file header at it.
// The header update is the commit point.
func (w *FileWriter) WriteUber(p *page.UberPage) error {
	key, err := w.AppendPage(p)
	if err != nil {
		return err
	}
	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("%w: sync before header flip: %v", ErrIO, err)
	}
	var off [8]byte
	bx.PutU64(off[:], key)
	if _, err := w.f.WriteAt(off[:], 8); err != nil {
		return fmt.Errorf("%w: header flip: %v", ErrIO, err)
	}
	return w.f.Sync()
}

func (w *FileWriter) Close() error {
	return w.f.Close()
}

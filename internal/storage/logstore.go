package storage

import (
	"bufio"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"

	"github.com/klauspost/compress/snappy"
	"github.com/sirixdb/sirix-go/pkg/bx"
)

var (
	ErrBadLogRecord = errors.New("storage: bad log record")
	ErrShortLogRead = errors.New("storage: short log read")
)

const (
	logMagicU32 uint32 = 0x53524C47 // "SRLG"

	logFlagEmpty uint8 = 1
)

// LogEntry is one staged page image keyed by its record-page key. Empty
// entries are tombstone sentinels for pages known to hold nothing.
type LogEntry struct {
	PageKey uint64
	Empty   bool
	Image   []byte
}

// LogStore is the append-only file behind one transaction log. Entries
// are framed with a magic and a crc; a torn tail from a crashed commit is
// tolerated on replay, everything after it is dropped.
//
// record: magic(4) flags(1) pageKey(8) len(4) crc(4) image
type LogStore struct {
	f    *os.File
	path string
}

func OpenLogStore(path string) (*LogStore, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: open log: %v", ErrIO, err)
	}
	return &LogStore{f: f, path: path}, nil
}

func (s *LogStore) Append(e LogEntry) error {
	body := snappy.Encode(nil, e.Image)

	buf := make([]byte, 4+1+8+4+4+len(body))
	off := 0
	bx.PutU32(buf[off:], logMagicU32)
	off += 4
	if e.Empty {
		buf[off] = logFlagEmpty
	}
	off++
	bx.PutU64(buf[off:], e.PageKey)
	off += 8
	bx.PutU32(buf[off:], uint32(len(body)))
	off += 4
	bx.PutU32(buf[off:], crc32.ChecksumIEEE(body))
	off += 4
	copy(buf[off:], body)

	if _, err := s.f.Write(buf); err != nil {
		return fmt.Errorf("%w: append log record: %v", ErrIO, err)
	}
	return nil
}

// Replay streams every intact record to fn in append order.
func (s *LogStore) Replay(fn func(LogEntry) error) error {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: open log for replay: %v", ErrIO, err)
	}
	defer func() { _ = f.Close() }()

	r := bufio.NewReaderSize(f, 1<<20)
	for {
		e, err := readLogRecord(r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			// tolerate torn tail record
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, ErrShortLogRead) {
				return nil
			}
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
}

func readLogRecord(r *bufio.Reader) (LogEntry, error) {
	var fixed [4 + 1 + 8 + 4 + 4]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return LogEntry{}, err
	}
	if bx.U32(fixed[0:4]) != logMagicU32 {
		return LogEntry{}, ErrBadLogRecord
	}
	e := LogEntry{
		Empty:   fixed[4]&logFlagEmpty != 0,
		PageKey: bx.U64(fixed[5:13]),
	}
	n := bx.U32(fixed[13:17])
	wantCRC := bx.U32(fixed[17:21])

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) {
			return LogEntry{}, ErrShortLogRead
		}
		return LogEntry{}, err
	}
	if crc32.ChecksumIEEE(body) != wantCRC {
		return LogEntry{}, ErrBadLogRecord
	}
	image, err := snappy.Decode(nil, body)
	if err != nil {
		return LogEntry{}, fmt.Errorf("%w: %v", ErrBadLogRecord, err)
	}
	e.Image = image
	return e, nil
}

// Truncate drops every staged record.
func (s *LogStore) Truncate() error {
	if err := s.f.Truncate(0); err != nil {
		return fmt.Errorf("%w: truncate log: %v", ErrIO, err)
	}
	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("%w: rewind log: %v", ErrIO, err)
	}
	return nil
}

func (s *LogStore) Close() error {
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

package txn

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirixdb/sirix-go/internal/codec"
	"github.com/sirixdb/sirix-go/internal/page"
	"github.com/sirixdb/sirix-go/internal/storage"
)

// CommitMarkerName is the side file whose presence signals in-flight
// transaction logs next to the resource file.
const CommitMarkerName = "commit.inflight"

var logFileNames = map[string]string{
	"page":  "log.page",
	"node":  "log.node",
	"path":  "log.path",
	"value": "log.value",
}

// Container is a staged lookup result: either a full leaf or the EMPTY
// sentinel for a page known to hold nothing.
type Container struct {
	leaf *page.KeyValueLeafPage
}

func NewContainer(leaf *page.KeyValueLeafPage) Container {
	return Container{leaf: leaf}
}

// EmptyContainer marks a record page known to be absent.
func EmptyContainer() Container { return Container{} }

func (c Container) IsEmpty() bool                { return c.leaf == nil }
func (c Container) Leaf() *page.KeyValueLeafPage { return c.leaf }

// TransactionLog stages uncommitted leaves for one record kind. The
// in-memory map is authoritative; every put also lands in the backing
// file so a crashed commit can be inspected and resumed.
type TransactionLog struct {
	entries map[uint64]Container
	store   *storage.LogStore
	rc      page.ResourceContext
}

func OpenTransactionLog(path string, rc page.ResourceContext) (*TransactionLog, error) {
	store, err := storage.OpenLogStore(path)
	if err != nil {
		return nil, err
	}
	l := &TransactionLog{
		entries: make(map[uint64]Container),
		store:   store,
		rc:      rc,
	}
	err = store.Replay(func(e storage.LogEntry) error {
		if e.Empty {
			l.entries[e.PageKey] = EmptyContainer()
			return nil
		}
		p, err := page.Deserialize(codec.NewBuffer(e.Image), rc)
		if err != nil {
			return err
		}
		leaf, ok := p.(*page.KeyValueLeafPage)
		if !ok {
			return fmt.Errorf("%w: staged %s page", storage.ErrBadLogRecord, p.Kind())
		}
		l.entries[e.PageKey] = NewContainer(leaf)
		return nil
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	return l, nil
}

func (l *TransactionLog) Get(pageKey uint64) (Container, bool) {
	c, ok := l.entries[pageKey]
	return c, ok
}

func (l *TransactionLog) Put(pageKey uint64, c Container) error {
	e := storage.LogEntry{PageKey: pageKey, Empty: c.IsEmpty()}
	if !c.IsEmpty() {
		buf := codec.GetBuffer()
		defer codec.PutBuffer(buf)
		if err := page.Serialize(buf, c.Leaf()); err != nil {
			return err
		}
		e.Image = buf.Bytes()
	}
	if err := l.store.Append(e); err != nil {
		return err
	}
	l.entries[pageKey] = c
	return nil
}

func (l *TransactionLog) PutAll(entries map[uint64]Container) error {
	for key, c := range entries {
		if err := l.Put(key, c); err != nil {
			return err
		}
	}
	return nil
}

func (l *TransactionLog) Len() int { return len(l.entries) }

func (l *TransactionLog) Clear() error {
	l.entries = make(map[uint64]Container)
	return l.store.Truncate()
}

func (l *TransactionLog) Close() error {
	return l.store.Close()
}

// Logs groups the four per-kind staging stores of one in-flight commit.
type Logs struct {
	Page  *TransactionLog
	Node  *TransactionLog
	Path  *TransactionLog
	Value *TransactionLog
}

// OpenLogs mounts the transaction logs next to the resource file iff the
// commit marker exists. Without the marker there are no logs; callers
// get nil, never an allocated empty log.
func OpenLogs(dir string, rc page.ResourceContext) (*Logs, error) {
	if _, err := os.Stat(filepath.Join(dir, CommitMarkerName)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: commit marker: %v", storage.ErrIO, err)
	}
	logs := &Logs{}
	open := func(name string, dst **TransactionLog) error {
		l, err := OpenTransactionLog(filepath.Join(dir, logFileNames[name]), rc)
		if err != nil {
			return err
		}
		*dst = l
		return nil
	}
	for name, dst := range map[string]**TransactionLog{
		"page": &logs.Page, "node": &logs.Node, "path": &logs.Path, "value": &logs.Value,
	} {
		if err := open(name, dst); err != nil {
			logs.Close()
			return nil, err
		}
	}
	return logs, nil
}

// ForIndex routes an index type to its staging store.
func (l *Logs) ForIndex(t page.IndexType) *TransactionLog {
	switch t {
	case page.PathSummary, page.Path:
		return l.Path
	case page.CAS:
		return l.Value
	default:
		return l.Node
	}
}

func (l *Logs) Clear() error {
	for _, lg := range []*TransactionLog{l.Page, l.Node, l.Path, l.Value} {
		if lg == nil {
			continue
		}
		if err := lg.Clear(); err != nil {
			return err
		}
	}
	return nil
}

func (l *Logs) Close() error {
	var firstErr error
	for _, lg := range []*TransactionLog{l.Page, l.Node, l.Path, l.Value} {
		if lg == nil {
			continue
		}
		if err := lg.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

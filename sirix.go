// Package sirix is a versioned, append-only tree storage core. A
// resource is a single data file plus optional in-flight transaction
// logs; readers bind to one committed revision and resolve records
// through per-revision indirect tries.
package sirix

import (
	"path/filepath"
	"time"

	"github.com/sirixdb/sirix-go/internal/page"
	"github.com/sirixdb/sirix-go/internal/record"
	"github.com/sirixdb/sirix-go/internal/resource"
	"github.com/sirixdb/sirix-go/internal/storage"
	"github.com/sirixdb/sirix-go/internal/txn"
)

// Open binds a read transaction to one revision of the resource in dir,
// using the default configuration.
func Open(dir string, revisionNumber int32) (*txn.PageReadTransaction, error) {
	return OpenWithConfig(resource.Default(dir), revisionNumber)
}

// OpenWithConfig opens a read transaction with an explicit resource
// configuration. The returned transaction owns its file handle and any
// mounted transaction logs; Close releases both.
func OpenWithConfig(cfg resource.Config, revisionNumber int32) (*txn.PageReadTransaction, error) {
	policy, err := cfg.Policy()
	if err != nil {
		return nil, err
	}

	rc := page.ResourceContext{
		Serializer:    record.DataSerializer{},
		StoreDeweyIDs: cfg.Resource.StoreDeweyIDs,
	}

	reader, err := storage.OpenReader(filepath.Join(cfg.Resource.Dir, txn.DataFileName), cfg.Resource.Compression)
	if err != nil {
		return nil, err
	}
	logs, err := txn.OpenLogs(cfg.Resource.Dir, rc)
	if err != nil {
		reader.Close()
		return nil, err
	}

	return txn.New(reader, revisionNumber, rc, logs, txn.Options{
		Policy:             policy,
		RevisionsToRestore: cfg.Resource.RevisionsToRestore,
		PathIndex:          cfg.Indexes.Path,
		CASIndex:           cfg.Indexes.CAS,
		RecordCacheSlots:   cfg.Cache.RecordSlots,
		IndexCacheSlots:    cfg.Cache.IndexSlots,
		RecordCacheTTL:     time.Duration(cfg.Cache.RecordTTLSeconds) * time.Second,
	})
}

// BeginWrite opens a write transaction appending the next revision.
func BeginWrite(cfg resource.Config) (*txn.PageWriteTransaction, error) {
	rc := page.ResourceContext{
		Serializer:    record.DataSerializer{},
		StoreDeweyIDs: cfg.Resource.StoreDeweyIDs,
	}
	return txn.BeginWrite(cfg.Resource.Dir, cfg.Resource.Compression, rc)
}

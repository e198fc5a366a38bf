package txn

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/sirixdb/sirix-go/internal/page"
	"github.com/sirixdb/sirix-go/internal/record"
	"github.com/sirixdb/sirix-go/internal/storage"
)

// DataFileName is the single resource file: uber page pointer at the
// head, appended revisions behind it.
const DataFileName = "resource.sirix"

var ErrWriteClosed = errors.New("pagetxn: write transaction is closed")

type leafKey struct {
	pageKey uint64
	index   page.IndexType
}

// PageWriteTransaction produces one new revision. Leaves written here
// contain only this revision's records; unchanged subtree branches keep
// their persisted keys, so a commit appends exactly the dirty path of
// every touched leaf (copy-on-write).
//
// Exactly one write transaction may exist per resource; callers hold the
// resource mutex around it.
type PageWriteTransaction struct {
	w      *storage.FileWriter
	reader *storage.FileReader
	rc     page.ResourceContext

	uber     *page.UberPage
	root     *page.RevisionRootPage
	revision int32

	leaves map[leafKey]*page.KeyValueLeafPage
	names  *page.NamePage

	pageCache map[uint64]page.Page

	closed bool
}

var _ page.ReferenceCommitter = (*PageWriteTransaction)(nil)

// BeginWrite opens the resource for appending one revision.
func BeginWrite(dir string, compress bool, rc page.ResourceContext) (*PageWriteTransaction, error) {
	path := filepath.Join(dir, DataFileName)
	w, err := storage.OpenWriter(path, compress)
	if err != nil {
		return nil, err
	}
	t := &PageWriteTransaction{
		w:         w,
		rc:        rc,
		leaves:    make(map[leafKey]*page.KeyValueLeafPage),
		pageCache: make(map[uint64]page.Page),
	}

	reader, err := storage.OpenReader(path, compress)
	if err != nil {
		w.Close()
		return nil, err
	}
	t.reader = reader

	uber, err := reader.ReadUber(rc)
	switch {
	case errors.Is(err, storage.ErrNoUber):
		uber = page.NewUberPage()
	case err != nil:
		w.Close()
		reader.Close()
		return nil, err
	}
	t.uber = uber
	t.revision = uber.LatestRevision() + 1

	root := page.NewRevisionRootPage(t.revision)
	if uber.LatestRevision() >= 0 {
		prev, err := t.loadRevisionRoot(uber.LatestRevision())
		if err != nil {
			w.Close()
			reader.Close()
			return nil, err
		}
		for i := 0; i < page.IndexTypeCount; i++ {
			pref, _ := prev.SubtreeRef(page.IndexType(i))
			nref, _ := root.SubtreeRef(page.IndexType(i))
			if pref.HasKey() {
				nref.SetKey(pref.Key())
			}
		}
		if prev.NameRef().HasKey() {
			root.NameRef().SetKey(prev.NameRef().Key())
		}
		root.SetMaxNodeKey(prev.MaxNodeKey())
	}
	t.root = root
	return t, nil
}

// Revision returns the number this transaction will commit as.
func (t *PageWriteTransaction) Revision() int32 { return t.revision }

// Put stages a record into this revision's leaf for its page.
func (t *PageWriteTransaction) Put(index page.IndexType, r record.Record) error {
	if t.closed {
		return ErrWriteClosed
	}
	pk := r.NodeKey() >> page.NDPNodeCountExponent
	lk := leafKey{pageKey: pk, index: index}
	leaf, ok := t.leaves[lk]
	if !ok {
		leaf = page.NewKeyValueLeafPage(pk, index, t.rc)
		leaf.SetRevision(t.revision)
		t.leaves[lk] = leaf
	}
	if err := leaf.Put(r.NodeKey(), r); err != nil {
		return err
	}
	if r.NodeKey() > t.root.MaxNodeKey() {
		t.root.SetMaxNodeKey(r.NodeKey())
	}
	return nil
}

// Delete stages a tombstone for nodeKey.
func (t *PageWriteTransaction) Delete(index page.IndexType, nodeKey uint64) error {
	return t.Put(index, &record.Tombstone{Key: nodeKey})
}

// SetName stages a dictionary entry into this revision's name page.
func (t *PageWriteTransaction) SetName(nameKey int32, kind uint8, name []byte) error {
	if t.closed {
		return ErrWriteClosed
	}
	if t.names == nil {
		t.names = page.NewNamePage()
	}
	t.names.SetName(nameKey, kind, name)
	return nil
}

// CommitReference persists the page held by an in-memory reference and
// stamps the resulting file key onto it.
func (t *PageWriteTransaction) CommitReference(ref *page.Reference) error {
	if !ref.HasPage() || ref.HasKey() {
		return nil
	}
	key, err := t.w.AppendPage(ref.Page())
	if err != nil {
		return err
	}
	ref.SetKey(key)
	return nil
}

// Commit flushes every dirty leaf through its trie path, appends the new
// revision root, links it into the uber page's revision trie, and flips
// the header. Returns the committed revision number.
func (t *PageWriteTransaction) Commit(author, message string) (int32, error) {
	if t.closed {
		return 0, ErrWriteClosed
	}
	t.root.SetCommitMetadata(time.Now().UnixMilli(), author, message)

	for lk, leaf := range t.leaves {
		exps, err := t.uber.PageCountExponents(lk.index)
		if err != nil {
			return 0, err
		}
		subtree, err := t.root.SubtreeRef(lk.index)
		if err != nil {
			return 0, err
		}
		leafRef, err := t.insertPath(subtree, exps, lk.pageKey)
		if err != nil {
			return 0, err
		}
		leafRef.SetDirtyPage(leaf)
		leafRef.SetIndexType(lk.index)
	}

	if t.names != nil {
		t.root.NameRef().SetDirtyPage(t.names)
	}

	for i := 0; i < page.IndexTypeCount; i++ {
		ref, _ := t.root.SubtreeRef(page.IndexType(i))
		if err := t.flushRef(ref); err != nil {
			return 0, err
		}
	}
	if err := t.flushRef(t.root.NameRef()); err != nil {
		return 0, err
	}

	rootKey, err := t.w.AppendPage(t.root)
	if err != nil {
		return 0, err
	}
	revRef, err := t.insertPath(t.uber.RevisionRootRef(), t.uber.RevisionPageCountExps(), uint64(t.revision))
	if err != nil {
		return 0, err
	}
	revRef.SetKey(rootKey)
	if err := t.flushRef(t.uber.RevisionRootRef()); err != nil {
		return 0, err
	}

	t.uber.SetLatestRevision(t.revision)
	if err := t.w.WriteUber(t.uber); err != nil {
		return 0, err
	}
	return t.revision, t.Close()
}

// insertPath clones (or creates) the indirect pages along key's descent
// and returns the leaf-level reference to hang the new page on.
func (t *PageWriteTransaction) insertPath(ref *page.Reference, exps []uint8, key uint64) (*page.Reference, error) {
	for l, offset := range page.DescentOffsets(exps, key) {
		var indirect *page.IndirectPage
		switch {
		case ref.HasPage():
			ip, ok := ref.Page().(*page.IndirectPage)
			if !ok {
				return nil, fmt.Errorf("%w: %s in indirect path", ErrWrongPageKind, ref.Page().Kind())
			}
			indirect = ip
		case ref.HasKey():
			p, err := t.readStructural(ref.Key())
			if err != nil {
				return nil, err
			}
			ip, ok := p.(*page.IndirectPage)
			if !ok {
				return nil, fmt.Errorf("%w: %s in indirect path", ErrWrongPageKind, p.Kind())
			}
			indirect = ip.Clone()
			ref.SetDirtyPage(indirect)
		default:
			indirect = page.NewIndirectPage(page.FanoutAtLevel(exps, l))
			ref.SetDirtyPage(indirect)
		}
		next, err := indirect.RefAt(offset)
		if err != nil {
			return nil, err
		}
		ref = next
	}
	return ref, nil
}

func (t *PageWriteTransaction) readStructural(key uint64) (page.Page, error) {
	if p, ok := t.pageCache[key]; ok {
		return p, nil
	}
	p, err := t.reader.ReadPage(key, t.rc)
	if err != nil {
		return nil, err
	}
	t.pageCache[key] = p
	return p, nil
}

// flushRef appends the in-memory subtree below ref depth-first so every
// child key is known before its parent serializes.
func (t *PageWriteTransaction) flushRef(ref *page.Reference) error {
	if ref == nil || !ref.HasPage() || ref.HasKey() {
		return nil
	}
	if indirect, ok := ref.Page().(*page.IndirectPage); ok {
		for i := 0; i < indirect.Fanout(); i++ {
			child, err := indirect.RefAt(uint64(i))
			if err != nil {
				return err
			}
			if err := t.flushRef(child); err != nil {
				return err
			}
		}
	}
	if leaf, ok := ref.Page().(*page.KeyValueLeafPage); ok {
		if err := leaf.Commit(t); err != nil {
			return err
		}
	}
	key, err := t.w.AppendPage(ref.Page())
	if err != nil {
		return err
	}
	ref.SetKey(key)
	return nil
}

func (t *PageWriteTransaction) loadRevisionRoot(rev int32) (*page.RevisionRootPage, error) {
	ref := t.uber.RevisionRootRef()
	for _, offset := range page.DescentOffsets(t.uber.RevisionPageCountExps(), uint64(rev)) {
		if !ref.HasKey() {
			return nil, fmt.Errorf("%w: %d", ErrNoSuchRevision, rev)
		}
		p, err := t.readStructural(ref.Key())
		if err != nil {
			return nil, err
		}
		indirect, ok := p.(*page.IndirectPage)
		if !ok {
			return nil, fmt.Errorf("%w: %s as indirect", ErrWrongPageKind, p.Kind())
		}
		ref, err = indirect.RefAt(offset)
		if err != nil {
			return nil, err
		}
	}
	if !ref.HasKey() {
		return nil, fmt.Errorf("%w: %d", ErrNoSuchRevision, rev)
	}
	p, err := t.readStructural(ref.Key())
	if err != nil {
		return nil, err
	}
	root, ok := p.(*page.RevisionRootPage)
	if !ok {
		return nil, fmt.Errorf("%w: %s as revision root", ErrWrongPageKind, p.Kind())
	}
	return root, nil
}

// Abort drops the staged state without committing.
func (t *PageWriteTransaction) Abort() error {
	return t.Close()
}

// Close releases the file handles. Idempotent.
func (t *PageWriteTransaction) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	var firstErr error
	if t.reader != nil {
		if err := t.reader.Close(); err != nil {
			firstErr = err
		}
	}
	if err := t.w.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

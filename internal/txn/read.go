package txn

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sirixdb/sirix-go/internal/page"
	"github.com/sirixdb/sirix-go/internal/record"
	"github.com/sirixdb/sirix-go/internal/revision"
	"github.com/sirixdb/sirix-go/internal/storage"
)

var (
	ErrClosed         = errors.New("pagetxn: transaction is closed")
	ErrNoSuchRevision = errors.New("pagetxn: revision does not exist")
	ErrWrongPageKind  = errors.New("pagetxn: unexpected page kind")
)

// Options shapes one read transaction. Zero values fall back to the
// defaults below.
type Options struct {
	Policy             revision.Policy
	RevisionsToRestore int

	// PathIndex/CASIndex mirror the resource configuration; the matching
	// cache only exists when the index does.
	PathIndex bool
	CASIndex  bool

	RecordCacheSlots int
	IndexCacheSlots  int
	RecordCacheTTL   time.Duration
}

const (
	defaultRecordCacheSlots = 1000
	defaultIndexCacheSlots  = 20
	defaultRecordCacheTTL   = 5000 * time.Second
	defaultRevisionsToKeep  = 3
)

func (o Options) withDefaults() Options {
	if o.Policy == 0 {
		o.Policy = revision.SlidingSnapshot
	}
	if o.RevisionsToRestore <= 0 {
		o.RevisionsToRestore = defaultRevisionsToKeep
	}
	if o.RecordCacheSlots <= 0 {
		o.RecordCacheSlots = defaultRecordCacheSlots
	}
	if o.IndexCacheSlots <= 0 {
		o.IndexCacheSlots = defaultIndexCacheSlots
	}
	if o.RecordCacheTTL <= 0 {
		o.RecordCacheTTL = defaultRecordCacheTTL
	}
	return o
}

type cacheKey struct {
	pageKey uint64
	index   page.IndexType
}

// PageReadTransaction resolves records of one revision through the
// indirect tries, the in-flight transaction logs, and a cache hierarchy.
// It is bound to a single goroutine; nothing in here locks.
type PageReadTransaction struct {
	reader storage.PageReader
	rc     page.ResourceContext
	opts   Options

	uber *page.UberPage
	root *page.RevisionRootPage

	recordCache *ttlCache
	pathCache   *ttlCache // nil unless the path index is configured
	valueCache  *ttlCache // nil unless the cas index is configured
	pageCache   map[uint64]page.Page

	logs *Logs // nil when no commit is in flight

	namePage *page.NamePage
	revRoots map[int32]*page.RevisionRootPage

	mostRecent struct {
		valid bool
		key   cacheKey
		c     Container
	}

	closed bool
}

// New binds a read transaction to revisionNumber. It takes ownership of
// reader and logs; both are released in Close.
func New(reader storage.PageReader, revisionNumber int32, rc page.ResourceContext, logs *Logs, opts Options) (*PageReadTransaction, error) {
	opts = opts.withDefaults()

	t := &PageReadTransaction{
		reader:      reader,
		opts:        opts,
		recordCache: newTTLCache(opts.RecordCacheSlots, opts.RecordCacheTTL),
		pageCache:   make(map[uint64]page.Page),
		logs:        logs,
		revRoots:    make(map[int32]*page.RevisionRootPage),
	}
	if opts.PathIndex {
		t.pathCache = newTTLCache(opts.IndexCacheSlots, opts.RecordCacheTTL)
	}
	if opts.CASIndex {
		t.valueCache = newTTLCache(opts.IndexCacheSlots, opts.RecordCacheTTL)
	}

	// Leaves resolve overflow references back through this transaction.
	rc.Overflow = t
	t.rc = rc

	uber, err := reader.ReadUber(rc)
	if err != nil {
		reader.Close()
		if logs != nil {
			logs.Close()
		}
		return nil, err
	}
	t.uber = uber

	if revisionNumber < 0 || revisionNumber > uber.LatestRevision() {
		reader.Close()
		if logs != nil {
			logs.Close()
		}
		return nil, fmt.Errorf("%w: %d (latest %d)", ErrNoSuchRevision, revisionNumber, uber.LatestRevision())
	}
	root, err := t.revisionRoot(revisionNumber)
	if err != nil {
		reader.Close()
		if logs != nil {
			logs.Close()
		}
		return nil, err
	}
	t.root = root

	slog.Debug("opened page read transaction",
		"revision", revisionNumber,
		"policy", opts.Policy.String(),
		"logs", logs != nil)
	return t, nil
}

// GetRecord resolves one record in the given subtree. Absent keys and
// tombstones both come back as nil.
func (t *PageReadTransaction) GetRecord(nodeKey uint64, index page.IndexType) (record.Record, error) {
	if t.closed {
		return nil, ErrClosed
	}
	pageKey := nodeKey >> page.NDPNodeCountExponent
	c, err := t.container(pageKey, index)
	if err != nil {
		return nil, err
	}
	if c.IsEmpty() {
		return nil, nil
	}
	r, err := c.Leaf().Get(nodeKey)
	if err != nil {
		return nil, err
	}
	if r == nil || record.IsDeleted(r) {
		return nil, nil
	}
	return r, nil
}

// container returns the combined leaf for a record page key, checking the
// most-recent memo, then the subtree's cache, then the transaction log,
// and finally the snapshot chain.
func (t *PageReadTransaction) container(pageKey uint64, index page.IndexType) (Container, error) {
	ck := cacheKey{pageKey: pageKey, index: index}
	if t.mostRecent.valid && t.mostRecent.key == ck {
		return t.mostRecent.c, nil
	}

	cache := t.cacheFor(index)
	if cache != nil {
		if v, ok := cache.Get(ck); ok {
			c := v.(Container)
			t.memoize(ck, c)
			return c, nil
		}
	}

	c, ok, err := t.stagedContainer(pageKey, index)
	if err != nil {
		return Container{}, err
	}
	if !ok {
		c, err = t.loadSnapshot(pageKey, index)
		if err != nil {
			// Load failures are returned, never cached.
			return Container{}, err
		}
	}

	if cache != nil {
		cache.Add(ck, c)
	}
	t.memoize(ck, c)
	return c, nil
}

func (t *PageReadTransaction) memoize(ck cacheKey, c Container) {
	t.mostRecent.valid = true
	t.mostRecent.key = ck
	t.mostRecent.c = c
}

// stagedContainer consults the in-flight log for the subtree, if any.
func (t *PageReadTransaction) stagedContainer(pageKey uint64, index page.IndexType) (Container, bool, error) {
	if t.logs == nil {
		return Container{}, false, nil
	}
	lg := t.logs.ForIndex(index)
	if lg == nil {
		return Container{}, false, nil
	}
	c, ok := lg.Get(pageKey)
	return c, ok, nil
}

func (t *PageReadTransaction) cacheFor(index page.IndexType) *ttlCache {
	switch index {
	case page.PathSummary, page.Path:
		return t.pathCache
	case page.CAS:
		return t.valueCache
	default:
		return t.recordCache
	}
}

// loadSnapshot collects the historical leaf chain for one record page and
// combines it per the resource's versioning policy.
func (t *PageReadTransaction) loadSnapshot(pageKey uint64, index page.IndexType) (Container, error) {
	leaves, err := t.collectSnapshotLeaves(pageKey, index)
	if err != nil {
		return Container{}, err
	}
	if len(leaves) == 0 {
		return EmptyContainer(), nil
	}
	combined, err := revision.Combine(t.opts.Policy, leaves, t.rc)
	if err != nil {
		return Container{}, err
	}
	return NewContainer(combined), nil
}

// collectSnapshotLeaves walks revisions newest first, resolving the leaf
// reference for pageKey in each and deduplicating by file key, until the
// policy says the chain is complete.
func (t *PageReadTransaction) collectSnapshotLeaves(pageKey uint64, index page.IndexType) ([]*page.KeyValueLeafPage, error) {
	var refs []*page.Reference
	seen := make(map[uint64]struct{})
	keep := t.opts.RevisionsToRestore

	for i := t.root.Revision(); i >= 0; {
		root, err := t.revisionRoot(i)
		if err != nil {
			return nil, err
		}
		subtree, err := root.SubtreeRef(index)
		if err != nil {
			return nil, err
		}
		leafRef, err := t.dereferenceLeaf(subtree, pageKey, index)
		if err != nil {
			return nil, err
		}
		if leafRef == nil || leafRef.IsNull() {
			break
		}
		if !leafRef.HasKey() {
			refs = append(refs, leafRef)
		} else if _, dup := seen[leafRef.Key()]; !dup {
			refs = append(refs, leafRef)
			seen[leafRef.Key()] = struct{}{}
		}

		if len(refs) == keep {
			break
		}
		if t.opts.Policy == revision.Full {
			break
		}
		if t.opts.Policy == revision.Differential {
			if len(refs) == 2 || i == 0 {
				break
			}
			// Jump straight to the base snapshot of the window.
			next := i - int32(keep) + 1
			if next < 1 {
				next = 1
			}
			if next >= i {
				next = i - 1
			}
			i = next
			continue
		}
		i--
	}

	leaves := make([]*page.KeyValueLeafPage, 0, len(refs))
	for _, ref := range refs {
		leaf, err := t.loadLeaf(ref)
		if err != nil {
			return nil, err
		}
		if leaf != nil {
			leaves = append(leaves, leaf)
		}
	}
	return leaves, nil
}

func (t *PageReadTransaction) loadLeaf(ref *page.Reference) (*page.KeyValueLeafPage, error) {
	if ref.HasPage() {
		leaf, ok := ref.Page().(*page.KeyValueLeafPage)
		if !ok {
			return nil, fmt.Errorf("%w: %s as leaf", ErrWrongPageKind, ref.Page().Kind())
		}
		return leaf, nil
	}
	if ref.HasLogKey() && t.logs != nil {
		if lg := t.logs.ForIndex(ref.IndexType()); lg != nil {
			if c, ok := lg.Get(uint64(ref.LogKey())); ok {
				return c.Leaf(), nil
			}
		}
	}
	if !ref.HasKey() {
		return nil, nil
	}
	p, err := t.reader.ReadPage(ref.Key(), t.rc)
	if err != nil {
		return nil, err
	}
	leaf, ok := p.(*page.KeyValueLeafPage)
	if !ok {
		return nil, fmt.Errorf("%w: %s as leaf", ErrWrongPageKind, p.Kind())
	}
	ref.SetPage(leaf)
	return leaf, nil
}

// dereferenceLeaf descends one subtree's indirect trie level by level,
// shifting the level key by the uber page's exponent table.
func (t *PageReadTransaction) dereferenceLeaf(start *page.Reference, key uint64, index page.IndexType) (*page.Reference, error) {
	exps, err := t.uber.PageCountExponents(index)
	if err != nil {
		return nil, err
	}
	return t.descend(start, key, exps, index)
}

func (t *PageReadTransaction) descend(start *page.Reference, key uint64, exps []uint8, index page.IndexType) (*page.Reference, error) {
	ref := start
	for _, offset := range page.DescentOffsets(exps, key) {
		indirect, err := t.dereferenceIndirect(ref)
		if err != nil {
			return nil, err
		}
		if indirect == nil {
			return nil, nil
		}
		ref, err = indirect.RefAt(offset)
		if err != nil {
			return nil, err
		}
		ref.SetIndexType(index)
	}
	return ref, nil
}

func (t *PageReadTransaction) dereferenceIndirect(ref *page.Reference) (*page.IndirectPage, error) {
	p, err := t.loadStructural(ref)
	if err != nil || p == nil {
		return nil, err
	}
	indirect, ok := p.(*page.IndirectPage)
	if !ok {
		return nil, fmt.Errorf("%w: %s as indirect", ErrWrongPageKind, p.Kind())
	}
	return indirect, nil
}

// loadStructural resolves indirect and metadata pages through the
// unbounded per-transaction page cache.
func (t *PageReadTransaction) loadStructural(ref *page.Reference) (page.Page, error) {
	if ref == nil || ref.IsNull() {
		return nil, nil
	}
	if ref.HasPage() {
		return ref.Page(), nil
	}
	if !ref.HasKey() {
		return nil, nil
	}
	if p, ok := t.pageCache[ref.Key()]; ok {
		return p, nil
	}
	p, err := t.reader.ReadPage(ref.Key(), t.rc)
	if err != nil {
		return nil, err
	}
	t.pageCache[ref.Key()] = p
	return p, nil
}

// revisionRoot resolves the root page of a revision through the uber
// page's revision trie. Roots are memoized for the snapshot walk.
func (t *PageReadTransaction) revisionRoot(rev int32) (*page.RevisionRootPage, error) {
	if root, ok := t.revRoots[rev]; ok {
		return root, nil
	}
	ref, err := t.descend(t.uber.RevisionRootRef(), uint64(rev), t.uber.RevisionPageCountExps(), page.Document)
	if err != nil {
		return nil, err
	}
	if ref == nil || ref.IsNull() {
		return nil, fmt.Errorf("%w: %d", ErrNoSuchRevision, rev)
	}
	p, err := t.loadStructural(ref)
	if err != nil {
		return nil, err
	}
	root, ok := p.(*page.RevisionRootPage)
	if !ok {
		return nil, fmt.Errorf("%w: %s as revision root", ErrWrongPageKind, p.Kind())
	}
	t.revRoots[rev] = root
	return root, nil
}

// ReadOverflow implements page.OverflowReader.
func (t *PageReadTransaction) ReadOverflow(ref *page.Reference) (*page.OverflowPage, error) {
	if t.closed {
		return nil, ErrClosed
	}
	if ref.HasPage() {
		op, ok := ref.Page().(*page.OverflowPage)
		if !ok {
			return nil, fmt.Errorf("%w: %s as overflow", ErrWrongPageKind, ref.Page().Kind())
		}
		return op, nil
	}
	if !ref.HasKey() {
		return nil, fmt.Errorf("%w: overflow reference unresolved", page.ErrDanglingReference)
	}
	p, err := t.reader.ReadPage(ref.Key(), t.rc)
	if err != nil {
		return nil, err
	}
	op, ok := p.(*page.OverflowPage)
	if !ok {
		return nil, fmt.Errorf("%w: %s at overflow key %d", page.ErrDanglingReference, p.Kind(), ref.Key())
	}
	ref.SetPage(op)
	return op, nil
}

// UberPage returns the resource's global root.
func (t *PageReadTransaction) UberPage() (*page.UberPage, error) {
	if t.closed {
		return nil, ErrClosed
	}
	return t.uber, nil
}

// RevisionRoot returns the bound revision's root page.
func (t *PageReadTransaction) RevisionRoot() (*page.RevisionRootPage, error) {
	if t.closed {
		return nil, ErrClosed
	}
	return t.root, nil
}

// Revision returns the bound revision number.
func (t *PageReadTransaction) Revision() (int32, error) {
	if t.closed {
		return 0, ErrClosed
	}
	return t.root.Revision(), nil
}

func (t *PageReadTransaction) loadNamePage() (*page.NamePage, error) {
	if t.namePage != nil {
		return t.namePage, nil
	}
	p, err := t.loadStructural(t.root.NameRef())
	if err != nil {
		return nil, err
	}
	if p == nil {
		t.namePage = page.NewNamePage()
		return t.namePage, nil
	}
	np, ok := p.(*page.NamePage)
	if !ok {
		return nil, fmt.Errorf("%w: %s as name page", ErrWrongPageKind, p.Kind())
	}
	t.namePage = np
	return np, nil
}

func (t *PageReadTransaction) Name(nameKey int32, kind uint8) (string, error) {
	if t.closed {
		return "", ErrClosed
	}
	np, err := t.loadNamePage()
	if err != nil {
		return "", err
	}
	return np.Name(nameKey, kind), nil
}

func (t *PageReadTransaction) RawName(nameKey int32, kind uint8) ([]byte, error) {
	if t.closed {
		return nil, ErrClosed
	}
	np, err := t.loadNamePage()
	if err != nil {
		return nil, err
	}
	return np.RawName(nameKey, kind), nil
}

func (t *PageReadTransaction) NameCount(nameKey int32, kind uint8) (uint32, error) {
	if t.closed {
		return 0, ErrClosed
	}
	np, err := t.loadNamePage()
	if err != nil {
		return 0, err
	}
	return np.Count(nameKey, kind), nil
}

// ClearCaches invalidates every cache and truncates the mounted logs.
// Subsequent reads rebuild from the file.
func (t *PageReadTransaction) ClearCaches() error {
	if t.closed {
		return ErrClosed
	}
	t.recordCache.Clear()
	if t.pathCache != nil {
		t.pathCache.Clear()
	}
	if t.valueCache != nil {
		t.valueCache.Clear()
	}
	t.pageCache = make(map[uint64]page.Page)
	t.revRoots = make(map[int32]*page.RevisionRootPage)
	t.namePage = nil
	t.mostRecent.valid = false

	// Revision descent state was dropped with the page cache; reload the
	// bound root so later lookups do not dereference a stale pointer.
	root, err := t.revisionRoot(t.root.Revision())
	if err != nil {
		return err
	}
	t.root = root

	if t.logs != nil {
		if err := t.logs.Clear(); err != nil {
			return err
		}
	}
	slog.Debug("cleared page read transaction caches")
	return nil
}

// Close releases the reader and the logs. Idempotent; every operation
// after the first Close fails with ErrClosed.
func (t *PageReadTransaction) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true

	var firstErr error
	if t.logs != nil {
		if err := t.logs.Close(); err != nil {
			firstErr = err
		}
	}
	if err := t.reader.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	slog.Debug("closed page read transaction", "revision", t.root.Revision())
	return firstErr
}

package page

import "fmt"

// Reference is a slot pointing at one page. At any moment exactly one of
// the three carriers is authoritative: the deserialized page, the
// transaction-log key, or the persistent file key.
type Reference struct {
	page      Page
	key       uint64
	logKey    int64
	indexType IndexType
}

func NewReference() *Reference {
	return &Reference{key: NullID, logKey: -1}
}

func (r *Reference) Page() Page { return r.page }

func (r *Reference) SetPage(p Page) { r.page = p }

// SetDirtyPage attaches a freshly written page and invalidates the
// persisted key; the page must be flushed before the reference
// serializes again. SetPage, in contrast, only memoizes a page that was
// read from the existing key.
func (r *Reference) SetDirtyPage(p Page) {
	r.page = p
	r.key = NullID
	r.logKey = -1
}

// Key returns the persistent file key, NullID when not yet persisted.
func (r *Reference) Key() uint64 { return r.key }

// SetKey records the persistent location and drops the log key, which is
// stale once the page reached the main file.
func (r *Reference) SetKey(key uint64) {
	r.key = key
	r.logKey = -1
}

func (r *Reference) LogKey() int64 { return r.logKey }

func (r *Reference) SetLogKey(key int64) { r.logKey = key }

func (r *Reference) HasPage() bool   { return r.page != nil }
func (r *Reference) HasKey() bool    { return r.key != NullID }
func (r *Reference) HasLogKey() bool { return r.logKey >= 0 }

// IsNull reports whether the reference points at nothing at all.
func (r *Reference) IsNull() bool {
	return r.page == nil && r.key == NullID && r.logKey < 0
}

func (r *Reference) IndexType() IndexType     { return r.indexType }
func (r *Reference) SetIndexType(t IndexType) { r.indexType = t }

func (r *Reference) String() string {
	return fmt.Sprintf("ref{key=%d logKey=%d page=%v type=%s}",
		r.key, r.logKey, r.page != nil, r.indexType)
}

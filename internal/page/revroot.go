package page

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/sirixdb/sirix-go/internal/codec"
)

// RevisionRootPage is the entry point of one committed revision: one
// indirect-trie root per index type, the name page, and the commit
// metadata.
type RevisionRootPage struct {
	revision   int32
	maxNodeKey uint64

	// commit metadata
	timestamp int64 // unix millis
	author    string
	message   string
	commitID  uuid.UUID

	subtreeRefs [IndexTypeCount]*Reference
	nameRef     *Reference
}

func NewRevisionRootPage(revision int32) *RevisionRootPage {
	p := &RevisionRootPage{revision: revision, nameRef: NewReference()}
	for i := range p.subtreeRefs {
		p.subtreeRefs[i] = NewReference()
		p.subtreeRefs[i].SetIndexType(IndexType(i))
	}
	return p
}

func (p *RevisionRootPage) Kind() Kind          { return KindRevisionRoot }
func (p *RevisionRootPage) Revision() int32     { return p.revision }
func (p *RevisionRootPage) MaxNodeKey() uint64  { return p.maxNodeKey }
func (p *RevisionRootPage) Timestamp() int64    { return p.timestamp }
func (p *RevisionRootPage) Author() string      { return p.author }
func (p *RevisionRootPage) Message() string     { return p.message }
func (p *RevisionRootPage) CommitID() uuid.UUID { return p.commitID }

func (p *RevisionRootPage) SetMaxNodeKey(k uint64) { p.maxNodeKey = k }

// SetCommitMetadata stamps the commit info; the id identifies the commit
// across replicas and logs.
func (p *RevisionRootPage) SetCommitMetadata(timestamp int64, author, message string) {
	p.timestamp = timestamp
	p.author = author
	p.message = message
	p.commitID = uuid.New()
}

// SubtreeRef returns the indirect-trie root reference for an index type.
// The reference always exists; a never-written subtree is a null
// reference, created on first use.
func (p *RevisionRootPage) SubtreeRef(t IndexType) (*Reference, error) {
	if int(t) >= len(p.subtreeRefs) {
		return nil, fmt.Errorf("%w: index type %d", ErrUnsupportedKey, t)
	}
	return p.subtreeRefs[t], nil
}

func (p *RevisionRootPage) NameRef() *Reference { return p.nameRef }

func (p *RevisionRootPage) Serialize(out *codec.Buffer) error {
	out.WriteI32(p.revision)
	out.WriteI64(p.timestamp)
	codec.PutUvarint(out, p.maxNodeKey)
	out.Write(p.commitID[:])
	writeString(out, p.author)
	writeString(out, p.message)
	for _, ref := range p.subtreeRefs {
		out.WriteU64(ref.Key())
	}
	out.WriteU64(p.nameRef.Key())
	return nil
}

func deserializeRevisionRoot(in *codec.Buffer) (*RevisionRootPage, error) {
	revision, err := in.ReadI32()
	if err != nil {
		return nil, fmt.Errorf("%w: revision: %v", ErrCorrupt, err)
	}
	p := NewRevisionRootPage(revision)
	if p.timestamp, err = in.ReadI64(); err != nil {
		return nil, fmt.Errorf("%w: timestamp: %v", ErrCorrupt, err)
	}
	if p.maxNodeKey, err = codec.Uvarint(in); err != nil {
		return nil, fmt.Errorf("%w: max node key: %v", ErrCorrupt, err)
	}
	idRaw, err := in.Next(16)
	if err != nil {
		return nil, fmt.Errorf("%w: commit id: %v", ErrCorrupt, err)
	}
	copy(p.commitID[:], idRaw)
	if p.author, err = readString(in); err != nil {
		return nil, fmt.Errorf("%w: author: %v", ErrCorrupt, err)
	}
	if p.message, err = readString(in); err != nil {
		return nil, fmt.Errorf("%w: commit message: %v", ErrCorrupt, err)
	}
	for i := range p.subtreeRefs {
		key, err := in.ReadU64()
		if err != nil {
			return nil, fmt.Errorf("%w: subtree ref: %v", ErrCorrupt, err)
		}
		if key != NullID {
			p.subtreeRefs[i].SetKey(key)
		}
	}
	nameKey, err := in.ReadU64()
	if err != nil {
		return nil, fmt.Errorf("%w: name ref: %v", ErrCorrupt, err)
	}
	if nameKey != NullID {
		p.nameRef.SetKey(nameKey)
	}
	return p, nil
}

func writeString(out *codec.Buffer, s string) {
	out.WriteI32(int32(len(s)))
	out.Write([]byte(s))
}

func readString(in *codec.Buffer) (string, error) {
	n, err := in.ReadI32()
	if err != nil || n < 0 {
		return "", ErrCorrupt
	}
	raw, err := in.Next(int(n))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

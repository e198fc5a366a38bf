package page

import "fmt"

// Kind tags every page image on disk. The family is closed; the codec
// dispatch in page.go is the only place that maps tags to types.
type Kind uint8

const (
	KindUber Kind = iota + 1
	KindRevisionRoot
	KindIndirect
	KindKeyValueLeaf
	KindOverflow
	KindName
)

func (k Kind) String() string {
	switch k {
	case KindUber:
		return "uber"
	case KindRevisionRoot:
		return "revision_root"
	case KindIndirect:
		return "indirect"
	case KindKeyValueLeaf:
		return "key_value_leaf"
	case KindOverflow:
		return "overflow"
	case KindName:
		return "name"
	default:
		return "unknown"
	}
}

// IndexType names the parallel indirect tries a revision root carries.
type IndexType uint8

const (
	Document IndexType = iota
	ChangedNodes
	RecordToRevisions
	PathSummary
	CAS
	Path
	Name

	IndexTypeCount = 7
)

func (t IndexType) String() string {
	switch t {
	case Document:
		return "document"
	case ChangedNodes:
		return "changed_nodes"
	case RecordToRevisions:
		return "record_to_revisions"
	case PathSummary:
		return "path_summary"
	case CAS:
		return "cas"
	case Path:
		return "path"
	case Name:
		return "name"
	default:
		return "unknown"
	}
}

func IndexTypeFromID(id uint8) (IndexType, error) {
	if id >= IndexTypeCount {
		return 0, fmt.Errorf("%w: index type id %d", ErrCorrupt, id)
	}
	return IndexType(id), nil
}

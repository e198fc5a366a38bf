package revision

import (
	"errors"

	"github.com/sirixdb/sirix-go/internal/page"
)

var ErrNoLeaves = errors.New("revision: empty snapshot chain")

// Combine merges a chain of snapshot leaves into the fully materialized
// logical page. The chain is ordered newest first; when two leaves carry
// the same node key the newer one wins. Full returns the head leaf
// itself; the other policies return a fresh page. Either way the caller
// treats the result as an immutable view.
func Combine(policy Policy, chain []*page.KeyValueLeafPage, rc page.ResourceContext) (*page.KeyValueLeafPage, error) {
	if len(chain) == 0 {
		return nil, ErrNoLeaves
	}
	head := chain[0]

	switch policy {
	case Full:
		return head, nil
	case Differential:
		// Newest leaf is the diff, the earliest retrieved leaf is the
		// base; anything between is redundant.
		out := newView(head, rc)
		head.MergeInto(out)
		if base := chain[len(chain)-1]; base != head {
			base.MergeInto(out)
		}
		return out, nil
	case Incremental, SlidingSnapshot:
		out := newView(head, rc)
		for _, leaf := range chain {
			leaf.MergeInto(out)
		}
		return out, nil
	default:
		return nil, ErrUnknownPolicy
	}
}

func newView(head *page.KeyValueLeafPage, rc page.ResourceContext) *page.KeyValueLeafPage {
	out := page.NewKeyValueLeafPage(head.RecordPageKey(), head.IndexType(), rc)
	out.SetRevision(head.Revision())
	return out
}

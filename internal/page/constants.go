package page

import (
	"errors"
	"math"
)

const (
	// NDPNodeCountExponent fixes how many contiguous node keys one leaf
	// covers: recordPageKey = nodeKey >> NDPNodeCountExponent.
	NDPNodeCountExponent = 9
	NDPNodeCount         = 1 << NDPNodeCountExponent

	// MaxRecordSize is the inline threshold. A record whose serialized
	// payload exceeds it moves to an overflow page; only the reference
	// stays in the leaf. Page size minus the fixed header.
	MaxRecordSize = 1<<20 - 64

	// NullID marks an absent page key in references and indirect pages.
	NullID uint64 = math.MaxUint64
)

// DefaultFanoutExponents is the per-level shift table for the indirect
// tries: level l extracts the key bits above exps[l]. Four levels of
// fanout 1<<7 address 2^28 leaves per subtree.
var DefaultFanoutExponents = []uint8{21, 14, 7, 0}

var (
	ErrCorrupt           = errors.New("page: corrupt page image")
	ErrDanglingReference = errors.New("page: overflow reference to unreachable key")
	ErrUnsupportedKey    = errors.New("page: key outside addressable range")
	ErrIllegalState      = errors.New("page: illegal state")
)

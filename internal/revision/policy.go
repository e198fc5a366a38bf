package revision

import (
	"errors"
	"fmt"
)

var ErrUnknownPolicy = errors.New("revision: unknown versioning policy")

// Policy controls how many historical leaves a reader fetches for one
// record page and how they merge back into the logical page.
type Policy uint8

const (
	// Full stores a complete leaf every revision; reads use the newest
	// leaf alone.
	Full Policy = iota + 1
	// Differential stores a diff against the last full snapshot; reads
	// merge the newest diff with its base.
	Differential
	// Incremental stores a diff every revision; reads fold the whole
	// chain.
	Incremental
	// SlidingSnapshot folds at most revisionsToRestore trailing diffs.
	SlidingSnapshot
)

func (p Policy) String() string {
	switch p {
	case Full:
		return "full"
	case Differential:
		return "differential"
	case Incremental:
		return "incremental"
	case SlidingSnapshot:
		return "sliding_snapshot"
	default:
		return "unknown"
	}
}

func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "full":
		return Full, nil
	case "differential":
		return Differential, nil
	case "incremental":
		return Incremental, nil
	case "sliding_snapshot":
		return SlidingSnapshot, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
}

package page

// DescentOffsets computes the per-level slot offsets of key through an
// indirect trie: at every level the remaining key is shifted by that
// level's exponent, and the extracted offset is subtracted back out.
func DescentOffsets(exps []uint8, key uint64) []uint64 {
	offsets := make([]uint64, len(exps))
	levelKey := key
	for l, exp := range exps {
		offset := levelKey >> exp
		levelKey -= offset << exp
		offsets[l] = offset
	}
	return offsets
}

// FanoutAtLevel derives the slot count of one trie level from the shift
// table. A level's width is the gap to the exponent above it; the top
// level reuses the width of the level below.
func FanoutAtLevel(exps []uint8, level int) int {
	var width uint8
	switch {
	case level > 0:
		width = exps[level-1] - exps[level]
	case len(exps) > 1:
		width = exps[0] - exps[1]
	default:
		width = 7
	}
	return 1 << width
}

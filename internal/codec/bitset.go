package codec

import (
	"errors"
	"math/bits"
)

var ErrBitsetRange = errors.New("codec: bit index out of range")

const wordBits = 64

// BitSet is a fixed-width bit vector. Leaf pages keep two of them, one for
// inline slots and one for overflow references, so that the on-disk form
// can omit node keys entirely.
//
// Serialized layout:
//
//	i32       word count
//	repeat:   u64 word, little-endian
type BitSet struct {
	words []uint64
	nbits int
}

func NewBitSet(nbits int) *BitSet {
	return &BitSet{
		words: make([]uint64, (nbits+wordBits-1)/wordBits),
		nbits: nbits,
	}
}

func (s *BitSet) Len() int { return s.nbits }

func (s *BitSet) Set(i int) {
	s.words[i/wordBits] |= 1 << uint(i%wordBits)
}

func (s *BitSet) Clear(i int) {
	s.words[i/wordBits] &^= 1 << uint(i%wordBits)
}

func (s *BitSet) Test(i int) bool {
	if i < 0 || i >= s.nbits {
		return false
	}
	return s.words[i/wordBits]&(1<<uint(i%wordBits)) != 0
}

func (s *BitSet) Count() int {
	n := 0
	for _, w := range s.words {
		n += bits.OnesCount64(w)
	}
	return n
}

// ForEach visits set bits in ascending order.
func (s *BitSet) ForEach(fn func(i int)) {
	for wi, w := range s.words {
		for w != 0 {
			fn(wi*wordBits + bits.TrailingZeros64(w))
			w &= w - 1
		}
	}
}

func (s *BitSet) Serialize(out *Buffer) {
	out.WriteI32(int32(len(s.words)))
	var tmp [8]byte
	for _, w := range s.words {
		for i := 0; i < 8; i++ {
			tmp[i] = byte(w >> (8 * i))
		}
		out.Write(tmp[:])
	}
}

// DeserializeBitSet reads a bitset written by Serialize. nbits bounds the
// accepted word count so a corrupt prefix cannot trigger a huge alloc.
func DeserializeBitSet(in *Buffer, nbits int) (*BitSet, error) {
	wc, err := in.ReadI32()
	if err != nil {
		return nil, err
	}
	maxWords := (nbits + wordBits - 1) / wordBits
	if wc < 0 || int(wc) > maxWords {
		return nil, ErrBitsetRange
	}
	s := NewBitSet(nbits)
	for i := 0; i < int(wc); i++ {
		p, err := in.Next(8)
		if err != nil {
			return nil, err
		}
		var w uint64
		for j := 0; j < 8; j++ {
			w |= uint64(p[j]) << (8 * j)
		}
		s.words[i] = w
	}
	return s, nil
}

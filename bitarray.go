package gloom

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
)

// BitArray is a fixed-length bit vector. All bits start clear and are
// only ever set, never cleared.
//
// Unlike the underlying bitset, a BitArray never grows: setting or
// reading a position at or beyond Len panics.
type BitArray struct {
	set    *bitset.BitSet
	length uint64
}

// NewBitArray allocates a zeroed BitArray of length bits.
func NewBitArray(length uint64) *BitArray {
	return &BitArray{
		set:    bitset.New(uint(length)),
		length: length,
	}
}

// bitArrayFromWords wraps words (little-endian bit order within each word)
// as a BitArray of length bits. The caller guarantees len(words) matches
// length and that no bit at or beyond length is set.
func bitArrayFromWords(length uint64, words []uint64) *BitArray {
	return &BitArray{
		set:    bitset.FromWithLength(uint(length), words),
		length: length,
	}
}

// wordsFor returns the number of 64-bit words needed for length bits.
func wordsFor(length uint64) uint64 {
	return (length + 63) / 64
}

func (b *BitArray) check(pos uint64) {
	if pos >= b.length {
		panic(fmt.Sprintf("gloom: bit position %d out of range [0, %d)", pos, b.length))
	}
}

// Set sets the bit at pos. Setting an already-set bit is a no-op.
func (b *BitArray) Set(pos uint64) {
	b.check(pos)
	b.set.Set(uint(pos))
}

// Get reports whether the bit at pos is set.
func (b *BitArray) Get(pos uint64) bool {
	b.check(pos)
	return b.set.Test(uint(pos))
}

// UnionWith ORs every bit of other into b. other is not modified.
// Returns ErrLengthMismatch, leaving b untouched, when the lengths differ.
func (b *BitArray) UnionWith(other *BitArray) error {
	if other.length != b.length {
		return fmt.Errorf("%w: %d bits <> %d bits", ErrLengthMismatch, b.length, other.length)
	}
	b.set.InPlaceUnion(other.set)
	return nil
}

// Len returns the number of bits in the array.
func (b *BitArray) Len() uint64 {
	return b.length
}

// Count returns the number of set bits.
func (b *BitArray) Count() uint64 {
	return uint64(b.set.Count())
}

// Equal reports whether b and other have the same length and bits.
func (b *BitArray) Equal(other *BitArray) bool {
	return b.length == other.length && b.set.Equal(other.set)
}

// Clone returns an independent copy of b.
func (b *BitArray) Clone() *BitArray {
	return &BitArray{
		set:    b.set.Clone(),
		length: b.length,
	}
}

// words exposes the backing storage for serialization. The returned slice
// aliases the array and must not be retained past the caller's lock.
func (b *BitArray) words() []uint64 {
	return b.set.Bytes()
}

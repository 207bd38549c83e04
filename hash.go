package gloom

import "github.com/zeebo/xxh3"

// hashPair computes the two base hashes used for double hashing from the
// seeded 128-bit xxh3 hash of data.
func hashPair(data []byte, seed uint64) (h1, h2 uint64) {
	h := xxh3.Hash128Seed(data, seed)
	return splitPair(h)
}

// hashPairString is hashPair for strings without converting to []byte.
func hashPairString(s string, seed uint64) (h1, h2 uint64) {
	h := xxh3.HashString128Seed(s, seed)
	return splitPair(h)
}

func splitPair(h xxh3.Uint128) (h1, h2 uint64) {
	h1, h2 = h.Lo, h.Hi
	// A zero step would put every probe on h1.
	if h2 == 0 {
		h2 = 1
	}
	return h1, h2
}

// probe returns the i-th bit position: (h1 + i*h2) mod m.
func probe(h1, h2 uint64, i uint32, m uint64) uint64 {
	return (h1 + uint64(i)*h2) % m
}

// Positions returns the k bit positions that value maps to in a filter of
// m bits hashed with seed. Filters call the same derivation internally;
// it is exported for diagnostics and tests.
func Positions(value []byte, k uint32, m uint64, seed uint64) []uint64 {
	if m == 0 {
		return nil
	}
	h1, h2 := hashPair(value, seed)
	out := make([]uint64, k)
	for i := range k {
		out[i] = probe(h1, h2, i, m)
	}
	return out
}

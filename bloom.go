package gloom

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Filter is a non-thread-safe bloom filter using double hashing over a
// single bit array.
//
// Every probe position for a value is derived from one seeded 128-bit xxh3
// hash split into two halves h1 and h2: position i is (h1 + i*h2) mod m.
// Two filters with the same bit count, hash count and seed therefore map
// every value to the same bits, which is what makes them mergeable.
type Filter struct {
	bits      *BitArray
	m         uint64  // Number of bits
	k         uint32  // Number of hash functions
	seed      uint64  // Hash seed
	capacity  uint64  // Expected items the filter was sized for
	errorRate float64 // Target false positive rate the filter was sized for
	count     uint64  // Number of items added (approximate)
}

// New creates a bloom filter sized for the expected number of items and
// desired false positive rate, hashing with seed.
func New(expectedItems uint64, fpRate float64, seed uint64) (*Filter, error) {
	m, k, err := OptimalParams(expectedItems, fpRate)
	if err != nil {
		return nil, err
	}
	f := newFilter(m, k, seed)
	f.capacity = expectedItems
	f.errorRate = fpRate
	return f, nil
}

// NewFromParams is New taking a Params.
func NewFromParams(p Params) (*Filter, error) {
	return New(p.Capacity, p.ErrorRate, p.Seed)
}

// NewWithParams creates a bloom filter with explicit parameters: m bits and
// k hash functions.
func NewWithParams(m uint64, k uint32, seed uint64) (*Filter, error) {
	if m == 0 || m > MaxBits {
		return nil, fmt.Errorf("%w: bit count %d not in [1, %d]", ErrInvalidParams, m, MaxBits)
	}
	if k == 0 || k > MaxK {
		return nil, fmt.Errorf("%w: hash count %d not in [1, %d]", ErrInvalidParams, k, MaxK)
	}
	return newFilter(m, k, seed), nil
}

func newFilter(m uint64, k uint32, seed uint64) *Filter {
	return &Filter{
		bits: NewBitArray(m),
		m:    m,
		k:    k,
		seed: seed,
	}
}

// Add adds data to the bloom filter.
func (f *Filter) Add(data []byte) {
	h1, h2 := hashPair(data, f.seed)
	f.addWithHash(h1, h2)
}

// AddString adds a string to the bloom filter without allocating.
func (f *Filter) AddString(s string) {
	h1, h2 := hashPairString(s, f.seed)
	f.addWithHash(h1, h2)
}

// addWithHash sets bits in the filter using pre-computed hash values.
func (f *Filter) addWithHash(h1, h2 uint64) {
	for i := uint32(0); i < f.k; i++ {
		f.bits.Set(probe(h1, h2, i, f.m))
	}
	f.count++
}

// Test checks if data might be in the bloom filter.
// Returns true if the data might be present (with false positive probability),
// or false if the data is definitely not present.
func (f *Filter) Test(data []byte) bool {
	h1, h2 := hashPair(data, f.seed)
	return f.testWithHash(h1, h2)
}

// TestString checks if a string might be in the bloom filter without allocating.
func (f *Filter) TestString(s string) bool {
	h1, h2 := hashPairString(s, f.seed)
	return f.testWithHash(h1, h2)
}

// testWithHash checks bits in the filter using pre-computed hash values.
func (f *Filter) testWithHash(h1, h2 uint64) bool {
	for i := uint32(0); i < f.k; i++ {
		if !f.bits.Get(probe(h1, h2, i, f.m)) {
			return false
		}
	}
	return true
}

// TestAndAdd reports whether data might already have been present, then
// adds it.
func (f *Filter) TestAndAdd(data []byte) bool {
	h1, h2 := hashPair(data, f.seed)
	present := f.testWithHash(h1, h2)
	f.addWithHash(h1, h2)
	return present
}

// TestAndAddString is TestAndAdd for strings.
func (f *Filter) TestAndAddString(s string) bool {
	h1, h2 := hashPairString(s, f.seed)
	present := f.testWithHash(h1, h2)
	f.addWithHash(h1, h2)
	return present
}

// Compatible returns ErrIncompatible unless other has the same bit count,
// hash count and seed as f.
func (f *Filter) Compatible(other *Filter) error {
	switch {
	case f.m != other.m:
		return fmt.Errorf("%w: bit count %d <> %d", ErrIncompatible, f.m, other.m)
	case f.k != other.k:
		return fmt.Errorf("%w: hash count %d <> %d", ErrIncompatible, f.k, other.k)
	case f.seed != other.seed:
		return fmt.Errorf("%w: seed %d <> %d", ErrIncompatible, f.seed, other.seed)
	}
	return nil
}

// Merge performs an in-place union of other into f. other is not modified.
// If the filters are not Compatible, no bit of f changes.
func (f *Filter) Merge(other *Filter) error {
	if err := f.Compatible(other); err != nil {
		return err
	}
	if other == f {
		return nil
	}
	if err := f.bits.UnionWith(other.bits); err != nil {
		return err
	}
	f.count += other.count
	return nil
}

// Clone returns an independent copy of f.
func (f *Filter) Clone() *Filter {
	clone := *f
	clone.bits = f.bits.Clone()
	return &clone
}

// Cap returns the capacity of the filter in bits.
func (f *Filter) Cap() uint64 {
	return f.m
}

// K returns the number of hash functions used.
func (f *Filter) K() uint32 {
	return f.k
}

// Seed returns the hash seed.
func (f *Filter) Seed() uint64 {
	return f.seed
}

// Capacity returns the expected item count the filter was sized for, or 0
// if it was built with NewWithParams.
func (f *Filter) Capacity() uint64 {
	return f.capacity
}

// ErrorRate returns the false positive rate the filter was sized for, or 0
// if it was built with NewWithParams.
func (f *Filter) ErrorRate() float64 {
	return f.errorRate
}

// Count returns the approximate number of items added to the filter.
func (f *Filter) Count() uint64 {
	return f.count
}

// SizeBytes returns the memory held by the bit array.
func (f *Filter) SizeBytes() uint64 {
	return wordsFor(f.m) * 8
}

// EstimatedFillRatio returns the proportion of bits that are set.
func (f *Filter) EstimatedFillRatio() float64 {
	return float64(f.bits.Count()) / float64(f.m)
}

// EstimatedFalsePositiveRate estimates the current false positive rate
// based on the number of items added.
func (f *Filter) EstimatedFalsePositiveRate() float64 {
	return EstimateFalsePositiveRate(f.m, f.k, f.count)
}

// Serialization constants.
const (
	// serializeVersion is the current serialization format version.
	serializeVersion byte = 2

	// headerSize is the size of the serialization header in bytes.
	// Version (1) + K (4) + M (8) + Seed (8) + Count (8) + Capacity (8) + ErrorRate (8) = 45 bytes
	headerSize = 45
)

// MarshalBinary serializes the bloom filter to a byte slice.
// The serialized format is:
//   - Version (1 byte): serialization format version
//   - K (4 bytes): number of hash functions (little-endian uint32)
//   - M (8 bytes): number of bits (little-endian uint64)
//   - Seed (8 bytes): hash seed (little-endian uint64)
//   - Count (8 bytes): number of items added (little-endian uint64)
//   - Capacity (8 bytes): sizing capacity (little-endian uint64)
//   - ErrorRate (8 bytes): sizing error rate (little-endian IEEE-754 bits)
//   - Words (ceil(M/64) * 8 bytes): the bit array data (little-endian uint64s)
func (f *Filter) MarshalBinary() ([]byte, error) {
	words := f.bits.words()
	buf := make([]byte, headerSize+len(words)*8)

	// Write header
	buf[0] = serializeVersion
	binary.LittleEndian.PutUint32(buf[1:5], f.k)
	binary.LittleEndian.PutUint64(buf[5:13], f.m)
	binary.LittleEndian.PutUint64(buf[13:21], f.seed)
	binary.LittleEndian.PutUint64(buf[21:29], f.count)
	binary.LittleEndian.PutUint64(buf[29:37], f.capacity)
	binary.LittleEndian.PutUint64(buf[37:45], math.Float64bits(f.errorRate))

	// Write bit data
	offset := headerSize
	for _, word := range words {
		binary.LittleEndian.PutUint64(buf[offset:offset+8], word)
		offset += 8
	}

	return buf, nil
}

// UnmarshalBinary deserializes a bloom filter from a byte slice.
// Returns an error if the data is invalid or corrupted.
func UnmarshalBinary(data []byte) (*Filter, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: data too short (got %d bytes, need at least %d)", ErrInvalidData, len(data), headerSize)
	}

	// Read and validate version
	version := data[0]
	if version != serializeVersion {
		return nil, fmt.Errorf("%w: got version %d, expected %d", ErrUnsupportedVersion, version, serializeVersion)
	}

	// Read header fields
	k := binary.LittleEndian.Uint32(data[1:5])
	m := binary.LittleEndian.Uint64(data[5:13])
	seed := binary.LittleEndian.Uint64(data[13:21])
	count := binary.LittleEndian.Uint64(data[21:29])
	capacity := binary.LittleEndian.Uint64(data[29:37])
	errorRate := math.Float64frombits(binary.LittleEndian.Uint64(data[37:45]))

	if k == 0 || k > MaxK {
		return nil, fmt.Errorf("%w: k=%d is not supported (valid range: 1-%d)", ErrInvalidK, k, MaxK)
	}

	// Bounding m first keeps the length arithmetic below from overflowing.
	if m == 0 {
		return nil, fmt.Errorf("%w: bit count cannot be zero", ErrInvalidData)
	}
	if m > MaxBits {
		return nil, fmt.Errorf("%w: bit count too large (%d)", ErrInvalidData, m)
	}
	if math.IsNaN(errorRate) || errorRate < 0 || errorRate >= 1 {
		return nil, fmt.Errorf("%w: error rate %v out of range", ErrInvalidData, errorRate)
	}

	numWords := wordsFor(m)
	expectedTotalLen := headerSize + numWords*8
	if uint64(len(data)) != expectedTotalLen {
		return nil, fmt.Errorf("%w: data length mismatch (got %d bytes, expected %d)", ErrInvalidData, len(data), expectedTotalLen)
	}

	words := make([]uint64, numWords)
	offset := headerSize
	for i := range words {
		words[i] = binary.LittleEndian.Uint64(data[offset : offset+8])
		offset += 8
	}

	// Bits past m would never be probed but would skew the fill ratio and
	// break Equal against a freshly built filter.
	if tail := m % 64; tail != 0 {
		if words[numWords-1]>>tail != 0 {
			return nil, fmt.Errorf("%w: bits set beyond bit count %d", ErrInvalidData, m)
		}
	}

	return &Filter{
		bits:      bitArrayFromWords(m, words),
		m:         m,
		k:         k,
		seed:      seed,
		capacity:  capacity,
		errorRate: errorRate,
		count:     count,
	}, nil
}

// Package gloom provides Bloom filters and a registry of named filters.
//
// A bloom filter is a space-efficient probabilistic data structure that tests
// whether an element is a member of a set. False positive matches are possible,
// but false negatives are not – if the filter says an element is not present,
// it definitely is not. If it says an element might be present, it could be a
// false positive.
//
// # Hashing
//
// Each value is hashed once with a seeded 128-bit xxh3. The two 64-bit
// halves h1 and h2 drive double hashing: probe i lands on bit
//
//	(h1 + i*h2) mod m
//
// for i in [0, k). A zero h2 is replaced by 1 so every probe sequence
// advances. Filters built with the same bit count, hash count and seed
// place every value on the same bits, which is what makes them mergeable.
// See [Positions].
//
// # Choosing Parameters
//
// Use [New] or [NewFromParams] with the expected number of items and the
// desired false positive rate:
//
//	// Filter for 1 million items with 1% false positive rate
//	f, err := gloom.New(1_000_000, 0.01, 0)
//
// The bit count m and hash count k follow from [OptimalParams]:
//
//	m = ceil(-n * ln(p) / ln(2)^2)
//	k = round((m / n) * ln(2))
//
// [NewWithParams] takes m and k directly. [DefaultParams] returns the
// registry defaults: capacity 1,000,000, error rate 0.01 and seed 0.
//
// # False Positive Rate
//
// When the filter is filled to its intended capacity, it will achieve
// approximately the target false positive rate. Adding more items than
// the capacity increases the false positive rate. Use
// [Filter.EstimatedFalsePositiveRate] to monitor the current rate.
//
// # Merging
//
// [Filter.Merge] ORs another filter's bits into the receiver. Only the
// derived parameters (m, k and seed) must match; two filters sized from
// different capacities that happen to derive the same m and k merge fine.
// A rejected merge leaves both filters unchanged.
//
// # Registry
//
// [Registry] maps names to filters. Its operations mirror a filter's
// lifecycle: [Registry.Create], [Registry.Add], [Registry.Test],
// [Registry.Merge] and [Registry.Delete], plus [Registry.Dump] and
// [Registry.Restore] for moving a filter between processes.
//
// Errors are sentinels tested with [errors.Is]: [ErrInvalidParams],
// [ErrNotFound], [ErrExists] and [ErrIncompatible] cover the lifecycle.
//
// # Thread Safety
//
// [Filter] is NOT thread-safe. Use external synchronization or a
// [Registry].
//
// [Registry] is safe for concurrent use. Each filter has its own
// reader/writer lock: tests share it, adds and merges into the filter take
// it exclusively. Operations on different names do not contend.
//
// # Serialization
//
// [Filter.MarshalBinary] writes a versioned little-endian header followed
// by the bit array. [UnmarshalBinary] validates the header and rejects
// data whose length or tail bits do not match it.
//
// # References
//
//   - Less Hashing, Same Performance: https://www.eecs.harvard.edu/~michaelm/postscripts/rsa2008.pdf
package gloom

package gloom

import (
	"fmt"
	"math"
)

const (
	// ln2 is the natural logarithm of 2.
	ln2 = 0.6931471805599453
	// ln2Squared is ln(2)^2.
	ln2Squared = 0.4804530139182014

	// MaxBits is the largest bit array a filter may allocate (128 GiB).
	MaxBits = uint64(1) << 40

	// MaxK is the largest hash count a filter may use.
	MaxK = 1024
)

const (
	// DefaultCapacity is the expected item count used when a caller
	// creates a filter without naming one.
	DefaultCapacity = 1_000_000
	// DefaultErrorRate is the target false positive rate used when a
	// caller creates a filter without naming one.
	DefaultErrorRate = 0.01
	// DefaultSeed is the hash seed used when a caller creates a filter
	// without naming one. It is fixed so that default filters hash
	// identically across processes and can be merged with each other.
	DefaultSeed = 0
)

// Params are the creation-time inputs of a filter.
type Params struct {
	Capacity  uint64
	ErrorRate float64
	Seed      uint64
}

// DefaultParams returns DefaultCapacity, DefaultErrorRate and DefaultSeed.
func DefaultParams() Params {
	return Params{
		Capacity:  DefaultCapacity,
		ErrorRate: DefaultErrorRate,
		Seed:      DefaultSeed,
	}
}

// Validate checks that p can be sized.
func (p Params) Validate() error {
	_, _, err := OptimalParams(p.Capacity, p.ErrorRate)
	return err
}

// OptimalParams calculates the bit count m and hash count k for a filter
// holding expectedItems at the target false positive rate.
//
//	m = ceil(-n * ln(p) / ln(2)^2)
//	k = round((m / n) * ln(2))
//
// Both results are at least 1. expectedItems must be at least 1 and fpRate
// must lie in the open interval (0, 1). Targets that need more than MaxBits
// bits or MaxK hash functions are rejected.
func OptimalParams(expectedItems uint64, fpRate float64) (m uint64, k uint32, err error) {
	if expectedItems == 0 {
		return 0, 0, fmt.Errorf("%w: capacity must be at least 1", ErrInvalidParams)
	}
	if math.IsNaN(fpRate) || fpRate <= 0 || fpRate >= 1 {
		return 0, 0, fmt.Errorf("%w: error rate %v is not in (0, 1)", ErrInvalidParams, fpRate)
	}

	n := float64(expectedItems)
	mFloat := math.Ceil(-n * math.Log(fpRate) / ln2Squared)
	if mFloat > float64(MaxBits) {
		return 0, 0, fmt.Errorf("%w: capacity %d at error rate %v needs %.0f bits (max %d)",
			ErrInvalidParams, expectedItems, fpRate, mFloat, MaxBits)
	}
	m = max(uint64(mFloat), 1)

	kFloat := math.Round(float64(m) / n * ln2)
	if kFloat > MaxK {
		return 0, 0, fmt.Errorf("%w: error rate %v needs %.0f hash functions (max %d)",
			ErrInvalidParams, fpRate, kFloat, MaxK)
	}
	k = uint32(max(kFloat, 1))

	return m, k, nil
}

// EstimateFalsePositiveRate estimates the false positive rate of a filter
// with m bits and k hash functions after itemsAdded insertions.
// Formula: (1 - e^(-kn/m))^k
func EstimateFalsePositiveRate(m uint64, k uint32, itemsAdded uint64) float64 {
	if m == 0 || itemsAdded == 0 {
		return 0
	}

	mf := float64(m)
	n := float64(itemsAdded)
	kf := float64(k)

	return math.Pow(1-math.Exp(-kf*n/mf), kf)
}

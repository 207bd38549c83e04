package gloom

import "errors"

var (
	// ErrInvalidParams is returned when a filter's capacity or error rate
	// cannot be sized. Nothing is allocated when it is returned.
	ErrInvalidParams = errors.New("gloom: invalid filter parameters")

	// ErrInvalidName is returned for an empty filter name.
	ErrInvalidName = errors.New("gloom: invalid filter name")

	// ErrNotFound is returned when a name has no live filter.
	ErrNotFound = errors.New("gloom: filter not found")

	// ErrExists is returned when creating a filter under a name that is
	// already present.
	ErrExists = errors.New("gloom: filter already exists")

	// ErrIncompatible is returned when merging filters whose bit count,
	// hash count or seed differ.
	ErrIncompatible = errors.New("gloom: filters have incompatible parameters")

	// ErrLengthMismatch is returned when unioning bit arrays of different
	// lengths.
	ErrLengthMismatch = errors.New("gloom: bit array length mismatch")

	// ErrLimit is returned when a registry already holds its maximum
	// number of filters.
	ErrLimit = errors.New("gloom: filter limit reached")

	// ErrInvalidData is returned when the serialized data is invalid or corrupted.
	ErrInvalidData = errors.New("gloom: invalid serialized data")

	// ErrUnsupportedVersion is returned when the serialization version is not supported.
	ErrUnsupportedVersion = errors.New("gloom: unsupported serialization version")

	// ErrInvalidK is returned when k value in serialized data is not supported.
	ErrInvalidK = errors.New("gloom: invalid k value in serialized data")
)

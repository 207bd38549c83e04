package gloom

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// shardCount is the number of independently locked partitions of the
// registry's name table.
const shardCount = 64

// Info describes a registered filter.
type Info struct {
	Name            string  `json:"name"`
	Capacity        uint64  `json:"capacity"`
	ErrorRate       float64 `json:"error_rate"`
	Seed            uint64  `json:"seed"`
	BitCount        uint64  `json:"bit_count"`
	HashCount       uint32  `json:"hash_count"`
	Count           uint64  `json:"count"`
	SizeBytes       uint64  `json:"size_bytes"`
	FillRatio       float64 `json:"fill_ratio"`
	EstimatedFPRate float64 `json:"estimated_fp_rate"`
}

func infoOf(name string, f *Filter) Info {
	return Info{
		Name:            name,
		Capacity:        f.capacity,
		ErrorRate:       f.errorRate,
		Seed:            f.seed,
		BitCount:        f.m,
		HashCount:       f.k,
		Count:           f.count,
		SizeBytes:       f.SizeBytes(),
		FillRatio:       f.EstimatedFillRatio(),
		EstimatedFPRate: f.EstimatedFalsePositiveRate(),
	}
}

// entry is one named filter. mu guards filter and dead; readers (Test,
// Info, Dump) share it, writers (Add, Merge target, Delete) hold it
// exclusively.
type entry struct {
	name   string
	mu     sync.RWMutex
	filter *Filter
	dead   bool
}

type registryShard struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// Registry maps names to filters. It is safe for concurrent use: the name
// table is split into shards keyed by the xxhash of the name, and each
// filter has its own reader/writer lock, so operations on different names
// do not contend.
type Registry struct {
	shards     [shardCount]registryShard
	size       atomic.Int64
	maxFilters int64
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithMaxFilters caps the number of live filters. Zero means unlimited.
func WithMaxFilters(n int) RegistryOption {
	return func(r *Registry) {
		r.maxFilters = int64(n)
	}
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i].entries = make(map[string]*entry)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) shardFor(name string) *registryShard {
	return &r.shards[xxhash.Sum64String(name)%shardCount]
}

func checkName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidName)
	}
	return nil
}

// insert registers f under name. With replace, a live filter under name is
// retired and its slot of the filter limit passes to f.
func (r *Registry) insert(name string, f *Filter, replace bool) error {
	shard := r.shardFor(name)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	if old, ok := shard.entries[name]; ok {
		if !replace {
			return fmt.Errorf("%w: %q", ErrExists, name)
		}
		old.mu.Lock()
		old.dead = true
		old.filter = nil
		old.mu.Unlock()
		shard.entries[name] = &entry{name: name, filter: f}
		return nil
	}

	if !r.reserve() {
		return fmt.Errorf("%w: %d filters", ErrLimit, r.maxFilters)
	}
	shard.entries[name] = &entry{name: name, filter: f}
	return nil
}

// reserve claims one slot of the filter limit. Inserts on different shards
// race on size, so the claim is a compare-and-swap.
func (r *Registry) reserve() bool {
	for {
		n := r.size.Load()
		if r.maxFilters > 0 && n >= r.maxFilters {
			return false
		}
		if r.size.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// resolve returns the entry for name without locking it. Callers must lock
// the entry and check dead before touching its filter.
func (r *Registry) resolve(name string) (*entry, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	shard := r.shardFor(name)
	shard.mu.Lock()
	e, ok := shard.entries[name]
	shard.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return e, nil
}

// read runs fn with the named filter under a shared lock.
func (r *Registry) read(name string, fn func(f *Filter) error) error {
	e, err := r.resolve(name)
	if err != nil {
		return err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.dead {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return fn(e.filter)
}

// write runs fn with the named filter under an exclusive lock.
func (r *Registry) write(name string, fn func(f *Filter) error) error {
	e, err := r.resolve(name)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dead {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return fn(e.filter)
}

// Create sizes and registers a new empty filter under name. Parameters are
// validated before anything is allocated.
func (r *Registry) Create(name string, p Params) (Info, error) {
	if err := checkName(name); err != nil {
		return Info{}, err
	}
	if err := p.Validate(); err != nil {
		return Info{}, err
	}

	// Check before allocating so a duplicate create does not build a
	// throwaway bit array. insert repeats the check under the same lock.
	shard := r.shardFor(name)
	shard.mu.Lock()
	_, exists := shard.entries[name]
	shard.mu.Unlock()
	if exists {
		return Info{}, fmt.Errorf("%w: %q", ErrExists, name)
	}

	f, err := NewFromParams(p)
	if err != nil {
		return Info{}, err
	}
	if err := r.insert(name, f, false); err != nil {
		return Info{}, err
	}
	return infoOf(name, f), nil
}

// Add adds value to the named filter.
func (r *Registry) Add(name string, value []byte) error {
	return r.write(name, func(f *Filter) error {
		f.Add(value)
		return nil
	})
}

// AddMany adds every value to the named filter under one lock.
func (r *Registry) AddMany(name string, values [][]byte) error {
	return r.write(name, func(f *Filter) error {
		for _, v := range values {
			f.Add(v)
		}
		return nil
	})
}

// Test reports whether value might be in the named filter.
func (r *Registry) Test(name string, value []byte) (bool, error) {
	var present bool
	err := r.read(name, func(f *Filter) error {
		present = f.Test(value)
		return nil
	})
	return present, err
}

// TestMany tests every value against the named filter under one lock.
func (r *Registry) TestMany(name string, values [][]byte) ([]bool, error) {
	var present []bool
	err := r.read(name, func(f *Filter) error {
		present = make([]bool, len(values))
		for i, v := range values {
			present[i] = f.Test(v)
		}
		return nil
	})
	return present, err
}

// Merge ORs the bits of source into target. source is unchanged. The
// filters must have the same bit count, hash count and seed; otherwise
// ErrIncompatible is returned and neither filter changes.
func (r *Registry) Merge(target, source string) error {
	if target == source {
		return r.write(target, func(*Filter) error { return nil })
	}

	dst, err := r.resolve(target)
	if err != nil {
		return err
	}
	src, err := r.resolve(source)
	if err != nil {
		return err
	}

	// Lock in name order so concurrent merges in opposite directions
	// cannot deadlock.
	if target < source {
		dst.mu.Lock()
		src.mu.RLock()
	} else {
		src.mu.RLock()
		dst.mu.Lock()
	}
	defer dst.mu.Unlock()
	defer src.mu.RUnlock()

	if dst.dead {
		return fmt.Errorf("%w: %q", ErrNotFound, target)
	}
	if src.dead {
		return fmt.Errorf("%w: %q", ErrNotFound, source)
	}
	if err := dst.filter.Merge(src.filter); err != nil {
		return fmt.Errorf("merging %q into %q: %w", source, target, err)
	}
	return nil
}

// Delete removes the named filter and releases its bit array.
func (r *Registry) Delete(name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	shard := r.shardFor(name)
	shard.mu.Lock()
	e, ok := shard.entries[name]
	if ok {
		delete(shard.entries, name)
		r.size.Add(-1)
	}
	shard.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	e.mu.Lock()
	e.dead = true
	e.filter = nil
	e.mu.Unlock()
	return nil
}

// Info describes the named filter.
func (r *Registry) Info(name string) (Info, error) {
	var info Info
	err := r.read(name, func(f *Filter) error {
		info = infoOf(name, f)
		return nil
	})
	return info, err
}

// Dump serializes the named filter with MarshalBinary.
func (r *Registry) Dump(name string) ([]byte, error) {
	var data []byte
	err := r.read(name, func(f *Filter) error {
		var err error
		data, err = f.MarshalBinary()
		return err
	})
	return data, err
}

// Restore registers the filter serialized in data under name. data is
// fully decoded before the table is touched. Unless replace is set, a live
// filter under name causes ErrExists.
func (r *Registry) Restore(name string, data []byte, replace bool) (Info, error) {
	if err := checkName(name); err != nil {
		return Info{}, err
	}
	f, err := UnmarshalBinary(data)
	if err != nil {
		return Info{}, err
	}
	if err := r.insert(name, f, replace); err != nil {
		return Info{}, err
	}
	return infoOf(name, f), nil
}

// Names returns the names of all live filters in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, r.Len())
	for i := range r.shards {
		shard := &r.shards[i]
		shard.mu.Lock()
		for name := range shard.entries {
			names = append(names, name)
		}
		shard.mu.Unlock()
	}
	slices.Sort(names)
	return names
}

// Len returns the number of live filters.
func (r *Registry) Len() int {
	return int(r.size.Load())
}

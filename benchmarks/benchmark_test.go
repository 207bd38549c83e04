package benchmarks

import (
	"fmt"
	"testing"

	bab "github.com/bits-and-blooms/bloom/v3"
	"github.com/cespare/xxhash/v2"
	atomicbloom "github.com/ericvolp12/atomic-bloom"
	"github.com/greatroar/blobloom"
	gloom "github.com/jcalabro/gloomd"
)

const (
	benchItems  = 1_000_000
	benchFPRate = 0.01
)

// Pre-generate test data to avoid measuring string generation
var testKeys [][]byte
var testKeysStr []string

func init() {
	testKeys = make([][]byte, benchItems)
	testKeysStr = make([]string, benchItems)
	for i := range benchItems {
		s := fmt.Sprintf("key-%d", i)
		testKeys[i] = []byte(s)
		testKeysStr[i] = s
	}
}

func newFilter(b *testing.B, items uint64) *gloom.Filter {
	b.Helper()
	f, err := gloom.New(items, benchFPRate, 0)
	if err != nil {
		b.Fatal(err)
	}
	return f
}

func newRegistry(b *testing.B, names ...string) *gloom.Registry {
	b.Helper()
	r := gloom.NewRegistry()
	for _, name := range names {
		if _, err := r.Create(name, gloom.Params{Capacity: benchItems, ErrorRate: benchFPRate}); err != nil {
			b.Fatal(err)
		}
	}
	return r
}

// ============================================================================
// Sequential Add Benchmarks
// ============================================================================

func BenchmarkAddSequential_Gloom(b *testing.B) {
	f := newFilter(b, benchItems)
	b.ResetTimer()
	for i := range b.N {
		f.Add(testKeys[i%benchItems])
	}
}

func BenchmarkAddSequential_GloomString(b *testing.B) {
	f := newFilter(b, benchItems)
	b.ResetTimer()
	for i := range b.N {
		f.AddString(testKeysStr[i%benchItems])
	}
}

func BenchmarkAddSequential_GloomRegistry(b *testing.B) {
	r := newRegistry(b, "bench")
	b.ResetTimer()
	for i := range b.N {
		r.Add("bench", testKeys[i%benchItems])
	}
}

func BenchmarkAddSequential_BitsAndBlooms(b *testing.B) {
	f := bab.NewWithEstimates(benchItems, benchFPRate)
	b.ResetTimer()
	for i := range b.N {
		f.Add(testKeys[i%benchItems])
	}
}

func BenchmarkAddSequential_AtomicBloom(b *testing.B) {
	f := atomicbloom.NewWithEstimates(benchItems, benchFPRate)
	b.ResetTimer()
	for i := range b.N {
		f.Add(testKeys[i%benchItems])
	}
}

func BenchmarkAddSequential_Blobloom(b *testing.B) {
	f := blobloom.NewOptimized(blobloom.Config{
		Capacity: benchItems,
		FPRate:   benchFPRate,
	})
	b.ResetTimer()
	for i := range b.N {
		// blobloom requires pre-hashing
		h := xxhash.Sum64(testKeys[i%benchItems])
		f.Add(h)
	}
}

// ============================================================================
// Sequential Test Benchmarks
// ============================================================================

func BenchmarkTestSequential_Gloom(b *testing.B) {
	f := newFilter(b, benchItems)
	for i := range benchItems {
		f.Add(testKeys[i])
	}
	b.ResetTimer()
	for i := range b.N {
		f.Test(testKeys[i%benchItems])
	}
}

func BenchmarkTestSequential_GloomString(b *testing.B) {
	f := newFilter(b, benchItems)
	for i := range benchItems {
		f.Add(testKeys[i])
	}
	b.ResetTimer()
	for i := range b.N {
		f.TestString(testKeysStr[i%benchItems])
	}
}

func BenchmarkTestSequential_GloomRegistry(b *testing.B) {
	r := newRegistry(b, "bench")
	r.AddMany("bench", testKeys)
	b.ResetTimer()
	for i := range b.N {
		r.Test("bench", testKeys[i%benchItems])
	}
}

func BenchmarkTestSequential_BitsAndBlooms(b *testing.B) {
	f := bab.NewWithEstimates(benchItems, benchFPRate)
	for i := range benchItems {
		f.Add(testKeys[i])
	}
	b.ResetTimer()
	for i := range b.N {
		f.Test(testKeys[i%benchItems])
	}
}

func BenchmarkTestSequential_AtomicBloom(b *testing.B) {
	f := atomicbloom.NewWithEstimates(benchItems, benchFPRate)
	for i := range benchItems {
		f.Add(testKeys[i])
	}
	b.ResetTimer()
	for i := range b.N {
		f.Test(testKeys[i%benchItems])
	}
}

func BenchmarkTestSequential_Blobloom(b *testing.B) {
	f := blobloom.NewOptimized(blobloom.Config{
		Capacity: benchItems,
		FPRate:   benchFPRate,
	})
	// Pre-hash keys for fair comparison
	hashes := make([]uint64, benchItems)
	for i := range benchItems {
		hashes[i] = xxhash.Sum64(testKeys[i])
		f.Add(hashes[i])
	}
	b.ResetTimer()
	for i := range b.N {
		f.Has(hashes[i%benchItems])
	}
}

// ============================================================================
// Parallel Benchmarks
// ============================================================================

func BenchmarkAddParallel_GloomRegistry(b *testing.B) {
	r := newRegistry(b, "bench")
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			r.Add("bench", testKeys[i%benchItems])
			i++
		}
	})
}

// Each goroutine writes its own filter, so only the name table is shared.
func BenchmarkAddParallel_GloomRegistryManyNames(b *testing.B) {
	names := make([]string, 64)
	for i := range names {
		names[i] = fmt.Sprintf("bench-%d", i)
	}
	r := newRegistry(b, names...)
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			r.Add(names[i%len(names)], testKeys[i%benchItems])
			i++
		}
	})
}

func BenchmarkAddParallel_AtomicBloom(b *testing.B) {
	f := atomicbloom.NewWithEstimates(benchItems, benchFPRate)
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			f.Add(testKeys[i%benchItems])
			i++
		}
	})
}

func BenchmarkTestParallel_GloomRegistry(b *testing.B) {
	r := newRegistry(b, "bench")
	r.AddMany("bench", testKeys)
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			r.Test("bench", testKeys[i%benchItems])
			i++
		}
	})
}

func BenchmarkTestParallel_AtomicBloom(b *testing.B) {
	f := atomicbloom.NewWithEstimates(benchItems, benchFPRate)
	for i := range benchItems {
		f.Add(testKeys[i])
	}
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			f.Test(testKeys[i%benchItems])
			i++
		}
	})
}

// ============================================================================
// Mixed Read/Write Benchmarks (50/50 split)
// ============================================================================

func BenchmarkMixed_GloomRegistry(b *testing.B) {
	r := newRegistry(b, "bench")
	// Pre-populate half
	r.AddMany("bench", testKeys[:benchItems/2])
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if i%2 == 0 {
				r.Add("bench", testKeys[(benchItems/2+i)%benchItems])
			} else {
				r.Test("bench", testKeys[i%benchItems])
			}
			i++
		}
	})
}

func BenchmarkMixed_AtomicBloom(b *testing.B) {
	f := atomicbloom.NewWithEstimates(benchItems, benchFPRate)
	// Pre-populate half
	for i := 0; i < benchItems/2; i++ {
		f.Add(testKeys[i])
	}
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if i%2 == 0 {
				f.Add(testKeys[(benchItems/2+i)%benchItems])
			} else {
				f.Test(testKeys[i%benchItems])
			}
			i++
		}
	})
}

// ============================================================================
// Memory Allocation Benchmarks
// ============================================================================

func BenchmarkAddAlloc_Gloom(b *testing.B) {
	f := newFilter(b, benchItems)
	b.ReportAllocs()
	b.ResetTimer()
	for i := range b.N {
		f.Add(testKeys[i%benchItems])
	}
}

func BenchmarkAddAlloc_GloomString(b *testing.B) {
	f := newFilter(b, benchItems)
	b.ReportAllocs()
	b.ResetTimer()
	for i := range b.N {
		f.AddString(testKeysStr[i%benchItems])
	}
}

func BenchmarkAddAlloc_BitsAndBlooms(b *testing.B) {
	f := bab.NewWithEstimates(benchItems, benchFPRate)
	b.ReportAllocs()
	b.ResetTimer()
	for i := range b.N {
		f.Add(testKeys[i%benchItems])
	}
}

// ============================================================================
// Merge and Serialization
// ============================================================================

func BenchmarkMerge_Gloom(b *testing.B) {
	dst := newFilter(b, benchItems)
	src := newFilter(b, benchItems)
	for i := range benchItems / 2 {
		src.Add(testKeys[i])
	}
	b.ResetTimer()
	for range b.N {
		if err := dst.Merge(src); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkMerge_BitsAndBlooms(b *testing.B) {
	dst := bab.NewWithEstimates(benchItems, benchFPRate)
	src := bab.NewWithEstimates(benchItems, benchFPRate)
	for i := range benchItems / 2 {
		src.Add(testKeys[i])
	}
	b.ResetTimer()
	for range b.N {
		if err := dst.Merge(src); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkMarshal_Gloom(b *testing.B) {
	f := newFilter(b, benchItems)
	for i := range benchItems / 2 {
		f.Add(testKeys[i])
	}
	b.ReportAllocs()
	b.ResetTimer()
	for range b.N {
		if _, err := f.MarshalBinary(); err != nil {
			b.Fatal(err)
		}
	}
}

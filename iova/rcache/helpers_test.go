package rcache

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/iovacache/percpu"
)

var errFakeExhausted = errors.New("fake: exhausted")

// fakeAllocator is a bump allocator that records everything the cache hands
// back to it.
type fakeAllocator struct {
	mu sync.Mutex

	next      uint64
	exhausted bool

	allocCalls int
	removed    []uint64
	freed      []uint64
}

func newFakeAllocator() *fakeAllocator {
	return &fakeAllocator{next: 1}
}

func (f *fakeAllocator) AllocExact(size, limit uint64) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.allocCalls++
	if f.exhausted || f.next+size-1 > limit {
		return 0, errFakeExhausted
	}
	pfn := f.next
	f.next += size
	return pfn, nil
}

func (f *fakeAllocator) FreeExact(pfn uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.freed = append(f.freed, pfn)
	return nil
}

func (f *fakeAllocator) FindAndRemove(pfn uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, pfn)
	return true
}

// takeRemoved returns and clears the recorded removals.
func (f *fakeAllocator) takeRemoved() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.removed
	f.removed = nil
	return out
}

func (f *fakeAllocator) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.allocCalls
}

// newTestBank builds a bank on a static runtime with ncpu cores.
func newTestBank(t testing.TB, ncpu int, cfg Config) (*Bank, *fakeAllocator, *percpu.Static) {
	t.Helper()
	rt := percpu.NewStatic(ncpu)
	cfg.Runtime = rt
	fa := newFakeAllocator()
	b, err := NewBank(fa, &cfg)
	require.NoError(t, err)
	t.Cleanup(b.Close)
	return b, fa, rt
}

// slotCounts returns the PFN counts of a class's slot on cpu.
func slotCounts(b *Bank, order, cpu int) (loaded, prev int) {
	return b.caches[order].cpus[cpu].counts()
}

func depotLen(b *Bank, order int) int {
	rc := b.caches[order]
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return len(rc.depot)
}

// requireBankInvariants checks capacity bounds of every slot and depot.
func requireBankInvariants(t testing.TB, b *Bank) {
	t.Helper()
	for order := range b.caches {
		d := depotLen(b, order)
		require.GreaterOrEqual(t, d, 0)
		require.LessOrEqual(t, d, b.cfg.MaxGlobalMags, "class %d depot over capacity", order)
		for cpu := range b.ncpu {
			loaded, prev := slotCounts(b, order, cpu)
			require.LessOrEqual(t, loaded, b.cfg.MagSize, "class %d cpu %d loaded", order, cpu)
			require.LessOrEqual(t, prev, b.cfg.MagSize, "class %d cpu %d prev", order, cpu)
		}
	}
}

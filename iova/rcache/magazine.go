package rcache

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// magazine is a fixed-capacity stack of PFNs. It has no lock; whoever owns it
// (a cpu slot or the depot) guards it.
type magazine struct {
	size int
	pfns []uint64
}

// full reports whether the magazine has no room. A nil magazine is not full.
func (m *magazine) full() bool {
	return m != nil && m.size == len(m.pfns)
}

// empty reports whether the magazine holds nothing. A nil magazine is empty.
func (m *magazine) empty() bool {
	return m == nil || m.size == 0
}

func (m *magazine) push(pfn uint64) {
	if m == nil || m.full() {
		panic("rcache: push to full magazine")
	}
	m.pfns[m.size] = pfn
	m.size++
}

// pop removes the most recently pushed PFN that is <= bound. It returns false
// when every stored PFN is above bound, which is not the same as empty.
func (m *magazine) pop(bound uint64) (uint64, bool) {
	if m.empty() {
		panic("rcache: pop from empty magazine")
	}

	i := m.size - 1
	for m.pfns[i] > bound {
		if i == 0 {
			return 0, false
		}
		i--
	}

	// Swap the last entry into the hole.
	pfn := m.pfns[i]
	m.size--
	m.pfns[i] = m.pfns[m.size]
	return pfn, true
}

// contents returns the stored PFNs. The slice aliases the magazine.
func (m *magazine) contents() []uint64 {
	if m == nil {
		return nil
	}
	return m.pfns[:m.size]
}

func (m *magazine) reset() {
	if m != nil {
		m.size = 0
	}
}

// magazinePool hands out empty magazines and enforces the bank's magazine budget.
type magazinePool struct {
	magSize int
	limit   int64 // 0 = unlimited
	live    atomic.Int64
	pool    sync.Pool
}

func newMagazinePool(magSize, limit int) *magazinePool {
	return &magazinePool{magSize: magSize, limit: int64(limit)}
}

// get returns an empty magazine, or nil when the budget is spent.
func (p *magazinePool) get() *magazine {
	if n := p.live.Add(1); p.limit > 0 && n > p.limit {
		p.live.Add(-1)
		return nil
	}
	if m, ok := p.pool.Get().(*magazine); ok {
		m.size = 0
		return m
	}
	return &magazine{pfns: make([]uint64, p.magSize)}
}

// put returns m to the pool. Any PFNs still in it are dropped.
func (p *magazinePool) put(m *magazine) {
	if m == nil {
		return
	}
	if p.live.Add(-1) < 0 {
		panic(fmt.Sprintf("rcache: magazine pool released more than it handed out (%d)", p.live.Load()))
	}
	m.size = 0
	p.pool.Put(m)
}

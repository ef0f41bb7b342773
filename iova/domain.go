package iova

import (
	"fmt"
	"math/bits"
	"sync"

	"github.com/google/btree"
)

// btreeDegree is the fan-out of the range index.
const btreeDegree = 32

// Range is an allocated run of PFNs, Lo through Hi inclusive.
type Range struct {
	Lo uint64
	Hi uint64
}

// Size returns the number of PFNs in the range.
func (r Range) Size() uint64 { return r.Hi - r.Lo + 1 }

// Contains reports whether pfn falls inside the range.
func (r Range) Contains(pfn uint64) bool { return r.Lo <= pfn && pfn <= r.Hi }

func (r Range) String() string { return fmt.Sprintf("[%#x-%#x]", r.Lo, r.Hi) }

// entry is a range as stored in the index. Reserved entries are never
// released.
type entry struct {
	Range
	reserved bool
}

func entryLess(a, b entry) bool { return a.Lo < b.Lo }

// pivot is a search key for the index; only Lo is compared.
func pivot(pfn uint64) entry { return entry{Range: Range{Lo: pfn}} }

// Domain is an exact-fit PFN range allocator.
type Domain struct {
	mu sync.Mutex

	granule  uint64
	shift    uint
	startPFN uint64

	// Allocated and reserved ranges keyed by Lo, non-overlapping.
	ranges *btree.BTreeG[entry]
}

// NewDomain creates an empty domain.
//
// Parameters:
//   - granule: page size in bytes; must be a power of two
//   - startPFN: lowest PFN the domain will ever hand out
func NewDomain(granule, startPFN uint64) (*Domain, error) {
	if granule == 0 || granule&(granule-1) != 0 {
		return nil, fmt.Errorf("%w: %d", ErrBadGranule, granule)
	}
	return &Domain{
		granule:  granule,
		shift:    uint(bits.TrailingZeros64(granule)),
		startPFN: startPFN,
		ranges:   btree.NewG(btreeDegree, entryLess),
	}, nil
}

// Granule returns the page size in bytes.
func (d *Domain) Granule() uint64 { return d.granule }

// StartPFN returns the lowest PFN the domain allocates.
func (d *Domain) StartPFN() uint64 { return d.startPFN }

// Alloc allocates size PFNs with Hi <= limitPFN, choosing the highest free
// position. With sizeAligned, Lo is aligned to size rounded up to a power of two.
func (d *Domain) Alloc(size, limitPFN uint64, sizeAligned bool) (Range, error) {
	if size == 0 {
		return Range{}, ErrBadSize
	}

	mask := ^uint64(0)
	if sizeAligned {
		mask <<= uint(bits.Len64(size - 1))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	lo, ok := d.findGap(size, limitPFN, mask)
	if !ok {
		return Range{}, ErrNoSpace
	}

	r := Range{Lo: lo, Hi: lo + size - 1}
	d.ranges.ReplaceOrInsert(entry{Range: r})
	return r, nil
}

// findGap walks free gaps from limit downwards and returns the start of the
// first one that fits.
func (d *Domain) findGap(size, limit, mask uint64) (uint64, bool) {
	if limit < d.startPFN {
		return 0, false
	}

	var (
		hi    = limit // top of the gap being looked at
		start uint64
		found bool
		done  bool
	)
	fits := func(lo uint64) bool {
		if hi-lo < size-1 {
			return false
		}
		start = (hi - (size - 1)) & mask
		return start >= lo
	}

	d.ranges.DescendLessOrEqual(pivot(limit), func(e entry) bool {
		if e.Hi < hi && fits(max(e.Hi+1, d.startPFN)) {
			found = true
			return false
		}
		if e.Lo <= d.startPFN {
			done = true
			return false
		}
		hi = e.Lo - 1
		return true
	})

	switch {
	case found:
		return start, true
	case done:
		return 0, false
	}
	// Gap between startPFN and the lowest range.
	if fits(d.startPFN) {
		return start, true
	}
	return 0, false
}

// lookup returns the entry containing pfn. Caller holds mu.
func (d *Domain) lookup(pfn uint64) (entry, bool) {
	var (
		found entry
		ok    bool
	)
	d.ranges.DescendLessOrEqual(pivot(pfn), func(e entry) bool {
		found, ok = e, e.Contains(pfn)
		return false
	})
	return found, ok
}

// release removes the range containing pfn. Caller holds mu.
func (d *Domain) release(pfn uint64) error {
	e, ok := d.lookup(pfn)
	switch {
	case !ok:
		return fmt.Errorf("%w: %#x", ErrNotFound, pfn)
	case e.reserved:
		return fmt.Errorf("%w: %#x is in reserved range %v", ErrNotFound, pfn, e.Range)
	}
	d.ranges.Delete(e)
	return nil
}

// Find returns the allocated or reserved range containing pfn.
func (d *Domain) Find(pfn uint64) (Range, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.lookup(pfn)
	return e.Range, ok
}

// Reserved reports whether pfn lies in a reserved range.
func (d *Domain) Reserved(pfn uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.lookup(pfn)
	return ok && e.reserved
}

// Free releases the range containing pfn. Reserved ranges cannot be freed
// and report ErrNotFound.
func (d *Domain) Free(pfn uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.release(pfn)
}

// FindAndRemove releases the range containing pfn and reports whether an
// allocated one existed. Reserved ranges are left in place.
func (d *Domain) FindAndRemove(pfn uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.release(pfn) == nil
}

// FindAndRemoveBatch releases the ranges containing each of pfns under a
// single lock acquisition and returns how many were found.
func (d *Domain) FindAndRemoveBatch(pfns []uint64) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	removed := 0
	for _, pfn := range pfns {
		if d.release(pfn) == nil {
			removed++
		}
	}
	return removed
}

// Reserve marks lo..hi as permanently allocated, for example to keep an MSI
// window out of the allocator. Ranges it overlaps are merged into it and
// become reserved too.
func (d *Domain) Reserve(lo, hi uint64) (Range, error) {
	if lo > hi {
		return Range{}, fmt.Errorf("%w: %#x > %#x", ErrBadSize, lo, hi)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var overlapping []entry
	d.ranges.DescendLessOrEqual(pivot(lo), func(e entry) bool {
		if e.Lo < lo && e.Hi >= lo {
			overlapping = append(overlapping, e)
		}
		return false
	})
	d.ranges.AscendGreaterOrEqual(pivot(lo), func(e entry) bool {
		if e.Lo > hi {
			return false
		}
		overlapping = append(overlapping, e)
		return true
	})

	merged := entry{Range: Range{Lo: lo, Hi: hi}, reserved: true}
	for _, e := range overlapping {
		merged.Lo = min(merged.Lo, e.Lo)
		merged.Hi = max(merged.Hi, e.Hi)
		d.ranges.Delete(e)
	}
	d.ranges.ReplaceOrInsert(merged)
	return merged.Range, nil
}

// Len returns the number of allocated and reserved ranges.
func (d *Domain) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ranges.Len()
}

// Ranges returns a copy of the allocated and reserved ranges in ascending order.
func (d *Domain) Ranges() []Range {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]Range, 0, d.ranges.Len())
	d.ranges.Ascend(func(e entry) bool {
		out = append(out, e.Range)
		return true
	})
	return out
}

// AllocExact allocates a size-aligned range at or below limit and returns its
// first PFN.
func (d *Domain) AllocExact(size, limit uint64) (uint64, error) {
	r, err := d.Alloc(size, limit, true)
	if err != nil {
		return 0, err
	}
	return r.Lo, nil
}

// FreeExact is Free under the name range caches expect.
func (d *Domain) FreeExact(pfn uint64) error {
	return d.Free(pfn)
}

// Shift returns log2 of the granule.
func (d *Domain) Shift() uint { return d.shift }

// PFN returns the PFN that addr falls in.
func (d *Domain) PFN(addr uint64) uint64 { return addr >> d.shift }

// Offset returns addr's offset within its page.
func (d *Domain) Offset(addr uint64) uint64 { return addr & (d.granule - 1) }

// Addr returns the bus address of the first byte of pfn.
func (d *Domain) Addr(pfn uint64) uint64 { return pfn << d.shift }

// Align rounds size up to a whole number of pages, in bytes.
func (d *Domain) Align(size uint64) uint64 {
	return (size + d.granule - 1) &^ (d.granule - 1)
}

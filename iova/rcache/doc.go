// Package rcache provides per-CPU magazine caches for IOVA ranges.
//
// # Overview
//
// Allocating from an exact-fit range allocator takes a domain-wide lock and a
// tree walk. Most DMA mappings are small and short-lived, so freed ranges are
// parked in per-size caches and handed straight back to the next request of
// the same size. The design follows Bonwick and Adams, "Magazines and Vmem:
// Extending the Slab Allocator to Many CPUs and Arbitrary Resources" (USENIX
// 2001), with a fixed magazine size and no dynamic tuning.
//
// # Structure
//
// A Bank holds one cache per size class. Class i caches ranges of exactly
// 1<<i PFNs. Each class has:
//
//   - a slot per possible core, holding a "loaded" and a "previous" magazine
//     under the slot's own mutex
//   - a depot of up to MaxGlobalMags full magazines shared by all cores
//
// A magazine is a stack of up to MagSize PFNs.
//
// # Insert
//
//	loaded not full       → push
//	previous not full     → swap, push
//	both full             → loaded goes to the depot (or is drained to the
//	                        allocator if the depot is full), push into a fresh one
//
// # Get
//
//	loaded not empty      → pop
//	previous not empty    → swap, pop
//	both empty            → take a magazine from the depot, pop
//	depot empty           → miss
//
// A pop only returns PFNs at or below the caller's bound, so a non-empty
// magazine can still miss.
//
// # Fast Path
//
// Cache wraps a Bank and a RangeAllocator:
//
//	c, err := rcache.New(domain, nil)
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	pfn, err := c.AllocFast(4, limitPFN, true)
//	if err != nil {
//	    return err // ErrNoSpace
//	}
//	// ... map and use ...
//	err = c.FreeFast(pfn, 4)
//
// AllocFast rounds cacheable sizes up to a power of two, tries the cache and
// then the allocator. With flush set, an exhausted allocator triggers one
// cache-wide flush and one retry.
//
// # Thread Safety
//
// Cache and Bank are safe for concurrent use; Close must not race with other
// calls. Only the calling core's slot is touched on the fast path. Cores are
// identified through a percpu.Runtime; Current is a hint, and the slot mutex
// keeps a migrated goroutine correct.
package rcache

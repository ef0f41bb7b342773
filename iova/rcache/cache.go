package rcache

import (
	"fmt"
	"sync/atomic"

	"github.com/joshuapare/iovacache/percpu"
)

// RangeAllocator is the exact-fit allocator behind the cache.
// *iova.Domain satisfies it.
type RangeAllocator interface {
	Remover

	// AllocExact allocates size PFNs ending at or below limit and returns
	// the first PFN.
	AllocExact(size, limit uint64) (uint64, error)

	// FreeExact releases the range containing pfn.
	FreeExact(pfn uint64) error
}

// Cache puts a Bank in front of a RangeAllocator.
type Cache struct {
	bank  *Bank
	alloc RangeAllocator

	cancelHotplug func()

	fastAllocs    atomic.Uint64
	slowAllocs    atomic.Uint64
	allocFailures atomic.Uint64
	flushes       atomic.Uint64
	fastFrees     atomic.Uint64
	slowFrees     atomic.Uint64
}

// New creates a cache over alloc. A nil cfg means DefaultConfig().
//
// When the runtime implements percpu.Notifier, the cache drains a core's
// slots as soon as the runtime reports it removed.
func New(alloc RangeAllocator, cfg *Config) (*Cache, error) {
	bank, err := NewBank(alloc, cfg)
	if err != nil {
		return nil, err
	}

	c := &Cache{bank: bank, alloc: alloc}
	if n, ok := bank.rt.(percpu.Notifier); ok {
		c.cancelHotplug = n.OnRemove(c.RemoveCore)
	}
	return c, nil
}

// Bank returns the underlying bank.
func (c *Cache) Bank() *Bank { return c.bank }

// AllocFast allocates size PFNs ending at or below limit, trying the cache
// before the range allocator.
//
// Cacheable sizes are rounded up to a power of two so that freeing the same
// request later lands in the class it came from. If the range allocator is
// out of space and flush is set, every cached range is handed back to it and
// the allocation is retried once.
func (c *Cache) AllocFast(size, limit uint64, flush bool) (uint64, error) {
	if size == 0 {
		return 0, ErrBadSize
	}
	if size < c.bank.MaxSize() {
		size = roundUpPow2(size)
	}

	if size-1 <= limit {
		pfn, ok, err := c.bank.Get(size, limit-(size-1))
		if err == nil && ok {
			c.fastAllocs.Add(1)
			return pfn, nil
		}
	}

	for {
		pfn, err := c.alloc.AllocExact(size, limit)
		if err == nil {
			c.slowAllocs.Add(1)
			return pfn, nil
		}
		if !flush {
			c.allocFailures.Add(1)
			return 0, fmt.Errorf("%w: %d pages at or below %#x: %w", ErrNoSpace, size, limit, err)
		}

		// Try replenishing by flushing the cache, once.
		flush = false
		c.flushes.Add(1)
		c.bank.logger().Debug("rcache: range allocator exhausted, flushing",
			"size", size, "limit", limit)
		c.bank.Flush()
	}
}

// FreeFast frees the range at pfn that was allocated with size PFNs. The
// range goes into the cache when it can and to the range allocator otherwise.
func (c *Cache) FreeFast(pfn, size uint64) error {
	// Every Insert error leaves the range with the caller.
	if err := c.bank.Insert(pfn, size); err == nil {
		c.fastFrees.Add(1)
		return nil
	}

	c.slowFrees.Add(1)
	return c.alloc.FreeExact(pfn)
}

// RemoveCore hands everything cached on cpu back to the range allocator.
// It is the hook for a core going offline.
func (c *Cache) RemoveCore(cpu int) {
	c.bank.logger().Debug("rcache: draining removed core", "cpu", cpu)
	c.bank.DrainCore(cpu)
}

// Flush hands every cached range back to the range allocator.
func (c *Cache) Flush() {
	c.flushes.Add(1)
	c.bank.Flush()
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Classes:       c.bank.Stats(),
		FastAllocs:    c.fastAllocs.Load(),
		SlowAllocs:    c.slowAllocs.Load(),
		AllocFailures: c.allocFailures.Load(),
		Flushes:       c.flushes.Load(),
		FastFrees:     c.fastFrees.Load(),
		SlowFrees:     c.slowFrees.Load(),
		LiveMagazines: c.bank.LiveMagazines(),
	}
}

// Close unhooks the cache from the runtime and tears down the bank. Ranges
// freed afterwards go straight to the range allocator.
func (c *Cache) Close() {
	if c.cancelHotplug != nil {
		c.cancelHotplug()
		c.cancelHotplug = nil
	}
	c.bank.Close()
}

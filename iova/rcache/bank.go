package rcache

import (
	"fmt"
	"log/slog"
	"math/bits"
	"sync/atomic"

	"github.com/joshuapare/iovacache/internal/logger"
	"github.com/joshuapare/iovacache/percpu"
)

// Remover takes cached PFNs back into the range allocator's bookkeeping.
type Remover interface {
	// FindAndRemove releases the allocated range containing pfn and reports
	// whether there was one.
	FindAndRemove(pfn uint64) bool
}

// BatchRemover is implemented by allocators that can release many ranges
// under one lock acquisition. Banks use it to drain whole magazines.
type BatchRemover interface {
	FindAndRemoveBatch(pfns []uint64) int
}

// Bank is the array of size-class caches. Class i caches ranges of 1<<i PFNs.
//
// Insert and Get only touch the calling core's slot and, on overflow or
// underflow, that class's depot. DrainCore, FlushDepots and Flush may be
// called from any goroutine. Calls racing with Close either complete against
// the live cache or fail with ErrClosed.
type Bank struct {
	cfg     Config
	rt      percpu.Runtime
	remover Remover
	batch   BatchRemover
	ncpu    int

	pool   *magazinePool
	caches []*rangeCache
	closed atomic.Bool
}

// NewBank creates a bank whose drained PFNs go to remover.
//
// Every possible core gets two magazines per class up front. If cfg caps the
// magazine count below that, NewBank fails with ErrNoMemory.
func NewBank(remover Remover, cfg *Config) (*Bank, error) {
	if remover == nil {
		return nil, fmt.Errorf("%w: nil remover", ErrBadConfig)
	}

	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	c = c.withDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}

	b := &Bank{
		cfg:     c,
		rt:      c.Runtime,
		remover: remover,
		ncpu:    c.Runtime.Possible(),
		pool:    newMagazinePool(c.MagSize, c.MaxMagazines),
		caches:  make([]*rangeCache, 0, c.NumClasses),
	}
	if br, ok := remover.(BatchRemover); ok {
		b.batch = br
	}

	for order := range c.NumClasses {
		rc, err := newRangeCache(b, order)
		if err != nil {
			for _, prev := range b.caches {
				prev.free()
			}
			return nil, fmt.Errorf("class %d on %d cores: %w", order, b.ncpu, err)
		}
		b.caches = append(b.caches, rc)
	}

	b.logger().Debug("rcache: bank ready",
		"classes", c.NumClasses, "cores", b.ncpu,
		"mag_size", c.MagSize, "depot", c.MaxGlobalMags)
	return b, nil
}

// NumClasses returns the number of size classes.
func (b *Bank) NumClasses() int { return len(b.caches) }

// MaxSize returns the largest range size the bank caches, in PFNs.
func (b *Bank) MaxSize() uint64 { return 1 << (b.cfg.NumClasses - 1) }

// Config returns the effective configuration.
func (b *Bank) Config() Config { return b.cfg }

// classOf returns the cache for size, or ErrTooLarge.
func (b *Bank) classOf(size uint64) (*rangeCache, error) {
	if size == 0 {
		return nil, ErrBadSize
	}
	order := orderBase2(size)
	if order >= len(b.caches) {
		return nil, fmt.Errorf("%w: %d pages", ErrTooLarge, size)
	}
	return b.caches[order], nil
}

// Insert caches pfn as a free range of size PFNs.
//
// ErrTooLarge and ErrNoMagazine both mean the range was not cached and the
// caller still owns it.
func (b *Bank) Insert(pfn, size uint64) error {
	if b.closed.Load() {
		return ErrClosed
	}
	rc, err := b.classOf(size)
	if err != nil {
		return err
	}
	if !rc.insert(pfn) {
		if b.closed.Load() {
			return ErrClosed
		}
		return ErrNoMagazine
	}
	return nil
}

// Get takes a cached range of size PFNs whose first PFN is <= bound. The bool
// is false on a cache miss.
func (b *Bank) Get(size, bound uint64) (uint64, bool, error) {
	if b.closed.Load() {
		return 0, false, ErrClosed
	}
	rc, err := b.classOf(size)
	if err != nil {
		return 0, false, err
	}
	pfn, ok := rc.get(bound)
	if !ok && b.closed.Load() {
		return 0, false, ErrClosed
	}
	return pfn, ok, nil
}

// DrainCore returns everything cpu's slots hold to the range allocator.
// Called when a core goes away; the slots themselves remain.
func (b *Bank) DrainCore(cpu int) {
	if b.closed.Load() || cpu < 0 || cpu >= b.ncpu {
		return
	}
	for _, rc := range b.caches {
		rc.drainCPU(cpu)
	}
}

// FlushDepots returns every depot's contents to the range allocator.
func (b *Bank) FlushDepots() {
	if b.closed.Load() {
		return
	}
	for _, rc := range b.caches {
		rc.flushDepot()
	}
}

// Flush drains the slots of every online core and then every depot.
func (b *Bank) Flush() {
	percpu.ForEachOnline(b.rt, b.DrainCore)
	b.FlushDepots()
}

// Close releases every magazine. Cached PFNs are dropped, not returned to the
// range allocator, since the allocator is expected to go away with the bank.
// Later calls fail with ErrClosed or do nothing.
func (b *Bank) Close() {
	if b.closed.Swap(true) {
		return
	}
	for _, rc := range b.caches {
		rc.free()
	}
}

func (b *Bank) currentCPU() int {
	cpu := b.rt.Current()
	if cpu < 0 || cpu >= b.ncpu {
		cpu = int(uint(cpu) % uint(b.ncpu))
	}
	return cpu
}

func (b *Bank) remove(pfns []uint64) int {
	if b.batch != nil {
		return b.batch.FindAndRemoveBatch(pfns)
	}
	removed := 0
	for _, pfn := range pfns {
		if b.remover.FindAndRemove(pfn) {
			removed++
		}
	}
	return removed
}

func (b *Bank) logger() *slog.Logger {
	if b.cfg.Logger != nil {
		return b.cfg.Logger
	}
	return logger.L
}

// orderBase2 returns ceil(log2(n)), with orderBase2(0) == orderBase2(1) == 0.
func orderBase2(n uint64) int {
	if n <= 1 {
		return 0
	}
	return bits.Len64(n - 1)
}

// roundUpPow2 returns the smallest power of two >= n, for n >= 1.
func roundUpPow2(n uint64) uint64 {
	return 1 << orderBase2(n)
}

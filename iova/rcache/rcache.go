package rcache

import "sync"

// rangeCache caches ranges of a single size class: one slot per possible core
// plus a depot of spare magazines shared by all of them.
//
// Lock order is slot, then depot. Neither lock is held while a magazine
// released on the insert path is drained to the range allocator.
type rangeCache struct {
	b     *Bank
	order int

	mu    sync.Mutex // guards depot
	depot []*magazine

	cpus []cpuRcache

	stats classCounters
}

func newRangeCache(b *Bank, order int) (*rangeCache, error) {
	rc := &rangeCache{
		b:     b,
		order: order,
		depot: make([]*magazine, 0, b.cfg.MaxGlobalMags),
		cpus:  make([]cpuRcache, b.ncpu),
	}
	for i := range rc.cpus {
		cpu := &rc.cpus[i]
		cpu.loaded = b.pool.get()
		cpu.prev = b.pool.get()
		if cpu.loaded == nil || cpu.prev == nil {
			rc.free()
			return nil, ErrNoMemory
		}
	}
	return rc, nil
}

// insert caches pfn on the current core. It returns false when both of the
// core's magazines are full and no fresh magazine could be had, or when the
// bank has been closed.
func (rc *rangeCache) insert(pfn uint64) bool {
	var toDrain *magazine
	canInsert := false

	cpu := &rc.cpus[rc.b.currentCPU()]
	cpu.mu.Lock()

	// Close marks the bank before taking any slot lock to free magazines.
	if rc.b.closed.Load() {
		cpu.mu.Unlock()
		return false
	}

	switch {
	case !cpu.loaded.full():
		canInsert = true
	case !cpu.prev.full():
		cpu.swap()
		canInsert = true
	default:
		if mag := rc.b.pool.get(); mag != nil {
			rc.mu.Lock()
			if len(rc.depot) < rc.b.cfg.MaxGlobalMags {
				rc.depot = append(rc.depot, cpu.loaded)
				rc.stats.depotPushes.Add(1)
			} else {
				toDrain = cpu.loaded
				rc.stats.depotEvictions.Add(1)
			}
			rc.mu.Unlock()

			cpu.loaded = mag
			canInsert = true
		}
	}

	if canInsert {
		cpu.loaded.push(pfn)
	}

	cpu.mu.Unlock()

	if toDrain != nil {
		rc.b.logger().Debug("rcache: depot full, draining magazine",
			"order", rc.order, "pfns", len(toDrain.contents()))
		rc.drain(toDrain)
		rc.b.pool.put(toDrain)
	}

	if canInsert {
		rc.stats.inserts.Add(1)
	} else {
		rc.stats.insertFailures.Add(1)
	}
	return canInsert
}

// get takes a cached PFN <= bound from the current core. False means a miss
// or a closed bank.
func (rc *rangeCache) get(bound uint64) (uint64, bool) {
	var (
		pfn    uint64
		ok     bool
		hasPFN bool
	)

	cpu := &rc.cpus[rc.b.currentCPU()]
	cpu.mu.Lock()

	if rc.b.closed.Load() {
		cpu.mu.Unlock()
		return 0, false
	}

	switch {
	case !cpu.loaded.empty():
		hasPFN = true
	case !cpu.prev.empty():
		cpu.swap()
		hasPFN = true
	default:
		rc.mu.Lock()
		if n := len(rc.depot); n > 0 {
			rc.b.pool.put(cpu.loaded)
			cpu.loaded = rc.depot[n-1]
			rc.depot[n-1] = nil
			rc.depot = rc.depot[:n-1]
			hasPFN = true
			rc.stats.depotPops.Add(1)
		}
		rc.mu.Unlock()
	}

	if hasPFN {
		pfn, ok = cpu.loaded.pop(bound)
	}

	cpu.mu.Unlock()

	if ok {
		rc.stats.hits.Add(1)
	} else {
		rc.stats.misses.Add(1)
	}
	return pfn, ok
}

// drainCPU returns everything held by cpu's slot to the range allocator. The
// magazines stay with the slot, empty.
func (rc *rangeCache) drainCPU(cpu int) {
	c := &rc.cpus[cpu]
	c.mu.Lock()
	rc.drain(c.loaded)
	rc.drain(c.prev)
	c.mu.Unlock()
}

// flushDepot returns every depot magazine's PFNs to the range allocator and
// the magazines to the pool.
func (rc *rangeCache) flushDepot() {
	rc.mu.Lock()
	for i, mag := range rc.depot {
		rc.drain(mag)
		rc.b.pool.put(mag)
		rc.depot[i] = nil
	}
	rc.depot = rc.depot[:0]
	rc.mu.Unlock()
}

// drain hands m's PFNs back to the range allocator and empties m.
func (rc *rangeCache) drain(m *magazine) {
	pfns := m.contents()
	if len(pfns) == 0 {
		return
	}

	removed := rc.b.remove(pfns)
	if removed != len(pfns) {
		rc.b.logger().Warn("rcache: cached pfn unknown to range allocator",
			"order", rc.order, "missing", len(pfns)-removed)
	}
	rc.stats.drained.Add(uint64(len(pfns)))
	m.reset()
}

// cached counts the PFNs held in slots and depot.
func (rc *rangeCache) cached() (total, depotMags int) {
	for i := range rc.cpus {
		loaded, prev := rc.cpus[i].counts()
		total += loaded + prev
	}

	rc.mu.Lock()
	defer rc.mu.Unlock()
	for _, mag := range rc.depot {
		total += len(mag.contents())
	}
	return total, len(rc.depot)
}

// free releases every magazine without draining it.
func (rc *rangeCache) free() {
	for i := range rc.cpus {
		cpu := &rc.cpus[i]
		cpu.mu.Lock()
		rc.b.pool.put(cpu.loaded)
		rc.b.pool.put(cpu.prev)
		cpu.loaded, cpu.prev = nil, nil
		cpu.mu.Unlock()
	}

	rc.mu.Lock()
	for i, mag := range rc.depot {
		rc.b.pool.put(mag)
		rc.depot[i] = nil
	}
	rc.depot = rc.depot[:0]
	rc.mu.Unlock()
}

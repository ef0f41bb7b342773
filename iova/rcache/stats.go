package rcache

import "sync/atomic"

// classCounters are the live counters of one size class.
type classCounters struct {
	hits           atomic.Uint64
	misses         atomic.Uint64
	inserts        atomic.Uint64
	insertFailures atomic.Uint64
	depotPushes    atomic.Uint64
	depotPops      atomic.Uint64
	depotEvictions atomic.Uint64
	drained        atomic.Uint64
}

// ClassStats is a snapshot of one size class.
type ClassStats struct {
	Order int    `json:"order"`
	Size  uint64 `json:"size"` // range size in PFNs

	Hits           uint64 `json:"hits"`            // gets served from the cache
	Misses         uint64 `json:"misses"`          // gets that found nothing <= bound
	Inserts        uint64 `json:"inserts"`         // frees absorbed by the cache
	InsertFailures uint64 `json:"insert_failures"` // frees refused for lack of a magazine
	DepotPushes    uint64 `json:"depot_pushes"`    // full magazines parked in the depot
	DepotPops      uint64 `json:"depot_pops"`      // magazines taken from the depot
	DepotEvictions uint64 `json:"depot_evictions"` // full magazines drained because the depot was full
	Drained        uint64 `json:"drained"`         // PFNs handed back to the range allocator

	Cached    int `json:"cached"`     // PFNs held right now
	DepotMags int `json:"depot_mags"` // magazines in the depot right now
}

// Stats is a snapshot of a Cache.
type Stats struct {
	Classes []ClassStats `json:"classes"`

	FastAllocs    uint64 `json:"fast_allocs"`    // allocations served by the cache
	SlowAllocs    uint64 `json:"slow_allocs"`    // allocations served by the range allocator
	AllocFailures uint64 `json:"alloc_failures"` // allocations that returned ErrNoSpace
	Flushes       uint64 `json:"flushes"`        // cache-wide flushes before a retry
	FastFrees     uint64 `json:"fast_frees"`     // frees absorbed by the cache
	SlowFrees     uint64 `json:"slow_frees"`     // frees passed to the range allocator

	LiveMagazines int64 `json:"live_magazines"`
}

// Stats returns a snapshot of every size class. Counts of cached PFNs are
// gathered class by class and are only exact when the bank is idle.
func (b *Bank) Stats() []ClassStats {
	out := make([]ClassStats, 0, len(b.caches))
	for _, rc := range b.caches {
		cs := ClassStats{
			Order:          rc.order,
			Size:           1 << rc.order,
			Hits:           rc.stats.hits.Load(),
			Misses:         rc.stats.misses.Load(),
			Inserts:        rc.stats.inserts.Load(),
			InsertFailures: rc.stats.insertFailures.Load(),
			DepotPushes:    rc.stats.depotPushes.Load(),
			DepotPops:      rc.stats.depotPops.Load(),
			DepotEvictions: rc.stats.depotEvictions.Load(),
			Drained:        rc.stats.drained.Load(),
		}
		if !b.closed.Load() {
			cs.Cached, cs.DepotMags = rc.cached()
		}
		out = append(out, cs)
	}
	return out
}

// LiveMagazines returns the number of magazines currently handed out.
func (b *Bank) LiveMagazines() int64 {
	return b.pool.live.Load()
}

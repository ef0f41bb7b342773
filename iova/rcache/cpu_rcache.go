package rcache

import "sync"

// cpuRcache is one core's slot in a size class: a loaded magazine that serves
// every insert and get, and a previous magazine swapped in when loaded runs
// full or empty. Keeping two avoids bouncing a magazine to and from the depot
// when frees and allocations alternate at a boundary.
type cpuRcache struct {
	mu     sync.Mutex
	loaded *magazine
	prev   *magazine
	_      [40]byte // pad to a 64B cache line (8+16+40)
}

// swap exchanges loaded and prev. Caller holds mu.
func (c *cpuRcache) swap() {
	c.loaded, c.prev = c.prev, c.loaded
}

// counts returns the number of PFNs held by loaded and prev.
func (c *cpuRcache) counts() (loaded, prev int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.loaded.contents()), len(c.prev.contents())
}

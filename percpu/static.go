package percpu

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// Static is a Runtime with a fixed set of possible cores whose current core is
// chosen by the caller. It stands in for the host when simulating several
// cores from tests or tools.
type Static struct {
	possible int
	current  atomic.Int32

	mu      sync.Mutex
	offline map[int]bool
	hooks   map[int]func(cpu int)
	nextID  int
}

// NewStatic creates a runtime with n possible cores, all online, with core 0 current.
func NewStatic(n int) *Static {
	if n < 1 {
		n = 1
	}
	return &Static{
		possible: n,
		offline:  make(map[int]bool),
		hooks:    make(map[int]func(cpu int)),
	}
}

// Possible implements Runtime.
func (s *Static) Possible() int { return s.possible }

// Online implements Runtime.
func (s *Static) Online() []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int, 0, s.possible)
	for cpu := range s.possible {
		if !s.offline[cpu] {
			ids = append(ids, cpu)
		}
	}
	return ids
}

// Current implements Runtime.
func (s *Static) Current() int { return int(s.current.Load()) }

// SetCurrent makes cpu the core reported by Current. It panics on an id
// outside [0, Possible()).
func (s *Static) SetCurrent(cpu int) {
	s.check(cpu)
	s.current.Store(int32(cpu))
}

// OnRemove implements Notifier.
func (s *Static) OnRemove(fn func(cpu int)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.hooks[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.hooks, id)
		s.mu.Unlock()
	}
}

// Remove takes cpu offline and runs the removal hooks with it, in
// registration order. Removing an offline core is a no-op.
func (s *Static) Remove(cpu int) {
	s.check(cpu)

	s.mu.Lock()
	if s.offline[cpu] {
		s.mu.Unlock()
		return
	}
	s.offline[cpu] = true
	ids := make([]int, 0, len(s.hooks))
	for id := range s.hooks {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(int), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.hooks[id])
	}
	s.mu.Unlock()

	// Hooks run unlocked so they may call back into the runtime.
	for _, fn := range fns {
		fn(cpu)
	}
}

// Add brings cpu back online.
func (s *Static) Add(cpu int) {
	s.check(cpu)
	s.mu.Lock()
	delete(s.offline, cpu)
	s.mu.Unlock()
}

func (s *Static) check(cpu int) {
	if cpu < 0 || cpu >= s.possible {
		panic(fmt.Sprintf("percpu: core %d out of range [0, %d)", cpu, s.possible))
	}
}

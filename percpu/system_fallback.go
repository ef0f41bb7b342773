//go:build !linux

package percpu

import (
	"runtime"
	"sync"
	"sync/atomic"
)

type system struct {
	possible int
	next     atomic.Uint32
}

var (
	systemOnce sync.Once
	systemRT   *system
)

// System returns the Runtime of the running host.
//
// Without a way to ask the kernel for the current core, callers are spread
// over runtime.NumCPU() ids round-robin.
func System() Runtime {
	systemOnce.Do(func() {
		systemRT = &system{possible: runtime.NumCPU()}
	})
	return systemRT
}

func (s *system) Possible() int { return s.possible }

func (s *system) Online() []int {
	out := make([]int, s.possible)
	for i := range out {
		out[i] = i
	}
	return out
}

func (s *system) Current() int {
	return int(s.next.Add(1)-1) % s.possible
}

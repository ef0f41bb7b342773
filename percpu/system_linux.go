//go:build linux

package percpu

import (
	"runtime"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// cpuSetBits is the number of cores a unix.CPUSet can describe.
const cpuSetBits = 1024

type system struct {
	possible int
	online   []int
}

var (
	systemOnce sync.Once
	systemRT   *system
)

// System returns the Runtime of the running host.
//
// On Linux the possible count covers every core in the scheduler affinity
// mask and runtime.NumCPU, and Current asks the kernel via getcpu(2).
func System() Runtime {
	systemOnce.Do(func() {
		systemRT = newSystem()
	})
	return systemRT
}

func newSystem() *system {
	s := &system{possible: runtime.NumCPU()}

	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err == nil {
		for cpu := range cpuSetBits {
			if !set.IsSet(cpu) {
				continue
			}
			s.online = append(s.online, cpu)
			if cpu+1 > s.possible {
				s.possible = cpu + 1
			}
		}
	}
	if len(s.online) == 0 {
		for cpu := range s.possible {
			s.online = append(s.online, cpu)
		}
	}
	return s
}

func (s *system) Possible() int { return s.possible }

func (s *system) Online() []int {
	out := make([]int, len(s.online))
	copy(out, s.online)
	return out
}

func (s *system) Current() int {
	var cpu uint32
	_, _, errno := unix.RawSyscall(unix.SYS_GETCPU, uintptr(unsafe.Pointer(&cpu)), 0, 0)
	if errno != 0 {
		return 0
	}
	if int(cpu) >= s.possible {
		return int(cpu) % s.possible
	}
	return int(cpu)
}

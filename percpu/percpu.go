// Package percpu describes the host's execution cores to per-core data structures.
//
// A Runtime reports how many cores may ever exist (Possible), which of them are
// currently usable (Online) and which core the caller is running on (Current).
// Per-core tables are sized once from Possible so they never need to grow, and
// Current is only a locality hint: a goroutine may migrate right after the
// call returns, so callers must still lock whatever they index with it.
//
// Runtimes that can take cores away at run time also implement Notifier so
// that per-core caches can give back what a departing core was holding.
package percpu

// Runtime reports the cores a per-core structure has to account for.
type Runtime interface {
	// Possible returns the number of core ids that may ever be reported.
	// Valid ids are in [0, Possible()).
	Possible() int

	// Online returns the ids of the cores that are currently usable, ascending.
	Online() []int

	// Current returns the id of the core the caller is running on.
	Current() int
}

// Notifier is implemented by runtimes that can remove cores while running.
type Notifier interface {
	// OnRemove registers fn to be called with the id of every core that goes
	// offline. The returned func unregisters it.
	OnRemove(fn func(cpu int)) (cancel func())
}

// ForEachPossible calls fn for every possible core id.
func ForEachPossible(rt Runtime, fn func(cpu int)) {
	n := rt.Possible()
	for cpu := range n {
		fn(cpu)
	}
}

// ForEachOnline calls fn for every online core id.
func ForEachOnline(rt Runtime, fn func(cpu int)) {
	for _, cpu := range rt.Online() {
		fn(cpu)
	}
}

package rcache

import "errors"

var (
	// ErrTooLarge indicates a size above the largest cached class. Callers
	// should skip the cache rather than treat it as a miss.
	ErrTooLarge = errors.New("rcache: size above largest cached class")

	// ErrNoMagazine indicates that a full slot needed a fresh magazine and the
	// magazine budget was exhausted. The value was not cached.
	ErrNoMagazine = errors.New("rcache: no magazine available")

	// ErrNoSpace indicates that neither the cache nor the range allocator could
	// provide a range.
	ErrNoSpace = errors.New("rcache: no range available")

	// ErrNoMemory indicates that the magazine budget cannot cover the per-core
	// magazines needed at construction.
	ErrNoMemory = errors.New("rcache: magazine budget too small")

	// ErrClosed indicates use of a bank after Close.
	ErrClosed = errors.New("rcache: closed")

	// ErrBadConfig indicates an invalid Config.
	ErrBadConfig = errors.New("rcache: bad config")

	// ErrBadSize indicates a zero-sized request.
	ErrBadSize = errors.New("rcache: size must be non-zero")
)

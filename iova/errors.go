package iova

import "errors"

var (
	// ErrNoSpace indicates that no free range of the requested size exists below the limit.
	ErrNoSpace = errors.New("iova: no free range below limit")

	// ErrNotFound indicates that no allocated range contains the given PFN.
	ErrNotFound = errors.New("iova: pfn not allocated")

	// ErrBadSize indicates a zero-sized request or an inverted range.
	ErrBadSize = errors.New("iova: bad range size")

	// ErrBadGranule indicates a granule that is zero or not a power of two.
	ErrBadGranule = errors.New("iova: granule must be a power of two")
)

// Package iova implements an exact-fit allocator for I/O virtual address ranges.
//
// # Overview
//
// A Domain hands out contiguous runs of page frame numbers (PFNs). Each run is
// tracked as an inclusive Range, and ranges never overlap. Allocation searches
// top-down from a caller supplied limit, so devices with a narrow DMA mask get
// addresses as high as they can reach and low addresses stay available for
// the most constrained callers.
//
// # Reservations
//
// Reserve takes a window out of the allocator for good, for example an MSI
// doorbell region. Reserved ranges absorb any allocation they overlap and are
// never released by Free, FindAndRemove or FindAndRemoveBatch.
//
// # Alignment
//
// Size-aligned allocations start on a multiple of the request size rounded up
// to a power of two:
//
//	d.Alloc(3, limit, true) // Lo is a multiple of 4
//
// # Address Helpers
//
// The granule passed to NewDomain is the page size PFNs are measured in.
// PFN, Offset and Addr convert between bus addresses and PFNs.
//
// # Thread Safety
//
// A Domain is safe for concurrent use. A single mutex guards the range index,
// a B-tree keyed by Lo, so hot paths should sit behind a cache such as the
// one in iova/rcache.
package iova

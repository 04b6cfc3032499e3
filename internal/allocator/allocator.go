// Package allocator implements the page-granular bump allocator that backs
// every guest memory region the emulator partitions out of its fixed address
// space. Allocators never free; a session's lifetime is bounded enough that
// linear growth in offset is acceptable.
package allocator

import "github.com/libanisette/anisette-go/internal/vmerr"

// PageSize is the guest page granularity every allocation rounds up to.
const PageSize = 0x1000

// Allocator hands out page-aligned, monotonically advancing addresses from a
// fixed base region. It never reclaims space.
type Allocator struct {
	base   uint64
	size   uint64
	offset uint64
}

// New returns an Allocator carving addresses out of [base, base+size).
func New(base, size uint64) *Allocator {
	return &Allocator{base: base, size: size}
}

// Alloc reserves request bytes (rounded up to a page, minimum one byte) and
// returns the page-aligned base address of the reservation.
func (a *Allocator) Alloc(request uint64) (uint64, error) {
	if request == 0 {
		request = 1
	}
	length := alignUp(request, PageSize)
	address := a.base + a.offset
	next := a.offset + length
	if next < a.offset || next > a.size {
		return 0, vmerr.AllocatorOOM(a.base, a.size, request)
	}
	a.offset = next
	return address, nil
}

func alignUp(value, align uint64) uint64 {
	if align == 0 {
		return value
	}
	return (value + align - 1) &^ (align - 1)
}

// AlignDown rounds value down to the nearest multiple of align.
func AlignDown(value, align uint64) uint64 {
	if align == 0 {
		return value
	}
	return value &^ (align - 1)
}

// AlignUp rounds value up to the nearest multiple of align.
func AlignUp(value, align uint64) uint64 {
	return alignUp(value, align)
}

// Package pmm implements the physical frame allocator: the single-owner
// tracker of free/used physical memory frames described in component A of
// the memory management core.
package pmm

import "github.com/macroscope-go/os/kernel/mem"

// Frame describes a physical memory page index. Frame(0) is reserved as the
// sentinel for "no frame" / allocation failure; it is never handed out as a
// live frame because it falls inside the kernel image's identity-mapped low
// region, which is marked used before the allocator is considered
// initialised (invariant F2).
type Frame uint32

// Valid returns true if this is a live frame rather than the sentinel.
func (f Frame) Valid() bool {
	return f != 0
}

// Address returns the physical memory address for this frame.
func (f Frame) Address() uintptr {
	return uintptr(f) << mem.PageShift
}

// FromAddress returns the Frame that contains the given physical address.
func FromAddress(physAddr uintptr) Frame {
	return Frame(physAddr >> mem.PageShift)
}

package vmm

import (
	"reflect"
	"unsafe"

	"github.com/macroscope-go/os/kernel/mem"
)

// The top-most page directory entry (index NPagesInPT-1, "the mirror slot")
// of every live address space points back at its own frame. Dereferencing
// any address in [PDMirrorAddr, PDMirrorAddr+4MiB) therefore lands on the
// active page directory's own page tables: byte (pt*PageSize + page*4)
// within that window is the PTE for the virtual page (pt, page), and byte
// ((NPagesInPT-1)*PageSize + pde*4) is the PDE itself.
//
// entryAddr returns the address of the PTE covering (pt, page) within the
// currently active address space.
func entryAddr(pt, page uint32) uintptr {
	return mem.PDMirrorAddr + uintptr(pt)*uintptr(mem.PageSize) + uintptr(page)*4
}

// pdeAddr returns the address of PDE pde within the currently active address
// space, as seen through the mirror window.
func pdeAddr(pde uint32) uintptr {
	return mem.PDMirrorAddr + uintptr(mem.NPagesInPT-1)*uintptr(mem.PageSize) + uintptr(pde)*4
}

// ptePtrFn resolves a virtual address to the unsafe.Pointer backing it.
// It is a direct cast in the running kernel, but tests replace it with a
// function that redirects mirror-window and kernel-PD addresses into plain
// Go byte slices, since a test binary has no MMU to back the real
// addresses with.
var ptePtrFn = func(addr uintptr) unsafe.Pointer {
	return unsafe.Pointer(addr)
}

func entryAt(addr uintptr) *pageTableEntry {
	return (*pageTableEntry)(ptePtrFn(addr))
}

// kernelPDEntries overlays the 1024 PDEs of the canonical kernel page
// directory. Unlike every other address space, the kernel PD is reachable
// without going through the (possibly different) active PD's mirror window:
// its frame lives in the permanently identity-style mapped region bootstrap
// installs at KHighHalfAddr, so it can be read directly at
// KHighHalfAddr+physAddr regardless of which address space is active. This
// is what lets the fault dispatcher compare "my current PDE" against "the
// canonical kernel PDE" without first switching address spaces.
func kernelPDEntries() []pageTableEntry {
	addr := mem.KHighHalfAddr + KernelPagedir().PDFrame.Address()

	var sl []pageTableEntry
	hdr := (*reflect.SliceHeader)(unsafe.Pointer(&sl))
	hdr.Data = uintptr(ptePtrFn(addr))
	hdr.Len = mem.NPagesInPT
	hdr.Cap = mem.NPagesInPT
	return sl
}

package vmm

import "github.com/macroscope-go/os/kernel/mem"

// RegionInfo describes a region of the kernel's virtual address space that
// owns a custom page-fault handler, e.g. a lazily-backed heap arena or a
// memory-mapped device range. The region allocator itself lives outside
// this package; this package only defines the narrow contract the fault
// dispatcher needs to hand off to it.
type RegionInfo struct {
	Addr    uintptr
	Size    mem.Size
	Handler RegionFaultHandler
}

// RegionFaultHandler is invoked by the fault dispatcher when a fault occurs
// inside a region that registered one. It receives the address space that
// was active when the fault occurred, the region descriptor, and the
// faulting address.
type RegionFaultHandler func(active *AddressSpace, region *RegionInfo, faultAddr uintptr)

// RegionFinderFn looks up the RegionInfo that contains vaddr, returning nil
// if no such region exists.
type RegionFinderFn func(vaddr uintptr) *RegionInfo

// regionFinder is registered by SetRegionFinder and consulted by the fault
// dispatcher. It starts out nil, meaning every kernel-half fault outside the
// identity-mapped first few pages is reported as fatal.
var regionFinder RegionFinderFn

// SetRegionFinder registers the function the fault dispatcher uses to look
// up which region, if any, owns a faulting address. This indirection lets
// the region allocator live in its own package without an import cycle
// back into vmm.
func SetRegionFinder(fn RegionFinderFn) {
	regionFinder = fn
}

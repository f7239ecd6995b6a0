//go:build 386

package mem

// Kernel half constants describing the fixed higher-half layout that the
// linker script and boot glue (out of scope for this module) establish
// before Bootstrap runs.
const (
	// KHighHalfAddr is the virtual base address of the kernel half. Every
	// address space maps this address identically.
	KHighHalfAddr = uintptr(0xC0000000)

	// FirstKernelPT is the PDE index that covers KHighHalfAddr.
	// FirstKernelPT*4MiB == KHighHalfAddr.
	FirstKernelPT = 768

	// NPagesInPT is the number of entries in a page table or page
	// directory on this architecture.
	NPagesInPT = 1024
)

// PDMirrorAddr is the virtual base address of the mirror-mapping window:
// PDE 1023 of every live page directory maps to that directory's own
// physical frame, so the last 4 MiB of the address space ([PDMirrorAddr,
// PDMirrorAddr+4MiB)) aliases the active PD's page tables.
const PDMirrorAddr = uintptr(NPagesInPT-1) * uintptr(NPagesInPT) * uintptr(PageSize)

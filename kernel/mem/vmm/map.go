package vmm

import (
	"github.com/macroscope-go/os/kernel"
	"github.com/macroscope-go/os/kernel/mem"
	"github.com/macroscope-go/os/kernel/mem/pmm"
)

const ptShift = 10 // log2(NPagesInPT)

var (
	errMirrorRange = &kernel.Error{Module: "vmm", Message: "virtual address falls inside the mirror window"}

	// panicFn is mocked by tests and is automatically inlined by the compiler.
	panicFn = kernel.Panic
)

// ptOf returns the page table (PDE) index that covers vaddr.
func ptOf(vaddr uintptr) uint32 {
	return uint32(vaddr >> (mem.PageShift + ptShift))
}

// pageOf returns the page (PTE) index within its page table for vaddr.
func pageOf(vaddr uintptr) uint32 {
	return uint32(vaddr>>mem.PageShift) % mem.NPagesInPT
}

// presentPDE reports whether the PDE covering vaddr is present. Kernel-half
// addresses are checked against the canonical kernel page directory rather
// than the active one, since the active one's copy of a kernel PDE may not
// have been lazily propagated yet.
func presentPDE(vaddr uintptr, pt uint32) bool {
	if vaddr >= mem.KHighHalfAddr {
		return kernelPDEntries()[pt].HasFlags(FlagPresent)
	}
	return entryAt(pdeAddr(pt)).HasFlags(FlagPresent)
}

// pagedirFor returns the AddressSpace whose lock guards structural changes
// (new page table allocation) for vaddr: the kernel address space for
// kernel-half addresses, the active one otherwise.
func pagedirFor(vaddr uintptr) *AddressSpace {
	if vaddr >= mem.KHighHalfAddr {
		return &kernelPD
	}
	return activePD
}

// GetFrame returns the physical frame currently mapped at vaddr, or the
// zero Frame if vaddr has no mapping.
func GetFrame(vaddr uintptr) pmm.Frame {
	pt, page := ptOf(vaddr), pageOf(vaddr)

	if !presentPDE(vaddr, pt) {
		return 0
	}

	pte := entryAt(entryAddr(pt, page))
	if !pte.HasFlags(FlagPresent) {
		return 0
	}

	return pte.Frame()
}

// MapPage maps vaddr to frame in the address space that owns vaddr's half
// (the kernel address space for kernel-half addresses, otherwise the
// currently active one), allocating a new page table on demand. It is
// invalid to call MapPage with a virtual address inside the mirror window;
// doing so panics rather than silently corrupting the active address
// space's own page tables.
func MapPage(vaddr uintptr, frame pmm.Frame, rw bool) *kernel.Error {
	if vaddr >= mem.PDMirrorAddr {
		panicFn(errMirrorRange)
		return errMirrorRange
	}

	return mapPageIn(pagedirFor(vaddr), vaddr, frame, rw)
}

// mapPageIn implements MapPage against a specific AddressSpace, used both by
// the exported MapPage and internally (by CreatePagedir, via mapTemporary)
// to manipulate the temporary-mapping slot.
func mapPageIn(pdd *AddressSpace, vaddr uintptr, frame pmm.Frame, rw bool) *kernel.Error {
	pt, page := ptOf(vaddr), pageOf(vaddr)

	pdd.lock.Acquire()
	defer pdd.lock.Release()

	if !presentPDE(vaddr, pt) {
		newPTFrame := allocFrameFn(1)
		if !newPTFrame.Valid() {
			return errOutOfMemory
		}

		var newPDE pageTableEntry
		newPDE.SetFlags(FlagPresent | FlagRW)
		newPDE.SetFrame(newPTFrame)

		if vaddr >= mem.KHighHalfAddr {
			kernelPDEntries()[pt] = newPDE
		}
		// The active address space always gets its own copy stamped
		// immediately, whether or not this is a kernel-half PDE: for
		// a user-half PDE this *is* the active one's own slot; for a
		// kernel-half PDE this hands the active address space the new
		// table right away instead of waiting for the lazy
		// propagation path in the fault dispatcher to pick it up.
		*entryAt(pdeAddr(pt)) = newPDE
		flushTLBEntryFn(entryAddr(pt, 0))
	}

	pte := entryAt(entryAddr(pt, page))
	*pte = 0
	pte.SetFlags(FlagPresent)
	if vaddr < mem.KHighHalfAddr {
		pte.SetFlags(FlagUser)
	} else {
		pte.SetFlags(FlagGlobal)
	}
	if rw {
		pte.SetFlags(FlagRW)
	}
	pte.SetFrame(frame)
	flushTLBEntryFn(vaddr)

	return nil
}

// UnmapPage clears whatever mapping exists at vaddr. Unmapping an
// already-unmapped page is a no-op. UnmapPage never frees the underlying
// page table even if it becomes fully empty, trading a little wasted memory
// for not having to track per-table occupancy counts.
func UnmapPage(vaddr uintptr) {
	unmapPageIn(activePD, vaddr)
}

func unmapPageIn(pdd *AddressSpace, vaddr uintptr) {
	pt, page := ptOf(vaddr), pageOf(vaddr)

	if !presentPDE(vaddr, pt) {
		return
	}

	pte := entryAt(entryAddr(pt, page))
	if !pte.HasFlags(FlagPresent) {
		return
	}

	pte.ClearFlags(FlagPresent)
	flushTLBEntryFn(vaddr)
}

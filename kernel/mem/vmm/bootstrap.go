package vmm

import (
	"unsafe"

	"github.com/macroscope-go/os/kernel"
	"github.com/macroscope-go/os/kernel/irq"
	"github.com/macroscope-go/os/kernel/mem"
	"github.com/macroscope-go/os/kernel/mem/pmm"
)

var errTooMuchKernelData = &kernel.Error{Module: "vmm", Message: "kernel image requires more than one page table"}

// kernelPT0 is the scratch page table Bootstrap uses to replace the
// loader's identity mapping of the kernel's first 4MiB with a real,
// page-granular table. The linker script places it on its own page so its
// backing frame can be installed directly into a PDE.
var kernelPT0 [mem.NPagesInPT]pageTableEntry

// Bootstrap brings the frame allocator's bootstrap output and the loader's
// identity-mapped higher half into the state vmm.MapPage/GetFrame/UnmapPage
// and the fault dispatcher expect:
//
//  1. the canonical kernel page directory descriptor adopts the page
//     directory the loader already built (bootPDPhysAddr).
//  2. kernelPT0 is populated to identity-map every page of the kernel image
//     up to kernelDataEnd, except stackGuardAddr, whose frame is released
//     back to the frame allocator instead of being mapped.
//  3. the kernel PD's entry for the kernel's first page table (FirstKernelPT)
//     is replaced by kernelPT0, and its mirror slot (NPagesInPT-1) is
//     installed.
//  4. the PSE bit in CR4 is cleared, so the 4M page the loader used to map
//     the kernel can never be reinstated by a stale TLB entry.
//  5. the page-fault dispatcher is registered with the IDT.
//
// stackGuardAddr is recorded as StackGuardPage so the fault dispatcher can
// recognize a fault there as a kernel stack overflow.
func Bootstrap(kernelDataEnd, stackGuardAddr uintptr) *kernel.Error {
	nKernelPages := mem.Size(mem.PageAlignUp(kernelDataEnd) - mem.KHighHalfAddr).Pages()
	if nKernelPages > mem.NPagesInPT {
		return errTooMuchKernelData
	}

	kernelPD.PDFrame = pmm.FromAddress(bootPDPhysAddr())

	for i := uint32(0); i < nKernelPages; i++ {
		pageAddr := mem.KHighHalfAddr + uintptr(i)*uintptr(mem.PageSize)
		if pageAddr == stackGuardAddr {
			kernelPT0[i] = 0
			freeFrameFn(pmm.Frame(i), 1)
			continue
		}

		var pte pageTableEntry
		pte.SetFlags(FlagPresent | FlagRW | FlagGlobal)
		pte.SetFrame(pmm.Frame(i))
		kernelPT0[i] = pte
	}
	for i := nKernelPages; i < mem.NPagesInPT; i++ {
		kernelPT0[i] = 0
	}

	kernelPT0Phys := uintptr(unsafe.Pointer(&kernelPT0[0])) - mem.KHighHalfAddr

	var pt0PDE pageTableEntry
	pt0PDE.SetFlags(FlagPresent | FlagRW)
	pt0PDE.SetFrame(pmm.FromAddress(kernelPT0Phys))
	kernelPDEntries()[mem.FirstKernelPT] = pt0PDE

	var mirrorPDE pageTableEntry
	mirrorPDE.SetFlags(FlagPresent | FlagRW)
	mirrorPDE.SetFrame(kernelPD.PDFrame)
	kernelPDEntries()[mem.NPagesInPT-1] = mirrorPDE

	flushTLBEntryFn(mem.KHighHalfAddr)

	disablePSE()

	StackGuardPage = stackGuardAddr

	irq.HandleExceptionWithCode(irq.PageFaultException, pageFaultHandler)

	return nil
}

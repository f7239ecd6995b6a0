package vmm

import (
	"github.com/macroscope-go/os/kernel"
	"github.com/macroscope-go/os/kernel/cpu"
	"github.com/macroscope-go/os/kernel/irq"
	"github.com/macroscope-go/os/kernel/kfmt/early"
	"github.com/macroscope-go/os/kernel/mem"
)

const eflagsIF = 1 << 9

var (
	errKernelStackOverflow = &kernel.Error{Module: "vmm", Message: "kernel stack overflow"}
	errMirrorFault         = &kernel.Error{Module: "vmm", Message: "fault on access to mirrored page directory"}
	errNoRegion            = &kernel.Error{Module: "vmm", Message: "kernel page fault in non-existing region"}
	errRegionNoHandler     = &kernel.Error{Module: "vmm", Message: "kernel page fault in region with no handler"}
	errUserFault           = &kernel.Error{Module: "vmm", Message: "unhandled userspace page fault"}

	// StackGuardPage is the virtual address of the unmapped page below the
	// kernel stack; a fault there is always a stack overflow. Bootstrap
	// sets this once the layout is known; it defaults to 0 (no guard
	// configured, e.g. in unit tests) which never matches a real fault
	// address.
	StackGuardPage uintptr

	// readCR2Fn and enableInterruptsFn are mocked by tests and are
	// automatically inlined by the compiler when building the kernel.
	readCR2Fn          = cpu.ReadCR2
	enableInterruptsFn = cpu.EnableInterrupts
)

// pageFaultHandler classifies a page fault in order: lazy kernel-PT
// propagation, stack overflow, mirror-window access, and region lookup, with
// anything left unclassified reported as fatal. It is registered with
// irq.HandleExceptionWithCode by Bootstrap.
func pageFaultHandler(errorCode uint32, frame *irq.Frame, regs *irq.Regs) {
	vaddr := readCR2Fn()

	if vaddr >= mem.KHighHalfAddr {
		pt := ptOf(vaddr)

		// If the active address space is not the kernel's own and its
		// copy of this PDE has not yet been propagated from the
		// canonical kernel PD, copy it over and retry the faulting
		// instruction instead of treating this as a real fault.
		if activePD != &kernelPD {
			kernelPDE := kernelPDEntries()[pt]
			activePDE := entryAt(pdeAddr(pt))
			if *activePDE != kernelPDE {
				*activePDE = kernelPDE
				flushTLBEntryFn(entryAddr(pt, 0))
				return
			}
		}

		// From this point on the fault is not recoverable by a quick
		// metadata fixup, so re-enable interrupts if they were enabled
		// when the fault occurred.
		if frame != nil && frame.EFlags&eflagsIF != 0 {
			enableInterruptsFn()
		}

		// A fault on the guard page below the kernel stack means the
		// stack grew past its reserved space.
		if StackGuardPage != 0 && vaddr >= StackGuardPage && vaddr < StackGuardPage+uintptr(mem.PageSize) {
			early.Printf("\nKernel stack overflow at 0x%8x\n", vaddr)
			panicFn(errKernelStackOverflow)
			return
		}

		// A fault inside the mirror window is always fatal; there is
		// no region to look up there.
		if vaddr >= mem.PDMirrorAddr {
			early.Printf("\nFault on access to mirrored PD at 0x%8x\n", vaddr)
			panicFn(errMirrorFault)
			return
		}

		// Hand the fault off to whichever region owns this address,
		// if any.
		if regionFinder == nil {
			early.Printf("\nKernel pagefault in non-existing region at 0x%8x\n", vaddr)
			panicFn(errNoRegion)
			return
		}
		region := regionFinder(vaddr)
		if region == nil {
			early.Printf("\nKernel pagefault in non-existing region at 0x%8x\n", vaddr)
			panicFn(errNoRegion)
			return
		}
		if region.Handler == nil {
			early.Printf("\nKernel pagefault in region with no handler at 0x%8x\n", vaddr)
			panicFn(errRegionNoHandler)
			return
		}
		region.Handler(activePD, region, vaddr)
		return
	}

	// Userspace faults are not handled yet; always fatal.
	if frame != nil && frame.EFlags&eflagsIF != 0 {
		enableInterruptsFn()
	}
	early.Printf("\nUserspace page fault at 0x%8x\n", vaddr)
	panicFn(errUserFault)
}

package vmm

import "github.com/macroscope-go/os/kernel/cpu"

// flushTLBEntry flushes a TLB entry for a particular virtual address.
func flushTLBEntry(virtAddr uintptr) { cpu.FlushTLBEntry(virtAddr) }

// switchPDT sets the root page table directory to point to the specified
// physical address and flushes the TLB.
func switchPDT(pdtPhysAddr uintptr) { cpu.SwitchPDT(pdtPhysAddr) }

// disablePSE clears the PSE bit in CR4, so that a stray 4M-page PDE left
// over from the loader's identity mapping can never be honored again once
// Bootstrap has replaced it with a real page table.
func disablePSE() { cpu.DisablePSE() }

// bootPDPhysAddr returns the physical address of the page directory the
// loader built before handing control to Kmain. Bootstrap adopts this page
// directory as the canonical kernel one rather than allocating a fresh one,
// since the loader has already mapped the kernel's higher half into it.
func bootPDPhysAddr() uintptr { return cpu.BootPDPhysAddr() }

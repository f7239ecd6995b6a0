//go:build 386

package cpu

// EnableInterrupts enables interrupt handling.
func EnableInterrupts()

// DisableInterrupts disables interrupt handling.
func DisableInterrupts()

// Halt stops instruction execution.
func Halt()

// FlushTLBEntry flushes a TLB entry for a particular virtual address.
func FlushTLBEntry(virtAddr uintptr)

// SwitchPDT sets the root page directory to point to the specified physical
// address and flushes the TLB.
func SwitchPDT(pdPhysAddr uintptr)

// ActivePDT returns the physical address of the currently active page
// directory.
func ActivePDT() uintptr

// ReadCR2 returns the value stored in the CR2 register. The CPU populates
// CR2 with the faulting virtual address before invoking the page fault
// handler.
func ReadCR2() uintptr

// DisablePSE clears the PSE bit in CR4, disabling support for 4M pages.
func DisablePSE()

// BootPDPhysAddr returns the physical address of the page directory the
// boot loader built and installed into CR3 before transferring control to
// the kernel.
func BootPDPhysAddr() uintptr

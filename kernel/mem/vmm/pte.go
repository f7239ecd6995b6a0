package vmm

import (
	"github.com/macroscope-go/os/kernel/mem"
	"github.com/macroscope-go/os/kernel/mem/pmm"
)

// pageTableEntry describes a single 32-bit PDE or PTE as laid out by the x86
// MMU: bits [31:12] hold a frame number and the low 12 bits hold flags.
type pageTableEntry uint32

// PageTableEntryFlag describes a flag that can be applied to a page table or
// page directory entry.
type PageTableEntryFlag uint32

const (
	// FlagPresent indicates that the entry points to a mapped frame (PTE)
	// or a mapped page table (PDE).
	FlagPresent = PageTableEntryFlag(1 << 0)

	// FlagRW indicates that the mapped page is writable. When missing from
	// a PDE it makes every page covered by that page table read-only
	// regardless of the PTE's own FlagRW bit.
	FlagRW = PageTableEntryFlag(1 << 1)

	// FlagUser indicates that the mapped page is accessible from user mode.
	FlagUser = PageTableEntryFlag(1 << 2)

	// FlagWriteThrough enables write-through caching for the mapped page.
	FlagWriteThrough = PageTableEntryFlag(1 << 3)

	// FlagCacheDisable disables caching for the mapped page.
	FlagCacheDisable = PageTableEntryFlag(1 << 4)

	// FlagAccessed is set by the MMU the first time the mapped page is read
	// or written.
	FlagAccessed = PageTableEntryFlag(1 << 5)

	// FlagDirty is set by the MMU the first time the mapped page is
	// written to. Only meaningful on PTEs.
	FlagDirty = PageTableEntryFlag(1 << 6)

	// FlagHugePage marks a PDE as mapping a 4MiB page directly instead of
	// pointing at a page table. Only meaningful on PDEs.
	FlagHugePage = PageTableEntryFlag(1 << 7)

	// FlagGlobal prevents the TLB entry for the mapped page from being
	// flushed on a CR3 reload. Only meaningful on PTEs in the kernel half.
	FlagGlobal = PageTableEntryFlag(1 << 8)
)

// frameShift is the bit offset of the frame number field within a PDE/PTE.
const frameShift = mem.PageShift

// HasFlags returns true if the entry has all the bits of flags set.
func (pte pageTableEntry) HasFlags(flags PageTableEntryFlag) bool {
	return (uint32(pte) & uint32(flags)) == uint32(flags)
}

// HasAnyFlag returns true if the entry has at least one of the bits in flags
// set.
func (pte pageTableEntry) HasAnyFlag(flags PageTableEntryFlag) bool {
	return (uint32(pte) & uint32(flags)) != 0
}

// SetFlags ORs flags into the entry, leaving the frame field untouched.
func (pte *pageTableEntry) SetFlags(flags PageTableEntryFlag) {
	*pte |= pageTableEntry(flags)
}

// ClearFlags clears flags from the entry, leaving the frame field untouched.
func (pte *pageTableEntry) ClearFlags(flags PageTableEntryFlag) {
	*pte &^= pageTableEntry(flags)
}

// Frame returns the physical frame encoded in this entry.
func (pte pageTableEntry) Frame() pmm.Frame {
	return pmm.Frame(uint32(pte) >> frameShift)
}

// SetFrame sets the physical frame encoded in this entry, leaving the flag
// bits untouched.
func (pte *pageTableEntry) SetFrame(frame pmm.Frame) {
	*pte = (*pte &^ pageTableEntry(^uint32(1<<frameShift-1))) | pageTableEntry(uint32(frame)<<frameShift)
}

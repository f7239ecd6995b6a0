package vmm

import (
	"unsafe"

	"github.com/macroscope-go/os/kernel"
	"github.com/macroscope-go/os/kernel/mem"
	"github.com/macroscope-go/os/kernel/mem/pmm"
	ksync "github.com/macroscope-go/os/kernel/sync"
)

// tempMappingAddr is a reserved virtual page, immediately below the mirror
// window, used to bring a page directory that is not currently active into
// the active address space long enough to initialize its contents.
const tempMappingAddr = mem.PDMirrorAddr - uintptr(mem.PageSize)

var (
	errOutOfMemory = &kernel.Error{Module: "vmm", Message: "out of physical memory"}

	// allocFrameFn and freeFrameFn are function-variable seams over the
	// frame allocator so tests can run without a real pmm.FrameAllocator.
	allocFrameFn = pmm.AllocFrames
	freeFrameFn  = pmm.FreeFrames

	// switchPDTFn/flushTLBEntryFn are seams over the declared-without-body
	// asm primitives in tlb.go.
	switchPDTFn     = switchPDT
	flushTLBEntryFn = flushTLBEntry

	// kernelPD is the canonical kernel page directory. Its PDE 1023 (the
	// mirror slot) and PDE FirstKernelPT are installed once, by Bootstrap.
	kernelPD AddressSpace

	// activePD tracks which AddressSpace the CPU's root page directory
	// register currently points at. This repository has no scheduler, so
	// there is no per-task copy of this field; it is a single global
	// updated only by SwitchPagedir.
	activePD = &kernelPD

	// tempMapLock serializes use of the single tempMappingAddr slot by
	// CreatePagedir, which is expected to be a rare,
	// non-performance-critical operation.
	tempMapLock ksync.Spinlock
)

// AddressSpace describes one page directory: the unit of virtual memory
// isolation. The kernel half of every AddressSpace maps identically; only
// the user half differs.
type AddressSpace struct {
	// PDFrame is the physical frame backing this address space's page
	// directory.
	PDFrame pmm.Frame

	// lock guards structural changes to this address space: allocating a
	// new page table on a MapPage miss. GetFrame and UnmapPage are
	// lock-free, relying on the atomicity of a single 32-bit PTE write.
	lock ksync.Spinlock
}

// KernelPagedir returns the canonical kernel address space.
func KernelPagedir() *AddressSpace {
	return &kernelPD
}

// CurrentPagedir returns the address space currently installed in the root
// page directory register.
func CurrentPagedir() *AddressSpace {
	return activePD
}

// SwitchPagedir installs pd as the active address space and flushes
// whatever state the MMU caches about the previous one.
func SwitchPagedir(pd *AddressSpace) {
	switchPDTFn(pd.PDFrame.Address())
	activePD = pd
}

// CreatePagedir allocates a new page directory, seeds its kernel half with
// the canonical kernel mappings, and installs its own mirror slot. The
// returned AddressSpace is not activated; call SwitchPagedir to make it
// current.
func CreatePagedir() (*AddressSpace, *kernel.Error) {
	frame := allocFrameFn(1)
	if !frame.Valid() {
		return nil, errOutOfMemory
	}

	pd := &AddressSpace{PDFrame: frame}

	tempMapLock.Acquire()
	defer tempMapLock.Release()

	if err := mapTemporary(frame); err != nil {
		freeFrameFn(frame, 1)
		return nil, err
	}
	defer unmapTemporary()

	entries := (*[mem.NPagesInPT]pageTableEntry)(ptrAt(tempMappingAddr))
	for i := range entries {
		entries[i] = 0
	}

	kernelEntries := kernelPDEntries()
	for i := uint32(mem.FirstKernelPT); i < mem.NPagesInPT-1; i++ {
		entries[i] = kernelEntries[i]
	}

	entries[mem.NPagesInPT-1] = 0
	entries[mem.NPagesInPT-1].SetFlags(FlagPresent | FlagRW)
	entries[mem.NPagesInPT-1].SetFrame(frame)

	return pd, nil
}

// DeletePagedir releases the page-table frames referenced by pd's user-half
// PDEs plus the page directory frame itself; the frames those page tables
// map are not freed. pd must not be the kernel address space. DeletePagedir
// temporarily makes pd the active address space to snapshot its PDEs through
// the mirror window, then switches to whichever address space was active
// before the call, or to the kernel address space if that was pd itself.
func DeletePagedir(pd *AddressSpace) {
	restore := activePD
	if restore == pd {
		restore = &kernelPD
	}

	SwitchPagedir(pd)
	var backup [mem.NPagesInPT]pageTableEntry
	pdEntries := (*[mem.NPagesInPT]pageTableEntry)(ptrAt(pdeAddr(0)))
	copy(backup[:], pdEntries[:])
	SwitchPagedir(restore)

	for i := uint32(0); i < mem.FirstKernelPT; i++ {
		if backup[i].HasFlags(FlagPresent) {
			freeFrameFn(backup[i].Frame(), 1)
		}
	}

	freeFrameFn(pd.PDFrame, 1)
}

// mapTemporary installs frame at tempMappingAddr within the active address
// space. Callers must hold tempMapLock and call unmapTemporary when done.
func mapTemporary(frame pmm.Frame) *kernel.Error {
	return mapPageIn(activePD, tempMappingAddr, frame, true)
}

func unmapTemporary() {
	unmapPageIn(activePD, tempMappingAddr)
}

func ptrAt(addr uintptr) unsafe.Pointer {
	return ptePtrFn(addr)
}

package vmm

import (
	"testing"

	"github.com/macroscope-go/os/kernel"
	"github.com/macroscope-go/os/kernel/mem"
	"github.com/macroscope-go/os/kernel/mem/pmm"
)

func withMapTestSeams(t *testing.T) (fm *fakeMemory, allocated *[]pmm.Frame, freed *[]pmm.Frame) {
	t.Helper()

	fm = newFakeMemory(t)

	origAlloc, origFree, origFlush := allocFrameFn, freeFrameFn, flushTLBEntryFn
	t.Cleanup(func() {
		allocFrameFn, freeFrameFn, flushTLBEntryFn = origAlloc, origFree, origFlush
	})

	allocated = &[]pmm.Frame{}
	freed = &[]pmm.Frame{}

	next := pmm.Frame(1)
	allocFrameFn = func(n uint32) pmm.Frame {
		f := next
		next += pmm.Frame(n)
		*allocated = append(*allocated, f)
		return f
	}
	freeFrameFn = func(base pmm.Frame, n uint32) {
		*freed = append(*freed, base)
	}
	flushTLBEntryFn = func(uintptr) {}

	kernelPD.PDFrame = pmm.Frame(0x10)

	return fm, allocated, freed
}

func TestMapPageUserHalfAllocatesPageTable(t *testing.T) {
	_, allocated, _ := withMapTestSeams(t)

	origActivePD := activePD
	t.Cleanup(func() { activePD = origActivePD })
	activePD = &AddressSpace{PDFrame: pmm.Frame(0x20)}

	const vaddr = uintptr(0x01000000)

	if f := GetFrame(vaddr); f != 0 {
		t.Fatalf("expected unmapped page to report frame 0, got %v", f)
	}

	if err := MapPage(vaddr, pmm.Frame(42), true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(*allocated) != 1 {
		t.Fatalf("expected exactly one page table to be allocated, got %d", len(*allocated))
	}

	if got := GetFrame(vaddr); got != pmm.Frame(42) {
		t.Fatalf("expected GetFrame to return frame 42, got %v", got)
	}

	pte := entryAt(entryAddr(ptOf(vaddr), pageOf(vaddr)))
	if !pte.HasFlags(FlagPresent | FlagRW | FlagUser) {
		t.Fatalf("expected PTE to carry present/rw/user flags, got %x", *pte)
	}
	if pte.HasAnyFlag(FlagGlobal) {
		t.Fatalf("user-half mapping must not be global")
	}
}

func TestMapPageKernelHalfUpdatesCanonicalPD(t *testing.T) {
	withMapTestSeams(t)

	const vaddr = mem.KHighHalfAddr + 0x02000000

	if err := MapPage(vaddr, pmm.Frame(7), false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pt := ptOf(vaddr)
	if !kernelPDEntries()[pt].HasFlags(FlagPresent) {
		t.Fatalf("expected canonical kernel PD to gain the new PDE")
	}

	pte := entryAt(entryAddr(pt, pageOf(vaddr)))
	if !pte.HasFlags(FlagPresent | FlagGlobal) {
		t.Fatalf("expected kernel-half PTE to be present and global, got %x", *pte)
	}
	if pte.HasAnyFlag(FlagRW) {
		t.Fatalf("expected read-only mapping to not carry the RW flag")
	}
}

func TestMapPageRejectsMirrorRange(t *testing.T) {
	withMapTestSeams(t)

	origPanicFn := panicFn
	t.Cleanup(func() { panicFn = origPanicFn })

	var panicked *kernel.Error
	panicFn = func(e interface{}) {
		if err, ok := e.(*kernel.Error); ok {
			panicked = err
		}
	}

	err := MapPage(mem.PDMirrorAddr, pmm.Frame(1), true)
	if err != errMirrorRange {
		t.Fatalf("expected errMirrorRange, got %v", err)
	}
	if panicked != errMirrorRange {
		t.Fatalf("expected panicFn to be invoked with errMirrorRange")
	}
}

func TestUnmapPageClearsPresentBit(t *testing.T) {
	withMapTestSeams(t)

	origActivePD := activePD
	t.Cleanup(func() { activePD = origActivePD })
	activePD = &AddressSpace{PDFrame: pmm.Frame(0x30)}

	const vaddr = uintptr(0x03000000)

	if err := MapPage(vaddr, pmm.Frame(9), true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if GetFrame(vaddr) != pmm.Frame(9) {
		t.Fatalf("setup failed: page not mapped")
	}

	UnmapPage(vaddr)

	if got := GetFrame(vaddr); got != 0 {
		t.Fatalf("expected GetFrame to return 0 after UnmapPage, got %v", got)
	}

	// Unmapping again must be a no-op, not a crash.
	UnmapPage(vaddr)
}

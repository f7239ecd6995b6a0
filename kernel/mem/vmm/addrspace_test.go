package vmm

import (
	"testing"

	"github.com/macroscope-go/os/kernel/mem"
	"github.com/macroscope-go/os/kernel/mem/pmm"
)

func withAddrspaceTestSeams(t *testing.T) *fakeMemory {
	t.Helper()

	fm := newFakeMemory(t)

	origAlloc, origFree := allocFrameFn, freeFrameFn
	origSwitch, origFlush := switchPDTFn, flushTLBEntryFn
	origActivePD := activePD
	t.Cleanup(func() {
		allocFrameFn, freeFrameFn = origAlloc, origFree
		switchPDTFn, flushTLBEntryFn = origSwitch, origFlush
		activePD = origActivePD
	})

	next := pmm.Frame(1)
	allocFrameFn = func(n uint32) pmm.Frame {
		f := next
		next += pmm.Frame(n)
		return f
	}
	freeFrameFn = func(pmm.Frame, uint32) {}
	switchPDTFn = func(uintptr) {}
	flushTLBEntryFn = func(uintptr) {}

	kernelPD.PDFrame = pmm.Frame(0x10)
	activePD = &kernelPD

	// Seed a canonical kernel PDE so CreatePagedir has something real to
	// copy into the new address space's kernel half.
	kernelEntries := kernelPDEntries()
	var seeded pageTableEntry
	seeded.SetFlags(FlagPresent | FlagRW)
	seeded.SetFrame(pmm.Frame(0x99))
	kernelEntries[mem.FirstKernelPT] = seeded

	return fm
}

func TestCreatePagedirSeedsKernelHalf(t *testing.T) {
	withAddrspaceTestSeams(t)

	pd, err := CreatePagedir()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !pd.PDFrame.Valid() {
		t.Fatalf("expected a valid PD frame to be allocated")
	}

	entries := (*[mem.NPagesInPT]pageTableEntry)(ptrAt(tempMappingAddr))

	if got := entries[mem.FirstKernelPT]; !got.HasFlags(FlagPresent | FlagRW) || got.Frame() != pmm.Frame(0x99) {
		t.Fatalf("expected kernel half PDE to be copied verbatim, got %x", got)
	}

	mirror := entries[mem.NPagesInPT-1]
	if !mirror.HasFlags(FlagPresent|FlagRW) || mirror.Frame() != pd.PDFrame {
		t.Fatalf("expected mirror slot to point back at the new PD's own frame, got %x", mirror)
	}

	for i := uint32(0); i < mem.FirstKernelPT; i++ {
		if entries[i].HasFlags(FlagPresent) {
			t.Fatalf("expected user half entry %d to start out absent, got %x", i, entries[i])
		}
	}
}

func TestDeletePagedirFreesUserHalfFrames(t *testing.T) {
	withAddrspaceTestSeams(t)

	pd, err := CreatePagedir()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var freed []pmm.Frame
	origFree := freeFrameFn
	freeFrameFn = func(base pmm.Frame, n uint32) {
		freed = append(freed, base)
		origFree(base, n)
	}

	SwitchPagedir(pd)
	userEntry := entryAt(pdeAddr(5))
	userEntry.SetFlags(FlagPresent | FlagRW)
	userEntry.SetFrame(pmm.Frame(0x55))
	SwitchPagedir(&kernelPD)

	DeletePagedir(pd)

	foundUserFrame, foundPDFrame := false, false
	for _, f := range freed {
		if f == pmm.Frame(0x55) {
			foundUserFrame = true
		}
		if f == pd.PDFrame {
			foundPDFrame = true
		}
	}
	if !foundUserFrame {
		t.Fatalf("expected DeletePagedir to free the user-half frame, freed=%v", freed)
	}
	if !foundPDFrame {
		t.Fatalf("expected DeletePagedir to free the PD's own frame, freed=%v", freed)
	}
}

func TestDeletePagedirOfActiveSpaceRestoresKernelPD(t *testing.T) {
	withAddrspaceTestSeams(t)

	pd, err := CreatePagedir()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	SwitchPagedir(pd)
	DeletePagedir(pd)

	if CurrentPagedir() != &kernelPD {
		t.Fatalf("expected active address space to be restored to the kernel PD")
	}
}

package vmm

import (
	"testing"
	"unsafe"

	"github.com/macroscope-go/os/kernel/mem"
)

// fakeMemory backs every address the code under test dereferences through
// ptePtrFn with a plain Go value instead of a real mapped address, since a
// test binary has no MMU. Addresses are bucketed into PageSize-aligned
// pages, each backed by a real [1024]pageTableEntry array, so that code
// which reinterprets a page-aligned address as a full page table (as
// CreatePagedir and DeletePagedir do) stays in bounds exactly as it would
// against a real mapped page.
type fakeMemory struct {
	pages map[uintptr]*[mem.NPagesInPT]pageTableEntry
}

func newFakeMemory(t *testing.T) *fakeMemory {
	t.Helper()

	fm := &fakeMemory{pages: make(map[uintptr]*[mem.NPagesInPT]pageTableEntry)}

	origPtePtrFn := ptePtrFn
	ptePtrFn = fm.ptrAt
	t.Cleanup(func() { ptePtrFn = origPtePtrFn })

	return fm
}

func (fm *fakeMemory) ptrAt(addr uintptr) unsafe.Pointer {
	pageBase := addr &^ (uintptr(mem.PageSize) - 1)
	offset := (addr - pageBase) / 4

	page, ok := fm.pages[pageBase]
	if !ok {
		page = new([mem.NPagesInPT]pageTableEntry)
		fm.pages[pageBase] = page
	}
	return unsafe.Pointer(&page[offset])
}

func (fm *fakeMemory) set(addr uintptr, pte pageTableEntry) {
	*(*pageTableEntry)(fm.ptrAt(addr)) = pte
}

func (fm *fakeMemory) get(addr uintptr) pageTableEntry {
	return *(*pageTableEntry)(fm.ptrAt(addr))
}

//go:build 386

package mem

const (
	// PageShift is equal to log2(PageSize). Used to convert a physical or
	// virtual address to a page/frame number and vice-versa.
	PageShift = 12

	// PageSize defines the system's page size in bytes.
	PageSize = Size(1 << PageShift)

	// PointerShift is equal to log2(unsafe.Sizeof(uintptr(0))) on this
	// architecture: shifting an entry index within a page table left by
	// PointerShift gives that entry's byte offset.
	PointerShift = 2
)

package pmm

import (
	"reflect"
	"unsafe"

	"github.com/macroscope-go/os/kernel/mem"
	ksync "github.com/macroscope-go/os/kernel/sync"
)

// bitsPerWord is the number of frames tracked by a single bitmap word.
const bitsPerWord = 32

// FrameAllocator is the single, process-wide frame allocator instance. Its
// state is shared by every caller and is guarded by lock.
var FrameAllocator bitmapAllocator

// kernelHighHalfBase is the virtual address Init measures the reserved
// kernel region from. It is a var rather than a direct reference to
// mem.KHighHalfAddr so tests can point it at their own backing store instead
// of the real higher-half kernel base.
var kernelHighHalfBase = mem.KHighHalfAddr

// bitmapAllocator tracks free physical frames with a densely packed bitmap
// (1 bit per frame, 32 frames per word) and a beginSearchAt cursor hint so
// AllocFrames doesn't rescan already-full words on every call. It never
// suspends: Alloc/Free are bounded by the size of the bitmap.
type bitmapAllocator struct {
	lock ksync.Spinlock

	bitmap []uint32

	nframes       uint32
	nusedFrames   uint32
	beginSearchAt uint32
}

// bitmapSliceAt overlays a []uint32 of length nwords on top of the raw memory
// at addr. The frame bitmap lives in physical memory reserved by Init, not on
// the Go heap, so the slice header has to be built by hand rather than via
// make (mirrors how the console and pool allocators overlay framebuffer and
// bitmap memory elsewhere in this tree).
func bitmapSliceAt(addr uintptr, nwords uint32) []uint32 {
	var sl []uint32
	hdr := (*reflect.SliceHeader)(unsafe.Pointer(&sl))
	hdr.Data = addr
	hdr.Len = int(nwords)
	hdr.Cap = int(nwords)
	return sl
}

// Init places the bitmap immediately after the kernel image (4-byte aligned),
// zeroes it, and marks as used every frame from physical 0 up through the
// last byte of the bitmap itself (invariant F2). kernelDataEnd is advanced
// past the bitmap so that later bootstrap steps keep allocating from the
// correct cursor.
func (a *bitmapAllocator) Init(totalRAM mem.Size, kernelDataEnd *uintptr) {
	a.nframes = uint32(totalRAM >> mem.PageShift)

	nwords := (a.nframes + bitsPerWord - 1) / bitsPerWord

	bitmapAddr := mem.Align4Up(*kernelDataEnd)
	mem.Memset(bitmapAddr, 0, mem.Size(nwords)*4)
	a.bitmap = bitmapSliceAt(bitmapAddr, nwords)

	*kernelDataEnd = bitmapAddr + uintptr(nwords)*4
	a.nusedFrames = 0

	kernelPages := mem.Size(*kernelDataEnd - kernelHighHalfBase).Pages()
	for i := uint32(0); i < kernelPages; i++ {
		a.setBit(i)
		a.nusedFrames++
	}

	a.beginSearchAt = i0(kernelPages)
}

// AllocFrames returns the base frame of a run of n contiguous free frames,
// where 1 <= n <= 32. It returns the zero Frame on failure (OOM or n > 32).
// The search never crosses a word boundary, so a run can only be found
// within a single bitmap word.
func (a *bitmapAllocator) AllocFrames(n uint32) Frame {
	if n < 1 || n > bitsPerWord {
		return 0
	}

	a.lock.Acquire()
	defer a.lock.Release()

	nwords := uint32(len(a.bitmap))
	for i := a.beginSearchAt; i < nwords; i++ {
		if a.bitmap[i] == 0xFFFFFFFF {
			if i == a.beginSearchAt {
				a.beginSearchAt++
			}
			continue
		}

		for j := uint32(0); j < bitsPerWord-n+1; j++ {
			mask := (uint32(1)<<n - 1) << j
			if a.bitmap[i]&mask == 0 {
				a.bitmap[i] |= mask
				a.nusedFrames += n
				return Frame(i*bitsPerWord + j)
			}
		}
	}

	return 0
}

// FreeFrames clears n bits starting at base. A double-free is silently
// tolerated: only bits that were actually set decrement nusedFrames.
func (a *bitmapAllocator) FreeFrames(base Frame, n uint32) {
	a.lock.Acquire()
	defer a.lock.Release()

	for x := uint32(0); x < n; x++ {
		bit := uint32(base) + x
		idx, ofs := bit/bitsPerWord, bit%bitsPerWord
		mask := uint32(1) << ofs
		if a.bitmap[idx]&mask != 0 {
			a.bitmap[idx] &^= mask
			a.nusedFrames--
		}
	}

	if baseWord := uint32(base) / bitsPerWord; baseWord < a.beginSearchAt {
		a.beginSearchAt = baseWord
	}
}

// Stats returns the total frame count and the number currently in use.
func (a *bitmapAllocator) Stats() (nframes, nused uint32) {
	return a.nframes, a.nusedFrames
}

func (a *bitmapAllocator) setBit(bit uint32) {
	a.bitmap[bit/bitsPerWord] |= uint32(1) << (bit % bitsPerWord)
}

// i0 returns the first bitmap word index that could contain a free bit once
// the first usedFrames bits have been marked used.
func i0(usedFrames uint32) uint32 {
	return usedFrames / bitsPerWord
}

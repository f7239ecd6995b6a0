package pmm

import (
	"github.com/macroscope-go/os/kernel"
	"github.com/macroscope-go/os/kernel/mem"
)

// Init sets up the frame allocator over the given amount of physical RAM.
// kernelDataEnd points at the first free byte after the kernel image; it is
// advanced past the bitmap that Init reserves for itself so that callers can
// keep placing further early structures at the correct cursor. Init never
// fails on its own; it returns an error to match the rest of this module's
// bootstrap sequence, which threads errors through every step.
func Init(totalRAM mem.Size, kernelDataEnd *uintptr) *kernel.Error {
	FrameAllocator.Init(totalRAM, kernelDataEnd)
	return nil
}

// AllocFrames reserves a run of n contiguous frames (1 <= n <= 32) and
// returns its base frame. It returns the zero Frame if no such run exists.
func AllocFrames(n uint32) Frame {
	return FrameAllocator.AllocFrames(n)
}

// FreeFrames releases a run of n frames previously returned by AllocFrames.
func FreeFrames(base Frame, n uint32) {
	FrameAllocator.FreeFrames(base, n)
}

// Stats reports the total frame count and the number currently reserved.
func Stats() (nframes, nused uint32) {
	return FrameAllocator.Stats()
}

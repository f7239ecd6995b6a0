package kmain

import (
	"github.com/macroscope-go/os/kernel"
	"github.com/macroscope-go/os/kernel/hal"
	"github.com/macroscope-go/os/kernel/hal/multiboot"
	"github.com/macroscope-go/os/kernel/mem"
	"github.com/macroscope-go/os/kernel/mem/pmm"
	"github.com/macroscope-go/os/kernel/mem/vmm"
)

var (
	errKmainReturned  = &kernel.Error{Module: "kmain", Message: "Kmain returned"}
	errNoBasicMemInfo = &kernel.Error{Module: "kmain", Message: "bootloader did not supply basic memory info"}
)

// Kmain is the only Go symbol that is visible (exported) from the rt0 initialization
// code. This function is invoked by the rt0 assembly code after setting up the GDT
// and setting up a a minimal g0 struct that allows Go code using the 4K stack
// allocated by the assembly code.
//
// The rt0 code passes the address of the multiboot info payload provided by the
// bootloader as well as the higher-half virtual address of the end of the kernel
// image and the virtual address of the page reserved as the kernel stack's
// guard page.
//
// Kmain is not expected to return. If it does, the rt0 code will halt the CPU.
//
//go:noinline
func Kmain(multibootInfoPtr, kernelEnd, stackGuardAddr uintptr) {
	multiboot.SetInfoPtr(multibootInfoPtr)

	hal.InitTerminal()
	hal.ActiveTerminal.Clear()

	upperKB, lowerKB, ok := multiboot.BasicMemory()
	if !ok {
		kernel.Panic(errNoBasicMemInfo)
	}
	totalRAM := mem.Size(upperKB+lowerKB) * 1024

	kernelDataEnd := kernelEnd

	var err *kernel.Error
	if err = pmm.Init(totalRAM, &kernelDataEnd); err != nil {
		kernel.Panic(err)
	} else if err = vmm.Bootstrap(kernelDataEnd, stackGuardAddr); err != nil {
		kernel.Panic(err)
	}

	// Use kernel.Panic instead of panic to prevent the compiler from
	// treating kernel.Panic as dead-code and eliminating it.
	kernel.Panic(errKmainReturned)
}

package irq

import "github.com/macroscope-go/os/kernel/kfmt/early"

// Regs contains a snapshot of the register values when an interrupt occurred.
type Regs struct {
	EAX uint32
	EBX uint32
	ECX uint32
	EDX uint32
	ESI uint32
	EDI uint32
	EBP uint32
}

// Print outputs a dump of the register values to the active console.
func (r *Regs) Print() {
	early.Printf("EAX = %8x EBX = %8x\n", r.EAX, r.EBX)
	early.Printf("ECX = %8x EDX = %8x\n", r.ECX, r.EDX)
	early.Printf("ESI = %8x EDI = %8x\n", r.ESI, r.EDI)
	early.Printf("EBP = %8x\n", r.EBP)
}

// Frame describes an exception frame that is automatically pushed by the CPU
// to the stack when an exception occurs.
type Frame struct {
	EIP    uint32
	CS     uint32
	EFlags uint32
}

// Print outputs a dump of the exception frame to the active console.
func (f *Frame) Print() {
	early.Printf("EIP = %8x CS  = %8x\n", f.EIP, f.CS)
	early.Printf("EFL = %8x\n", f.EFlags)
}

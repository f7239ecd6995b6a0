package irq

import (
	"bytes"
	"testing"
	"unsafe"

	"github.com/macroscope-go/os/kernel/driver/video/console"
	"github.com/macroscope-go/os/kernel/hal"
)

func TestRegsPrint(t *testing.T) {
	fb := mockTTY()
	regs := Regs{
		EAX: 1,
		EBX: 2,
		ECX: 3,
		EDX: 4,
		ESI: 5,
		EDI: 6,
		EBP: 7,
	}
	regs.Print()

	exp := "EAX = 00000001 EBX = 00000002\nECX = 00000003 EDX = 00000004\nESI = 00000005 EDI = 00000006\nEBP = 00000007"

	if got := readTTY(fb); got != exp {
		t.Fatalf("expected to get:\n%q\ngot:\n%q", exp, got)
	}
}

func TestFramePrint(t *testing.T) {
	fb := mockTTY()
	frame := Frame{
		EIP:    1,
		CS:     2,
		EFlags: 3,
	}
	frame.Print()

	exp := "EIP = 00000001 CS  = 00000002\nEFL = 00000003"

	if got := readTTY(fb); got != exp {
		t.Fatalf("expected to get:\n%q\ngot:\n%q", exp, got)
	}
}

func readTTY(fb []byte) string {
	var buf bytes.Buffer
	for i := 0; i < len(fb); i += 2 {
		ch := fb[i]
		if ch == 0 {
			if i+2 < len(fb) && fb[i+2] != 0 {
				buf.WriteByte('\n')
			}
			continue
		}

		buf.WriteByte(ch)
	}

	return buf.String()
}

func mockTTY() []byte {
	mockConsoleFb := make([]byte, 160*25)
	mockConsole := &console.Ega{}
	mockConsole.Init(80, 25, uintptr(unsafe.Pointer(&mockConsoleFb[0])))
	hal.ActiveTerminal.AttachTo(mockConsole)

	return mockConsoleFb
}

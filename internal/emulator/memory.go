package emulator

import (
	"encoding/binary"
	"fmt"

	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"

	"github.com/libanisette/anisette-go/internal/vmerr"
)

// MemRead copies size bytes starting at addr out of guest memory.
func (e *Emulator) MemRead(addr, size uint64) ([]byte, error) {
	return e.mu.MemRead(addr, size)
}

// MemWrite copies data into guest memory starting at addr.
func (e *Emulator) MemWrite(addr uint64, data []byte) error {
	return e.mu.MemWrite(addr, data)
}

// MemReadU64 reads a little-endian u64 from guest memory.
func (e *Emulator) MemReadU64(addr uint64) (uint64, error) {
	b, err := e.mu.MemRead(addr, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// MemWriteU64 writes a little-endian u64 to guest memory.
func (e *Emulator) MemWriteU64(addr, val uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], val)
	return e.mu.MemWrite(addr, b[:])
}

// MemReadU32 reads a little-endian u32 from guest memory.
func (e *Emulator) MemReadU32(addr uint64) (uint32, error) {
	b, err := e.mu.MemRead(addr, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// MemWriteU32 writes a little-endian u32 to guest memory.
func (e *Emulator) MemWriteU32(addr uint64, val uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], val)
	return e.mu.MemWrite(addr, b[:])
}

// maxCStringLen bounds how far ReadCString will scan for a NUL terminator
// before giving up, guarding against a guest pointer that is simply wrong.
const maxCStringLen = 4096

// ReadCString reads a NUL-terminated string starting at addr. Unlike a
// silently-truncating read, a string that runs past maxCStringLen without a
// terminator is reported as an error rather than returned partial.
func (e *Emulator) ReadCString(addr uint64) (string, error) {
	var buf []byte
	const chunk = 64
	for total := uint64(0); total < maxCStringLen; total += chunk {
		b, err := e.mu.MemRead(addr+total, chunk)
		if err != nil {
			return "", fmt.Errorf("read cstring at 0x%X: %w", addr, err)
		}
		for i, c := range b {
			if c == 0 {
				return string(append(buf, b[:i]...)), nil
			}
		}
		buf = append(buf, b...)
	}
	return "", vmerr.UnterminatedCString(addr)
}

// WriteCString writes s to addr followed by a NUL terminator.
func (e *Emulator) WriteCString(addr uint64, s string) error {
	data := append([]byte(s), 0)
	return e.mu.MemWrite(addr, data)
}

// X reads argument/result register Xn.
func (e *Emulator) X(n int) (uint64, error) {
	return e.mu.RegRead(uc.ARM64_REG_X0 + n)
}

// SetX writes argument/result register Xn.
func (e *Emulator) SetX(n int, val uint64) error {
	return e.mu.RegWrite(uc.ARM64_REG_X0+n, val)
}

// PC reads the program counter.
func (e *Emulator) PC() (uint64, error) {
	return e.mu.RegRead(uc.ARM64_REG_PC)
}

// SetPC writes the program counter.
func (e *Emulator) SetPC(val uint64) error {
	return e.mu.RegWrite(uc.ARM64_REG_PC, val)
}

// SP reads the stack pointer.
func (e *Emulator) SP() (uint64, error) {
	return e.mu.RegRead(uc.ARM64_REG_SP)
}

// SetSP writes the stack pointer.
func (e *Emulator) SetSP(val uint64) error {
	return e.mu.RegWrite(uc.ARM64_REG_SP, val)
}

// LR reads the link register.
func (e *Emulator) LR() (uint64, error) {
	return e.mu.RegRead(uc.ARM64_REG_LR)
}

// SetLR writes the link register.
func (e *Emulator) SetLR(val uint64) error {
	return e.mu.RegWrite(uc.ARM64_REG_LR, val)
}

// InvokeCdecl calls target with args placed in X0..X{len(args)-1}, LR set to
// the return sentinel, and SP reset to the top of the stack region, then
// runs the VM until it reaches the sentinel. It returns X0 as the result.
//
// Up to 29 arguments are supported (X0..X28); this is a deliberate extension
// past AAPCS64's 8-register convention since Apple's ADI entrypoints are
// invoked with many out-pointer parameters.
func (e *Emulator) InvokeCdecl(target uint64, args []uint64) (uint64, error) {
	if len(args) > len(argRegs) {
		return 0, vmerr.TooManyArguments(len(args))
	}
	for i, v := range args {
		if err := e.mu.RegWrite(argRegs[i], v); err != nil {
			return 0, fmt.Errorf("write arg %d: %w", i, err)
		}
	}
	if err := e.mu.RegWrite(uc.ARM64_REG_SP, StackAddress+StackSize); err != nil {
		return 0, fmt.Errorf("reset sp: %w", err)
	}
	if err := e.mu.RegWrite(uc.ARM64_REG_LR, ReturnAddress); err != nil {
		return 0, fmt.Errorf("set return sentinel: %w", err)
	}

	e.stopped = false
	e.stopError = nil
	if err := e.mu.Start(target, ReturnAddress); err != nil {
		return 0, fmt.Errorf("run guest code at 0x%X: %w", target, err)
	}
	if e.stopError != nil {
		return 0, e.stopError
	}

	return e.mu.RegRead(uc.ARM64_REG_X0)
}

// AllocData copies data into a freshly reserved region of the temp
// allocator and returns its guest address.
func (e *Emulator) AllocData(data []byte) (uint64, error) {
	addr, err := e.allocTemp(uint64(len(data)))
	if err != nil {
		return 0, err
	}
	if len(data) > 0 {
		if err := e.mu.MemWrite(addr, data); err != nil {
			return 0, fmt.Errorf("write alloc_data payload: %w", err)
		}
	}
	return addr, nil
}

// AllocTemporary reserves length bytes of zeroed scratch memory and returns
// its guest address, for out-parameters the guest writes into.
func (e *Emulator) AllocTemporary(length uint64) (uint64, error) {
	addr, err := e.allocTemp(length)
	if err != nil {
		return 0, err
	}
	zero := make([]byte, length)
	if length > 0 {
		if err := e.mu.MemWrite(addr, zero); err != nil {
			return 0, fmt.Errorf("zero alloc_temporary region: %w", err)
		}
	}
	return addr, nil
}

// allocTemp reserves length bytes from the temp allocator. The whole temp
// region is mapped once up front in mapMemory, so no per-allocation MemMap
// call is needed here.
func (e *Emulator) allocTemp(length uint64) (uint64, error) {
	return e.state.tempAlloc.Alloc(length)
}

// Malloc services the guest malloc() shim: a bump allocation out of the
// fixed malloc arena, with no extra alignment padding beyond page rounding.
func (e *Emulator) Malloc(size uint64) (uint64, error) {
	return e.state.mallocAlloc.Alloc(size)
}

package trace

import (
	"fmt"

	"golang.org/x/arch/arm64/arm64asm"
)

// Disassemble renders a 4-byte AArch64 instruction for diagnostic logging.
// A decode failure falls back to a raw .word directive instead of an error,
// since a trace line must never abort the caller over an unrecognized
// encoding (data, padding, or an instruction form arm64asm doesn't model).
func Disassemble(code []byte) string {
	if len(code) < 4 {
		return "???"
	}
	inst, err := arm64asm.Decode(code)
	if err != nil {
		word := uint32(code[0]) | uint32(code[1])<<8 | uint32(code[2])<<16 | uint32(code[3])<<24
		return fmt.Sprintf(".word 0x%08x", word)
	}
	return inst.String()
}

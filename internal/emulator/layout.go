package emulator

import uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"

// Guest address space layout. These addresses and sizes are a fixed contract
// observed by the ELF loader, the allocators, and every shim — they are not
// configurable per VM.
const (
	PageSize = 0x1000

	// ReturnAddress is the target of LR for every host->guest invocation.
	// Execution halts here; the address itself is never mapped executable
	// with anything meaningful, it exists purely as a stop condition.
	ReturnAddress = 0xDEAD_0000

	// StackAddress/StackSize back the guest stack. SP is reset to the top
	// of this region on every invocation.
	StackAddress = 0xF000_0000
	StackSize    = 0x10_0000 // 1 MiB

	// MallocAddress/MallocSize back the guest malloc shim.
	MallocAddress = 0x6000_0000
	MallocSize    = 0x100_0000 // 16 MiB

	// ImportAddress is the base of the import bank: N libraries, each given
	// a 16 MiB stride, the first page of which is filled with `ret` and
	// hooked for dispatch.
	ImportAddress      = 0xA000_0000
	ImportSize         = 0x1000     // mapped-and-ret-filled region per library
	ImportLibraryStride = 0x100_0000 // 16 MiB
	ImportLibraryCount  = 10

	// TempAllocAddress/TempAllocSize back AllocData/AllocTemporary.
	TempAllocAddress = 0x0000_0080_0000_0000
	TempAllocSize    = 0x1000_0000 // 256 MiB

	// LibAllocAddress/LibAllocSize partition per-library image reservations.
	LibAllocAddress    = 0x0010_0000
	LibAllocSize       = 0x9000_0000 // 2.25 GiB
	LibReservationSize = 0x1000_0000 // 256 MiB per library
)

// retAArch64 is the 4-byte little-endian encoding of the AArch64 `ret`
// instruction that fills every import-bank page.
var retAArch64 = [4]byte{0xC0, 0x03, 0x5F, 0xD6}

// argRegs is the ordered list of registers invoke_cdecl writes arguments
// into. This deliberately extends past AAPCS64's X0..X7 up to X28 because
// internal Apple entrypoints are invoked with many out-pointers; narrowing
// this list would break existing callers.
var argRegs = []int{
	uc.ARM64_REG_X0, uc.ARM64_REG_X1, uc.ARM64_REG_X2, uc.ARM64_REG_X3,
	uc.ARM64_REG_X4, uc.ARM64_REG_X5, uc.ARM64_REG_X6, uc.ARM64_REG_X7,
	uc.ARM64_REG_X8, uc.ARM64_REG_X9, uc.ARM64_REG_X10, uc.ARM64_REG_X11,
	uc.ARM64_REG_X12, uc.ARM64_REG_X13, uc.ARM64_REG_X14, uc.ARM64_REG_X15,
	uc.ARM64_REG_X16, uc.ARM64_REG_X17, uc.ARM64_REG_X18, uc.ARM64_REG_X19,
	uc.ARM64_REG_X20, uc.ARM64_REG_X21, uc.ARM64_REG_X22, uc.ARM64_REG_X23,
	uc.ARM64_REG_X24, uc.ARM64_REG_X25, uc.ARM64_REG_X26, uc.ARM64_REG_X27,
	uc.ARM64_REG_X28,
}

// POSIX open(2) flag bits used by the filesystem shims.
const (
	OWronly   = 0o1
	ORdwr     = 0o2
	OAccmode  = 0o3
	OCreat    = 0o100
	ONofollow = 0o100000
)

// ENOENT is the only errno value the shims ever produce.
const ENOENT = 2

package emulator

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/libanisette/anisette-go/internal/log"
)

// buildTestELF assembles a minimal AArch64 ET_DYN ELF image in memory with:
//   - one PT_LOAD segment covering the whole file (p_vaddr=p_offset=0, so a
//     symbol's ELF value equals its file offset)
//   - two dynamic symbols: "host_shim" (undefined, SHN_UNDEF) and
//     "exported_fn" (defined, pointing at a tiny mov+ret sequence)
//   - one .rela.dyn entry: an R_AARCH64_JUMP_SLOT relocation against
//     host_shim, targeting a GOT cell placed right after the code
//
// It exists purely to exercise LoadLibrary/applyRelocations/
// ResolveSymbolByName against real debug/elf parsing without depending on
// any binary fixture on disk.
func buildTestELF() []byte {
	const (
		movX0_7 = 0xD28000E0 // mov x0, #7
		retInsn = 0xD65F03C0 // ret
	)

	var buf bytes.Buffer
	buf.Write(make([]byte, 64)) // e_ident + rest of Ehdr, patched below
	buf.Write(make([]byte, 56)) // Phdr, patched below

	codeOff := uint64(buf.Len())
	var code [8]byte
	binary.LittleEndian.PutUint32(code[0:4], movX0_7)
	binary.LittleEndian.PutUint32(code[4:8], retInsn)
	buf.Write(code[:])

	gotOff := uint64(buf.Len())
	buf.Write(make([]byte, 8))

	dynsymOff := uint64(buf.Len())
	// Entry 0: mandatory null symbol.
	buf.Write(make([]byte, 24))
	// Entry 1: "host_shim", undefined.
	writeSym(&buf, 1, 0x12, 0, 0, 0)
	// Entry 2: "exported_fn", defined at codeOff.
	writeSym(&buf, 11, 0x12, 1, codeOff, 8)

	dynstrOff := uint64(buf.Len())
	dynstr := []byte("\x00host_shim\x00exported_fn\x00")
	buf.Write(dynstr)

	relaOff := uint64(buf.Len())
	var rela [24]byte
	binary.LittleEndian.PutUint64(rela[0:8], gotOff)                 // r_offset
	binary.LittleEndian.PutUint64(rela[8:16], (uint64(1)<<32)|1026) // r_info: sym 1, R_AARCH64_JUMP_SLOT
	binary.LittleEndian.PutUint64(rela[16:24], 0)                   // r_addend
	buf.Write(rela[:])

	shstrOff := uint64(buf.Len())
	shstrtab := []byte("\x00.dynsym\x00.dynstr\x00.rela.dyn\x00.shstrtab\x00")
	buf.Write(shstrtab)

	shoff := uint64(buf.Len())
	writeShdr(&buf, 0, 0, 0, 0, 0, 0, 0, 0, 0)                                             // NULL
	writeShdr(&buf, 1, 11, dynsymOff, uint64(3*24), 2, 1, 8, 24, 0)                          // .dynsym (SHT_DYNSYM)
	writeShdr(&buf, 9, 3, dynstrOff, uint64(len(dynstr)), 0, 0, 1, 0, 0)                    // .dynstr (SHT_STRTAB)
	writeShdr(&buf, 17, 4, relaOff, 24, 1, 0, 8, 24, 0)                                     // .rela.dyn (SHT_RELA)
	writeShdr(&buf, 27, 3, shstrOff, uint64(len(shstrtab)), 0, 0, 1, 0, 0)                   // .shstrtab (SHT_STRTAB)

	out := buf.Bytes()
	fileLen := uint64(len(out))

	// Patch Ehdr.
	copy(out[0:16], []byte{0x7f, 'E', 'L', 'F', 2, 1, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0})
	binary.LittleEndian.PutUint16(out[16:18], 3)   // e_type = ET_DYN
	binary.LittleEndian.PutUint16(out[18:20], 183) // e_machine = EM_AARCH64
	binary.LittleEndian.PutUint32(out[20:24], 1)   // e_version
	binary.LittleEndian.PutUint64(out[24:32], 0)   // e_entry
	binary.LittleEndian.PutUint64(out[32:40], 64)  // e_phoff
	binary.LittleEndian.PutUint64(out[40:48], shoff)
	binary.LittleEndian.PutUint32(out[48:52], 0) // e_flags
	binary.LittleEndian.PutUint16(out[52:54], 64) // e_ehsize
	binary.LittleEndian.PutUint16(out[54:56], 56) // e_phentsize
	binary.LittleEndian.PutUint16(out[56:58], 1)  // e_phnum
	binary.LittleEndian.PutUint16(out[58:60], 64) // e_shentsize
	binary.LittleEndian.PutUint16(out[60:62], 5)  // e_shnum
	binary.LittleEndian.PutUint16(out[62:64], 4)  // e_shstrndx

	// Patch Phdr (single PT_LOAD covering the whole file).
	phdr := out[64:120]
	binary.LittleEndian.PutUint32(phdr[0:4], 1)   // p_type = PT_LOAD
	binary.LittleEndian.PutUint32(phdr[4:8], 7)   // p_flags = R|W|X
	binary.LittleEndian.PutUint64(phdr[8:16], 0)  // p_offset
	binary.LittleEndian.PutUint64(phdr[16:24], 0) // p_vaddr
	binary.LittleEndian.PutUint64(phdr[24:32], 0) // p_paddr
	binary.LittleEndian.PutUint64(phdr[32:40], fileLen)
	binary.LittleEndian.PutUint64(phdr[40:48], fileLen)
	binary.LittleEndian.PutUint64(phdr[48:56], 0x1000) // p_align

	return out
}

func writeSym(buf *bytes.Buffer, nameOff uint32, info, shndx uint16, value, size uint64) {
	var sym [24]byte
	binary.LittleEndian.PutUint32(sym[0:4], nameOff)
	sym[4] = byte(info)
	sym[5] = 0
	binary.LittleEndian.PutUint16(sym[6:8], shndx)
	binary.LittleEndian.PutUint64(sym[8:16], value)
	binary.LittleEndian.PutUint64(sym[16:24], size)
	buf.Write(sym[:])
}

func writeShdr(buf *bytes.Buffer, name uint32, typ uint32, offset, size uint64, link, info uint32, align, entsize uint64, flags uint64) {
	var sh [64]byte
	binary.LittleEndian.PutUint32(sh[0:4], name)
	binary.LittleEndian.PutUint32(sh[4:8], typ)
	binary.LittleEndian.PutUint64(sh[8:16], flags)
	binary.LittleEndian.PutUint64(sh[16:24], 0) // sh_addr
	binary.LittleEndian.PutUint64(sh[24:32], offset)
	binary.LittleEndian.PutUint64(sh[32:40], size)
	binary.LittleEndian.PutUint32(sh[40:44], link)
	binary.LittleEndian.PutUint32(sh[44:48], info)
	binary.LittleEndian.PutUint64(sh[48:56], align)
	binary.LittleEndian.PutUint64(sh[56:64], entsize)
	buf.Write(sh[:])
}

func TestLoadLibraryResolvesDefinedAndImportSymbols(t *testing.T) {
	e, err := New(log.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Close()

	e.RegisterLibraryBlob("libtest.so", buildTestELF())

	ordinal, err := e.LoadLibrary("libtest.so")
	if err != nil {
		t.Fatalf("LoadLibrary: %v", err)
	}

	exportedAddr, err := e.ResolveSymbolByName(ordinal, "exported_fn")
	if err != nil {
		t.Fatalf("resolve exported_fn: %v", err)
	}
	if exportedAddr == 0 {
		t.Fatal("exported_fn resolved to 0")
	}

	stubAddr, err := e.ResolveSymbolByName(ordinal, "host_shim")
	if err != nil {
		t.Fatalf("resolve host_shim: %v", err)
	}
	if stubAddr < ImportAddress || stubAddr >= ImportAddress+ImportLibraryStride {
		t.Fatalf("host_shim address 0x%X not within import bank slot 0", stubAddr)
	}

	// LoadLibrary must be idempotent.
	again, err := e.LoadLibrary("libtest.so")
	if err != nil || again != ordinal {
		t.Fatalf("second LoadLibrary = (%d, %v), want (%d, nil)", again, err, ordinal)
	}
}

func TestLoadLibraryUnregisteredName(t *testing.T) {
	e, err := New(log.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Close()

	if _, err := e.LoadLibrary("nope.so"); err == nil {
		t.Fatal("expected error loading unregistered library")
	}
}

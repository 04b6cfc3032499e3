package emulator

import (
	"debug/elf"
	"encoding/binary"
	"fmt"

	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"
	"go.uber.org/zap"

	"github.com/libanisette/anisette-go/internal/allocator"
	"github.com/libanisette/anisette-go/internal/vmerr"
)

// AArch64 RELA relocation type constants, taken directly from the psABI.
const (
	rAarch64Abs64    = 257
	rAarch64GlobDat  = 1025
	rAarch64JumpSlot = 1026
	rAarch64Relative = 1027
)

// LoadLibrary maps the ELF image previously registered under name via
// RegisterLibraryBlob, builds its ordered dynamic symbol table, and applies
// its relocations. Calling it twice for the same name is idempotent: the
// existing ordinal is returned without re-mapping anything.
func (e *Emulator) LoadLibrary(name string) (int, error) {
	if ordinal, ok := e.state.libraryIndex[name]; ok {
		return ordinal, nil
	}

	data, ok := e.state.blobs[name]
	if !ok {
		return 0, vmerr.LibraryNotRegistered(name)
	}

	ordinal := len(e.state.libraries)
	if ordinal >= ImportLibraryCount {
		return 0, fmt.Errorf("load %s: import bank exhausted (max %d libraries)", name, ImportLibraryCount)
	}
	importBase := ImportAddress + uint64(ordinal)*ImportLibraryStride

	f, err := elf.NewFile(newByteReaderAt(data))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, err)
	}
	defer f.Close()

	if f.Machine != elf.EM_AARCH64 {
		return 0, fmt.Errorf("%s: expected EM_AARCH64, got %v", name, f.Machine)
	}

	base, err := e.state.libAlloc.Alloc(LibReservationSize)
	if err != nil {
		return 0, fmt.Errorf("reserve address space for %s: %w", name, err)
	}

	lib := newLoadedLibrary(name, base)

	dynSyms, _ := f.DynamicSymbols()
	for _, sym := range dynSyms {
		entry := SymbolEntry{Name: sym.Name}
		if sym.Section != elf.SHN_UNDEF {
			entry.Address = base + sym.Value
			entry.Defined = true
		} else {
			idx := len(lib.Symbols)
			if idx >= int(ImportSize/4) {
				return 0, fmt.Errorf("load %s: too many undefined symbols for one import page", name)
			}
			entry.Address = importBase + uint64(idx)*4
			entry.Defined = false
		}
		lib.addSymbol(entry)
	}

	if err := e.mapSegments(f, base, data); err != nil {
		return 0, fmt.Errorf("map segments of %s: %w", name, err)
	}

	if err := e.applyRelocations(f, base, lib); err != nil {
		return 0, fmt.Errorf("relocate %s: %w", name, err)
	}

	e.state.libraries = append(e.state.libraries, lib)
	e.state.libraryIndex[name] = ordinal
	return ordinal, nil
}

func (e *Emulator) mapSegments(f *elf.File, base uint64, data []byte) error {
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			e.log.Debug("ignoring program header", zap.String("type", prog.Type.String()))
			continue
		}
		if prog.Memsz == 0 {
			continue
		}
		if prog.Off+prog.Filesz > uint64(len(data)) {
			return vmerr.InvalidElfRange(prog.Off, prog.Filesz)
		}

		vaddr := base + prog.Vaddr
		alignedAddr := allocator.AlignDown(vaddr, PageSize)
		alignedEnd := allocator.AlignUp(vaddr+prog.Memsz, PageSize)

		// Pages that are already mapped (the library region is mapped in New,
		// and neighbouring segments can share a page) are not an error.
		if err := e.mu.MemMap(alignedAddr, alignedEnd-alignedAddr); err != nil && err != uc.UcError(uc.ERR_MAP) {
			return fmt.Errorf("map segment at 0x%X: %w", alignedAddr, err)
		}

		buf := make([]byte, prog.Memsz)
		copy(buf, data[prog.Off:prog.Off+prog.Filesz])
		if err := e.mu.MemWrite(vaddr, buf); err != nil {
			return fmt.Errorf("write segment at 0x%X: %w", vaddr, err)
		}
	}
	return nil
}

// applyRelocations rewrites GOT/data relocations in place. Symbols are
// addressed by RELA symbol index: index i (i >= 1) names lib.Symbols[i-1],
// because lib.Symbols follows f.DynamicSymbols(), which omits the null
// entry 0 of the ELF symbol table.
func (e *Emulator) applyRelocations(f *elf.File, base uint64, lib *LoadedLibrary) error {
	for _, sec := range f.Sections {
		if sec.Type != elf.SHT_RELA {
			continue
		}
		data, err := sec.Data()
		if err != nil {
			continue
		}
		const entrySize = 24
		for i := 0; i+entrySize <= len(data); i += entrySize {
			rOffset := binary.LittleEndian.Uint64(data[i:])
			rInfo := binary.LittleEndian.Uint64(data[i+8:])
			rAddend := int64(binary.LittleEndian.Uint64(data[i+16:]))

			relType := uint32(rInfo & 0xFFFFFFFF)
			symIdx := int(rInfo >> 32)
			target := base + rOffset

			var resolved uint64
			switch relType {
			case 0:
				continue // explicit no-op relocation type
			case rAarch64Relative:
				resolved = uint64(int64(base) + rAddend)
			case rAarch64GlobDat, rAarch64JumpSlot:
				if symIdx <= 0 || symIdx > len(lib.Symbols) {
					return vmerr.SymbolIndexOutOfRange(lib.Name, symIdx)
				}
				resolved = lib.Symbols[symIdx-1].Address
			case rAarch64Abs64:
				if symIdx <= 0 || symIdx > len(lib.Symbols) {
					return vmerr.SymbolIndexOutOfRange(lib.Name, symIdx)
				}
				resolved = uint64(int64(lib.Symbols[symIdx-1].Address) + rAddend)
			default:
				return vmerr.UnsupportedRelocation(relType)
			}

			var buf [8]byte
			binary.LittleEndian.PutUint64(buf[:], resolved)
			if err := e.mu.MemWrite(target, buf[:]); err != nil {
				return fmt.Errorf("write relocation at 0x%X: %w", target, err)
			}
		}
	}
	return nil
}

// ResolveSymbolByName returns the guest address of name within the library
// identified by ordinal, whether it is defined in that library's own code or
// still points at its import-bank stub slot awaiting a host shim.
func (e *Emulator) ResolveSymbolByName(ordinal int, name string) (uint64, error) {
	if ordinal < 0 || ordinal >= len(e.state.libraries) {
		return 0, vmerr.LibraryNotLoaded(ordinal)
	}
	lib := e.state.libraries[ordinal]
	idx, ok := lib.indexOf(name)
	if !ok {
		return 0, vmerr.SymbolNotFound(lib.Name, name)
	}
	return lib.Symbols[idx].Address, nil
}

// LibraryName returns the registered name for ordinal, for diagnostics.
func (e *Emulator) LibraryName(ordinal int) (string, error) {
	if ordinal < 0 || ordinal >= len(e.state.libraries) {
		return "", vmerr.LibraryNotLoaded(ordinal)
	}
	return e.state.libraries[ordinal].Name, nil
}

// LibrarySymbols returns the dynamic symbol table of the library at
// ordinal, in the same order as its ELF's own table. Used by diagnostic
// tooling (cmd/anisette's info subcommand); the core never needs it.
func (e *Emulator) LibrarySymbols(ordinal int) ([]SymbolEntry, error) {
	if ordinal < 0 || ordinal >= len(e.state.libraries) {
		return nil, vmerr.LibraryNotLoaded(ordinal)
	}
	return e.state.libraries[ordinal].Symbols, nil
}

// byteReaderAt adapts an in-memory []byte to io.ReaderAt for debug/elf.
type byteReaderAt struct{ b []byte }

func newByteReaderAt(b []byte) *byteReaderAt { return &byteReaderAt{b: b} }

func (r *byteReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(r.b)) {
		return 0, fmt.Errorf("read at %d: out of range", off)
	}
	n := copy(p, r.b[off:])
	if n < len(p) {
		return n, fmt.Errorf("read at %d: short read", off)
	}
	return n, nil
}

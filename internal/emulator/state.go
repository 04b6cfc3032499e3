package emulator

import (
	"os"

	"github.com/libanisette/anisette-go/internal/allocator"
)

// SymbolEntry is one entry in a loaded library's ordered dynamic symbol
// table. Index alignment with the ELF's own symbol table is load-bearing:
// relocations address symbols by index, and the import-bank dispatcher
// recovers a symbol purely from (library ordinal, symbol index) arithmetic
// on the faulting PC.
type SymbolEntry struct {
	Name    string
	Address uint64
	Defined bool
}

// LoadedLibrary is one ELF image mapped into the guest address space.
type LoadedLibrary struct {
	Name    string
	Base    uint64
	Symbols []SymbolEntry
	byName  map[string]int
}

func newLoadedLibrary(name string, base uint64) *LoadedLibrary {
	return &LoadedLibrary{Name: name, Base: base, byName: make(map[string]int)}
}

func (l *LoadedLibrary) addSymbol(entry SymbolEntry) int {
	idx := len(l.Symbols)
	l.Symbols = append(l.Symbols, entry)
	if entry.Name != "" {
		if _, exists := l.byName[entry.Name]; !exists {
			l.byName[entry.Name] = idx
		}
	}
	return idx
}

func (l *LoadedLibrary) indexOf(name string) (int, bool) {
	idx, ok := l.byName[name]
	return idx, ok
}

// runtimeState holds everything about a VM session beyond the Unicorn
// handle itself: allocators, the loaded-library table, open files, and the
// lazily-allocated errno cell.
type runtimeState struct {
	mallocAlloc *allocator.Allocator
	tempAlloc   *allocator.Allocator
	libAlloc    *allocator.Allocator

	libraries    []*LoadedLibrary
	libraryIndex map[string]int // name -> ordinal, for idempotent re-loads
	blobs        map[string][]byte

	files []*os.File

	errnoAddr uint64

	libraryRoot string
}

func newRuntimeState() *runtimeState {
	return &runtimeState{
		libraryIndex: make(map[string]int),
		blobs:        make(map[string][]byte),
	}
}

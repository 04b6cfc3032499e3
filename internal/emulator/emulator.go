// Package emulator runs AArch64 ELF shared libraries inside an in-process
// Unicorn CPU emulator, dispatching their undefined imports to Go shims
// registered by internal/stubs/*.
package emulator

import (
	"fmt"
	"strings"

	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"
	"go.uber.org/zap"

	"github.com/libanisette/anisette-go/internal/allocator"
	"github.com/libanisette/anisette-go/internal/log"
	"github.com/libanisette/anisette-go/internal/trace"
	"github.com/libanisette/anisette-go/internal/vmerr"
)

// ShimFunc implements one imported symbol. It reads arguments from X0..Xn,
// performs whatever host-side effect the symbol requires, and sets X0 to the
// return value. It must never touch PC: the import page it was dispatched
// from is a real `ret` instruction, and Unicorn executes it immediately
// after the hook returns, which is what sends control back to the guest's
// caller.
type ShimFunc func(e *Emulator) error

var shimRegistry = make(map[string]ShimFunc)

// RegisterShim makes fn available to dispatchImportStub under name. Called
// from the init() of internal/stubs/{libc,dl,pthread} so that importing
// internal/stubs/all is sufficient to populate the full table.
func RegisterShim(name string, fn ShimFunc) {
	shimRegistry[name] = fn
}

// Emulator owns one Unicorn VM instance plus the runtime state (allocators,
// loaded libraries, open files) that its shims operate against.
type Emulator struct {
	mu    uc.Unicorn
	state *runtimeState

	log *log.Logger

	stopped   bool
	stopError error
}

// New constructs a VM with its fixed memory layout mapped: the return
// sentinel page, the malloc arena, the stack, the import bank (ret-filled
// and dispatch-hooked), the temp allocator region, and the per-library
// allocator region.
func New(logger *log.Logger) (*Emulator, error) {
	mu, err := uc.NewUnicorn(uc.ARCH_ARM64, uc.MODE_ARM)
	if err != nil {
		return nil, fmt.Errorf("create unicorn instance: %w", err)
	}

	if logger == nil {
		logger = log.NewNop()
	}

	e := &Emulator{
		mu:    mu,
		state: newRuntimeState(),
		log:   logger,
	}

	if err := e.mapMemory(); err != nil {
		return nil, err
	}
	if err := e.setupHooks(); err != nil {
		return nil, err
	}

	return e, nil
}

func (e *Emulator) mapMemory() error {
	regions := []struct {
		name string
		base uint64
		size uint64
	}{
		{"return-sentinel", ReturnAddress, PageSize},
		{"malloc", MallocAddress, MallocSize},
		{"stack", StackAddress, StackSize},
		{"temp", TempAllocAddress, TempAllocSize},
		{"library", LibAllocAddress, LibAllocSize},
	}
	for _, r := range regions {
		if err := e.mu.MemMap(r.base, r.size); err != nil {
			return fmt.Errorf("map %s region at 0x%X: %w", r.name, r.base, err)
		}
	}

	if err := e.mu.RegWrite(uc.ARM64_REG_SP, StackAddress+StackSize); err != nil {
		return fmt.Errorf("init sp: %w", err)
	}

	retPage := make([]byte, ImportSize)
	for i := 0; i+4 <= len(retPage); i += 4 {
		copy(retPage[i:i+4], retAArch64[:])
	}
	for lib := 0; lib < ImportLibraryCount; lib++ {
		base := ImportAddress + uint64(lib)*ImportLibraryStride
		if err := e.mu.MemMap(base, ImportSize); err != nil {
			return fmt.Errorf("map import bank %d at 0x%X: %w", lib, base, err)
		}
		if err := e.mu.MemWrite(base, retPage); err != nil {
			return fmt.Errorf("fill import bank %d: %w", lib, err)
		}
	}

	e.state.mallocAlloc = allocator.New(MallocAddress, MallocSize)
	e.state.tempAlloc = allocator.New(TempAllocAddress, TempAllocSize)
	e.state.libAlloc = allocator.New(LibAllocAddress, LibAllocSize)

	return nil
}

func (e *Emulator) setupHooks() error {
	bankEnd := ImportAddress + uint64(ImportLibraryCount)*ImportLibraryStride - 1
	_, err := e.mu.HookAdd(uc.HOOK_CODE, func(mu uc.Unicorn, addr uint64, size uint32) {
		if e.stopped {
			e.mu.Stop()
			return
		}
		if err := e.dispatchImportStub(addr); err != nil {
			e.stopError = err
			e.stopped = true
			e.mu.Stop()
		}
	}, ImportAddress, bankEnd)
	if err != nil {
		return fmt.Errorf("install import dispatch hook: %w", err)
	}
	return nil
}

// dispatchImportStub recovers (library ordinal, symbol index) from the
// faulting PC, looks up the resolved symbol name in that library's symbol
// table, and invokes the shim registered for it. An import with no
// registered shim is a fatal error: there is no silent fallback.
func (e *Emulator) dispatchImportStub(pc uint64) error {
	if pc < ImportAddress {
		return vmerr.InvalidImportAddress(pc)
	}
	offset := pc - ImportAddress
	ordinal := int(offset / ImportLibraryStride)
	withinLib := offset % ImportLibraryStride
	symbolIndex := int(withinLib / 4)

	if ordinal < 0 || ordinal >= len(e.state.libraries) {
		return vmerr.LibraryNotLoaded(ordinal)
	}
	lib := e.state.libraries[ordinal]
	if symbolIndex < 0 || symbolIndex >= len(lib.Symbols) {
		return vmerr.SymbolIndexOutOfRange(lib.Name, symbolIndex)
	}
	name := lib.Symbols[symbolIndex].Name

	shim, ok := shimRegistry[name]
	if !ok {
		return vmerr.UnhandledImport(name)
	}

	e.log.Shim("import", name, log.Addr(pc))
	if err := shim(e); err != nil {
		e.log.Warn("shim failed", log.Addr(pc), zap.String("symbol", name), zap.String("insn", e.disassembleFault(pc)), zap.Error(err))
		return err
	}
	return nil
}

// disassembleFault renders the instruction at addr for the diagnostic log
// line emitted when a shim call fails. A read failure yields "???" rather
// than compounding the original error.
func (e *Emulator) disassembleFault(addr uint64) string {
	code, err := e.MemRead(addr, 4)
	if err != nil {
		return "???"
	}
	return trace.Disassemble(code)
}

// Stop requests that the running VM halt after the current hook returns.
func (e *Emulator) Stop() error {
	e.stopped = true
	return e.mu.Stop()
}

// Close releases the underlying Unicorn instance.
func (e *Emulator) Close() error {
	return e.mu.Close()
}

// MapRegion maps size bytes at addr with full read/write/execute
// permissions, matching every mapping call this package makes elsewhere.
func (e *Emulator) MapRegion(addr, size uint64) error {
	return e.mu.MemMap(addr, size)
}

// RegisterLibraryBlob makes an ELF image available to LoadLibrary/dlopen
// under name (its basename, e.g. "libCoreADI.so").
func (e *Emulator) RegisterLibraryBlob(name string, data []byte) {
	e.state.blobs[name] = data
}

// SetLibraryRoot records a filesystem path the provisioning layer may
// consult when a shim needs to locate on-disk library dependencies. It is
// normalized so that runs of slashes collapse to one and no trailing slash
// remains; a leading "./" is kept.
func (e *Emulator) SetLibraryRoot(path string) {
	for strings.Contains(path, "//") {
		path = strings.ReplaceAll(path, "//", "/")
	}
	for len(path) > 1 && path[len(path)-1] == '/' {
		path = path[:len(path)-1]
	}
	e.state.libraryRoot = path
}

// LibraryRoot returns the path set by SetLibraryRoot, or "" if unset.
func (e *Emulator) LibraryRoot() string {
	return e.state.libraryRoot
}

// Log returns the logger shims should report their activity through.
func (e *Emulator) Log() *log.Logger {
	return e.log
}

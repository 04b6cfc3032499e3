// Package dl implements the dlopen/dlsym/dlclose shims that let the guest
// libraries load each other and resolve symbols across library boundaries
// at runtime, the same way Android's bionic dynamic linker does.
package dl

import (
	"path"

	"github.com/libanisette/anisette-go/internal/emulator"
	"github.com/libanisette/anisette-go/internal/vmerr"
)

func init() {
	emulator.RegisterShim("dlopen", stubDlopen)
	emulator.RegisterShim("dlsym", stubDlsym)
	emulator.RegisterShim("dlclose", stubDlclose)
}

// stubDlopen loads the named library if it isn't already loaded and returns
// a handle. Handles are ordinal+1 so that 0 always means "invalid handle",
// matching the host dlopen failure convention.
func stubDlopen(e *emulator.Emulator) error {
	pathAddr, err := e.X(0)
	if err != nil {
		return err
	}
	name, err := e.ReadCString(pathAddr)
	if err != nil {
		return err
	}
	base := path.Base(name)

	ordinal, loadErr := e.LoadLibrary(base)
	if loadErr != nil {
		e.Log().Shim("dl", "dlopen")
		return e.SetX(0, 0)
	}
	e.Log().Shim("dl", "dlopen")
	return e.SetX(0, uint64(ordinal+1))
}

func stubDlsym(e *emulator.Emulator) error {
	handle, err := e.X(0)
	if err != nil {
		return err
	}
	nameAddr, err := e.X(1)
	if err != nil {
		return err
	}
	name, err := e.ReadCString(nameAddr)
	if err != nil {
		return err
	}
	if handle == 0 {
		return vmerr.InvalidDlopenHandle(handle)
	}
	ordinal := int(handle - 1)

	addr, resolveErr := e.ResolveSymbolByName(ordinal, name)
	if resolveErr != nil {
		e.Log().Shim("dl", "dlsym")
		return e.SetX(0, 0)
	}
	e.Log().Shim("dl", "dlsym")
	return e.SetX(0, addr)
}

// stubDlclose is a no-op: loaded libraries stay resident for the lifetime
// of the emulator.
func stubDlclose(e *emulator.Emulator) error {
	e.Log().Shim("dl", "dlclose")
	return e.SetX(0, 0)
}

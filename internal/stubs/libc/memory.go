// Package libc implements the host-side shims for the handful of libc
// entrypoints the guest libraries actually call.
package libc

import (
	"github.com/libanisette/anisette-go/internal/emulator"
)

func init() {
	emulator.RegisterShim("malloc", stubMalloc)
	emulator.RegisterShim("free", stubFree)
}

// stubMalloc bumps the malloc arena with no extra alignment padding beyond
// the allocator's own page rounding.
func stubMalloc(e *emulator.Emulator) error {
	size, err := e.X(0)
	if err != nil {
		return err
	}
	ptr, err := e.Malloc(size)
	if err != nil {
		return err
	}
	e.Log().Shim("libc", "malloc")
	return e.SetX(0, ptr)
}

// stubFree is a no-op: the malloc arena never reclaims space.
func stubFree(e *emulator.Emulator) error {
	e.Log().Shim("libc", "free")
	return e.SetX(0, 0)
}

// Package all imports every shim package so their init() functions register
// with the emulator's shim registry. Import this package purely for its
// side effects before constructing an Emulator.
//
// Example:
//
//	import _ "github.com/libanisette/anisette-go/internal/stubs/all"
package all

import (
	_ "github.com/libanisette/anisette-go/internal/stubs/dl"
	_ "github.com/libanisette/anisette-go/internal/stubs/libc"
	_ "github.com/libanisette/anisette-go/internal/stubs/pthread"
)

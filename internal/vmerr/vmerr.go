// Package vmerr defines the error taxonomy surfaced by the emulator, ELF
// loader, and ADI façade. Each constructor wraps a distinguishable sentinel
// so callers can branch with errors.Is instead of matching strings.
package vmerr

import (
	"errors"
	"fmt"
)

var (
	ErrAllocatorOOM           = errors.New("allocator out of memory")
	ErrLibraryNotRegistered   = errors.New("library not registered")
	ErrLibraryNotLoaded       = errors.New("library not loaded")
	ErrSymbolNotFound         = errors.New("symbol not found")
	ErrSymbolIndexOutOfRange  = errors.New("symbol index out of range")
	ErrUnsupportedRelocation  = errors.New("unsupported relocation type")
	ErrInvalidElfRange        = errors.New("invalid ELF file range")
	ErrUnhandledImport        = errors.New("unhandled import")
	ErrInvalidImportAddress   = errors.New("invalid import address")
	ErrInvalidDlopenHandle    = errors.New("invalid dlopen handle")
	ErrInvalidFileDescriptor  = errors.New("invalid file descriptor")
	ErrTooManyArguments       = errors.New("too many cdecl arguments")
	ErrUnterminatedCString    = errors.New("unterminated C string")
	ErrEmptyPath              = errors.New("empty path")
	ErrIntegerOverflow        = errors.New("integer conversion overflow")
)

// AllocatorOOM reports an allocator exhausted its backing region.
func AllocatorOOM(base, size, request uint64) error {
	return fmt.Errorf("%w: base=0x%X size=0x%X request=0x%X", ErrAllocatorOOM, base, size, request)
}

// LibraryNotRegistered reports a dlopen/load by a name with no registered blob.
func LibraryNotRegistered(name string) error {
	return fmt.Errorf("%w: %s", ErrLibraryNotRegistered, name)
}

// LibraryNotLoaded reports a reference to a library ordinal that was never loaded.
func LibraryNotLoaded(ordinal int) error {
	return fmt.Errorf("%w: %d", ErrLibraryNotLoaded, ordinal)
}

// SymbolNotFound reports a name-index miss within a loaded library.
func SymbolNotFound(library, symbol string) error {
	return fmt.Errorf("%w: %s in %s", ErrSymbolNotFound, symbol, library)
}

// SymbolIndexOutOfRange reports a stub-dispatch symbol index beyond a library's table.
func SymbolIndexOutOfRange(library string, index int) error {
	return fmt.Errorf("%w: lib=%s index=%d", ErrSymbolIndexOutOfRange, library, index)
}

// UnsupportedRelocation reports a relocation type with no defined handling.
func UnsupportedRelocation(relType uint32) error {
	return fmt.Errorf("%w: %d", ErrUnsupportedRelocation, relType)
}

// InvalidElfRange reports a segment or relocation referencing bytes outside
// the bounds of the backing ELF file.
func InvalidElfRange(offset, length uint64) error {
	return fmt.Errorf("%w: offset=0x%X length=0x%X", ErrInvalidElfRange, offset, length)
}

// EmptyPath reports a filesystem shim invoked with a zero-length guest path.
func EmptyPath() error {
	return ErrEmptyPath
}

// InvalidImportAddress reports a PC below the import bank's base address.
func InvalidImportAddress(address uint64) error {
	return fmt.Errorf("%w: 0x%X", ErrInvalidImportAddress, address)
}

// InvalidDlopenHandle reports a zero or otherwise invalid dlopen handle.
func InvalidDlopenHandle(handle uint64) error {
	return fmt.Errorf("%w: %d", ErrInvalidDlopenHandle, handle)
}

// InvalidFileDescriptor reports an fd with no live entry in the file table.
func InvalidFileDescriptor(fd uint64) error {
	return fmt.Errorf("%w: %d", ErrInvalidFileDescriptor, fd)
}

// TooManyArguments reports an invoke_cdecl call exceeding the 29-register budget.
func TooManyArguments(count int) error {
	return fmt.Errorf("%w: %d (max 29)", ErrTooManyArguments, count)
}

// UnterminatedCString reports a guest string that ran past max_len with no NUL.
func UnterminatedCString(address uint64) error {
	return fmt.Errorf("%w: at 0x%X", ErrUnterminatedCString, address)
}

// UnhandledImport reports a guest call to a symbol with no registered shim.
func UnhandledImport(name string) error {
	return fmt.Errorf("%w: %s", ErrUnhandledImport, name)
}

// IntegerOverflow reports a u64 value that cannot be represented as a host int.
func IntegerOverflow(value uint64) error {
	return fmt.Errorf("%w: value=%d", ErrIntegerOverflow, value)
}

// AdiCallFailed reports a non-zero return code from an Apple ADI entrypoint.
type AdiCallFailed struct {
	Name string
	Code int32
}

func (e *AdiCallFailed) Error() string {
	return fmt.Sprintf("adi call failed: %s returned %d", e.Name, e.Code)
}

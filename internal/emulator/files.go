package emulator

import (
	"os"

	"github.com/libanisette/anisette-go/internal/vmerr"
)

// PushFile records f in the open-file table and returns its file
// descriptor. Descriptors are never reused within a session; closed slots
// stay nil rather than being compacted.
func (e *Emulator) PushFile(f *os.File) uint64 {
	e.state.files = append(e.state.files, f)
	return uint64(len(e.state.files) - 1)
}

// FileAt returns the *os.File at fd, or an error if fd has no live entry.
func (e *Emulator) FileAt(fd uint64) (*os.File, error) {
	if fd >= uint64(len(e.state.files)) || e.state.files[fd] == nil {
		return nil, vmerr.InvalidFileDescriptor(fd)
	}
	return e.state.files[fd], nil
}

// CloseFile nils the slot at fd. Closing an already-closed or invalid fd is
// an error.
func (e *Emulator) CloseFile(fd uint64) error {
	if fd >= uint64(len(e.state.files)) || e.state.files[fd] == nil {
		return vmerr.InvalidFileDescriptor(fd)
	}
	e.state.files[fd].Close()
	e.state.files[fd] = nil
	return nil
}

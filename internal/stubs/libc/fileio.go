package libc

import (
	"io"
	"os"
	"path/filepath"

	"github.com/libanisette/anisette-go/internal/emulator"
	"github.com/libanisette/anisette-go/internal/vmerr"
)

const (
	oWronly   = emulator.OWronly
	oRdwr     = emulator.ORdwr
	oAccmode  = emulator.OAccmode
	oCreat    = emulator.OCreat
	oNofollow = emulator.ONofollow
	enoent    = emulator.ENOENT
)

// allowedMkdirPath and allowedOpenPath are the only guest paths the
// filesystem shims will ever touch. Apple's library only ever persists its
// provisioning blob at this one relative location.
const (
	allowedMkdirPath = "./anisette"
	allowedOpenPath  = "./anisette/adi.pb"
)

func init() {
	emulator.RegisterShim("mkdir", stubMkdir)
	emulator.RegisterShim("umask", stubUmask)
	emulator.RegisterShim("chmod", stubChmod)
	emulator.RegisterShim("lstat", stubLstat)
	emulator.RegisterShim("fstat", stubFstat)
	emulator.RegisterShim("open", stubOpen)
	emulator.RegisterShim("ftruncate", stubFtruncate)
	emulator.RegisterShim("read", stubRead)
	emulator.RegisterShim("write", stubWrite)
	emulator.RegisterShim("close", stubClose)
}

func stubMkdir(e *emulator.Emulator) error {
	pathAddr, err := e.X(0)
	if err != nil {
		return err
	}
	path, err := e.ReadCString(pathAddr)
	if err != nil {
		return err
	}
	e.Log().Shim("libc", "mkdir")

	if path != allowedMkdirPath {
		if err := e.SetErrno(enoent); err != nil {
			return err
		}
		return e.SetX(0, ^uint64(0))
	}

	if err := os.MkdirAll(allowedMkdirPath, 0o755); err != nil {
		if err := e.SetErrno(enoent); err != nil {
			return err
		}
		return e.SetX(0, ^uint64(0))
	}
	return e.SetX(0, 0)
}

// stubUmask always reports 0o777, a mask that clears every permission
// bit, without changing the host umask; the guest never
// actually relies on the returned value beyond logging it.
func stubUmask(e *emulator.Emulator) error {
	e.Log().Shim("libc", "umask")
	return e.SetX(0, 0o777)
}

// stubChmod logs the request and reports success without touching the host
// filesystem: every file this VM creates is already opened with the mode it
// needs.
func stubChmod(e *emulator.Emulator) error {
	e.Log().Shim("libc", "chmod")
	return e.SetX(0, 0)
}

func stubLstat(e *emulator.Emulator) error {
	pathAddr, err := e.X(0)
	if err != nil {
		return err
	}
	outPtr, err := e.X(1)
	if err != nil {
		return err
	}
	path, err := e.ReadCString(pathAddr)
	if err != nil {
		return err
	}
	e.Log().Shim("libc", "lstat")
	return statPathIntoGuest(e, path, outPtr)
}

func stubFstat(e *emulator.Emulator) error {
	fd, err := e.X(0)
	if err != nil {
		return err
	}
	outPtr, err := e.X(1)
	if err != nil {
		return err
	}
	e.Log().Shim("libc", "fstat")

	f, ferr := e.FileAt(fd)
	if ferr != nil {
		if err := e.SetErrno(enoent); err != nil {
			return err
		}
		return e.SetX(0, ^uint64(0))
	}
	info, statErr := f.Stat()
	if statErr != nil {
		if err := e.SetErrno(enoent); err != nil {
			return err
		}
		return e.SetX(0, ^uint64(0))
	}
	if err := writeStatBuf(e, outPtr, info.Mode(), uint64(info.Size())); err != nil {
		return err
	}
	return e.SetX(0, 0)
}

func statPathIntoGuest(e *emulator.Emulator, path string, outPtr uint64) error {
	info, err := os.Lstat(path)
	if err != nil {
		if err := e.SetErrno(enoent); err != nil {
			return err
		}
		return e.SetX(0, ^uint64(0))
	}
	if err := writeStatBuf(e, outPtr, info.Mode(), uint64(info.Size())); err != nil {
		return err
	}
	return e.SetX(0, 0)
}

// writeStatBuf builds the 128-byte Linux AArch64 struct stat layout the
// guest expects: every field zero except mode (offset 16, as a Linux st_mode:
// file-type bits plus permission bits), uid (offset 24, fixed at 0x81A4),
// size (offset 48), and a fixed mtime constant (offset 88).
// The guest only inspects these four fields after an lstat/fstat call.
func writeStatBuf(e *emulator.Emulator, outPtr uint64, mode os.FileMode, size uint64) error {
	stMode := uint32(mode.Perm())
	switch {
	case mode.IsDir():
		stMode |= 0o040000 // S_IFDIR
	case mode&os.ModeSymlink != 0:
		stMode |= 0o120000 // S_IFLNK
	default:
		stMode |= 0o100000 // S_IFREG
	}
	var buf [128]byte
	putU32(buf[16:20], stMode)
	putU32(buf[24:28], 0x000081A4) // uid
	putU64(buf[48:56], size)
	putU64(buf[88:96], 0x0000000001010000) // mtime
	return e.MemWrite(outPtr, buf[:])
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func putU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func stubOpen(e *emulator.Emulator) error {
	pathAddr, err := e.X(0)
	if err != nil {
		return err
	}
	flags, err := e.X(1)
	if err != nil {
		return err
	}
	path, err := e.ReadCString(pathAddr)
	if err != nil {
		return err
	}
	e.Log().Shim("libc", "open")

	if path == "" {
		return vmerr.EmptyPath()
	}
	if path != allowedOpenPath {
		if err := e.SetErrno(enoent); err != nil {
			return err
		}
		return e.SetX(0, ^uint64(0))
	}
	if flags != oNofollow && flags != (oNofollow|oCreat|oWronly) {
		if err := e.SetErrno(enoent); err != nil {
			return err
		}
		return e.SetX(0, ^uint64(0))
	}

	var osFlags int
	switch flags & oAccmode {
	case 0:
		osFlags = os.O_RDONLY
	case oWronly:
		osFlags = os.O_WRONLY | os.O_TRUNC
	case oRdwr:
		osFlags = os.O_RDWR
	default:
		if err := e.SetErrno(enoent); err != nil {
			return err
		}
		return e.SetX(0, ^uint64(0))
	}

	if flags&oCreat != 0 {
		// O_CREAT creates the parent directories and upgrades the request to
		// read+write+create regardless of the access mode requested above.
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			if err := e.SetErrno(enoent); err != nil {
				return err
			}
			return e.SetX(0, ^uint64(0))
		}
		osFlags = os.O_RDWR | os.O_CREATE
	}

	f, openErr := os.OpenFile(path, osFlags, 0o644)
	if openErr != nil {
		if err := e.SetErrno(enoent); err != nil {
			return err
		}
		return e.SetX(0, ^uint64(0))
	}

	fd := e.PushFile(f)
	return e.SetX(0, fd)
}

func stubFtruncate(e *emulator.Emulator) error {
	fd, err := e.X(0)
	if err != nil {
		return err
	}
	length, err := e.X(1)
	if err != nil {
		return err
	}
	e.Log().Shim("libc", "ftruncate")

	f, ferr := e.FileAt(fd)
	if ferr != nil {
		if err := e.SetErrno(enoent); err != nil {
			return err
		}
		return e.SetX(0, ^uint64(0))
	}
	if err := f.Truncate(int64(length)); err != nil {
		if err := e.SetErrno(enoent); err != nil {
			return err
		}
		return e.SetX(0, ^uint64(0))
	}
	return e.SetX(0, 0)
}

func stubRead(e *emulator.Emulator) error {
	fd, err := e.X(0)
	if err != nil {
		return err
	}
	bufPtr, err := e.X(1)
	if err != nil {
		return err
	}
	count, err := e.X(2)
	if err != nil {
		return err
	}
	e.Log().Shim("libc", "read")

	f, ferr := e.FileAt(fd)
	if ferr != nil {
		if err := e.SetErrno(enoent); err != nil {
			return err
		}
		return e.SetX(0, ^uint64(0))
	}

	buf := make([]byte, count)
	n, readErr := f.Read(buf)
	if readErr != nil && readErr != io.EOF && n == 0 {
		if err := e.SetErrno(enoent); err != nil {
			return err
		}
		return e.SetX(0, ^uint64(0))
	}
	if n > 0 {
		if err := e.MemWrite(bufPtr, buf[:n]); err != nil {
			return err
		}
	}
	return e.SetX(0, uint64(n))
}

func stubWrite(e *emulator.Emulator) error {
	fd, err := e.X(0)
	if err != nil {
		return err
	}
	bufPtr, err := e.X(1)
	if err != nil {
		return err
	}
	count, err := e.X(2)
	if err != nil {
		return err
	}
	e.Log().Shim("libc", "write")

	f, ferr := e.FileAt(fd)
	if ferr != nil {
		if err := e.SetErrno(enoent); err != nil {
			return err
		}
		return e.SetX(0, ^uint64(0))
	}

	data, err := e.MemRead(bufPtr, count)
	if err != nil {
		return err
	}
	if _, writeErr := f.Write(data); writeErr != nil {
		if err := e.SetErrno(enoent); err != nil {
			return err
		}
		return e.SetX(0, ^uint64(0))
	}
	return e.SetX(0, count)
}

func stubClose(e *emulator.Emulator) error {
	fd, err := e.X(0)
	if err != nil {
		return err
	}
	e.Log().Shim("libc", "close")
	if err := e.CloseFile(fd); err != nil {
		return err
	}
	return e.SetX(0, 0)
}

package libc

import "github.com/libanisette/anisette-go/internal/emulator"

func init() {
	emulator.RegisterShim("strncpy", stubStrncpy)
}

// stubStrncpy copies up to n bytes from src into dest, stopping at the first
// NUL in the source and zero-padding the remainder of the n-byte
// destination buffer, matching the POSIX strncpy contract exactly
// (including its surprising non-NUL-termination when src is >= n bytes).
func stubStrncpy(e *emulator.Emulator) error {
	dest, err := e.X(0)
	if err != nil {
		return err
	}
	src, err := e.X(1)
	if err != nil {
		return err
	}
	n, err := e.X(2)
	if err != nil {
		return err
	}

	buf := make([]byte, n)
	if n > 0 {
		raw, err := e.MemRead(src, n)
		if err != nil {
			return err
		}
		copyLen := n
		for i, c := range raw {
			if c == 0 {
				copyLen = uint64(i)
				break
			}
		}
		copy(buf, raw[:copyLen])
	}

	if err := e.MemWrite(dest, buf); err != nil {
		return err
	}
	e.Log().Shim("libc", "strncpy")
	return e.SetX(0, dest)
}

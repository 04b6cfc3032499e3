package libc

import (
	"fmt"
	"time"

	"github.com/libanisette/anisette-go/internal/emulator"
)

func init() {
	emulator.RegisterShim("gettimeofday", stubGettimeofday)
}

// stubGettimeofday reports the real host time. Unlike the host I/O failures
// of the file shims, it does not translate a bad call into errno+~0: a non-null tz
// argument means the caller wants timezone data this emulator never
// modeled, so it fails hard rather than silently lying about the offset.
func stubGettimeofday(e *emulator.Emulator) error {
	tvPtr, err := e.X(0)
	if err != nil {
		return err
	}
	tzPtr, err := e.X(1)
	if err != nil {
		return err
	}
	if tzPtr != 0 {
		return fmt.Errorf("gettimeofday: timezone argument not supported")
	}

	now := time.Now()
	var buf [16]byte
	putU64(buf[0:8], uint64(now.Unix()))
	putU64(buf[8:16], uint64(now.Nanosecond()/1000))
	if err := e.MemWrite(tvPtr, buf[:]); err != nil {
		return err
	}

	e.Log().Shim("libc", "gettimeofday")
	return e.SetX(0, 0)
}

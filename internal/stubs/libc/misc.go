package libc

import "github.com/libanisette/anisette-go/internal/emulator"

func init() {
	emulator.RegisterShim("__errno_location", stubErrnoLocation)
	emulator.RegisterShim("__errno", stubErrnoLocation)
	emulator.RegisterShim("__system_property_get", stubSystemPropertyGet)
	emulator.RegisterShim("arc4random", stubArc4random)
}

func stubErrnoLocation(e *emulator.Emulator) error {
	addr, err := e.EnsureErrno()
	if err != nil {
		return err
	}
	e.Log().Shim("libc", "__errno_location")
	return e.SetX(0, addr)
}

// systemPropertyValue is what every __system_property_get call reports,
// regardless of the property name requested. The guest only ever uses this
// to seed a device identifier string, never to branch on its content.
const systemPropertyValue = "no s/n number"

func stubSystemPropertyGet(e *emulator.Emulator) error {
	valuePtr, err := e.X(1)
	if err != nil {
		return err
	}
	if err := e.WriteCString(valuePtr, systemPropertyValue); err != nil {
		return err
	}
	e.Log().Shim("libc", "__system_property_get")
	return e.SetX(0, uint64(len(systemPropertyValue)))
}

// stubArc4random returns a fixed value: the guest only uses it to pick a
// connection timeout jitter, never for anything security-sensitive.
func stubArc4random(e *emulator.Emulator) error {
	e.Log().Shim("libc", "arc4random")
	return e.SetX(0, 0xDEADBEEF)
}

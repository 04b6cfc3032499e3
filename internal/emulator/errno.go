package emulator

// EnsureErrno lazily allocates the guest cell __errno_location returns, and
// returns its address.
func (e *Emulator) EnsureErrno() (uint64, error) {
	if e.state.errnoAddr != 0 {
		return e.state.errnoAddr, nil
	}
	addr, err := e.AllocTemporary(4)
	if err != nil {
		return 0, err
	}
	e.state.errnoAddr = addr
	return addr, nil
}

// SetErrno writes val into the guest errno cell, allocating it on first use.
func (e *Emulator) SetErrno(val int32) error {
	addr, err := e.EnsureErrno()
	if err != nil {
		return err
	}
	return e.MemWriteU32(addr, uint32(val))
}

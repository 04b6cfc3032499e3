// The shims in this file are the only pthread entrypoints the guest
// libraries actually call; each one reports success without doing any
// synchronization.
package pthread

import "github.com/libanisette/anisette-go/internal/emulator"

func init() {
	emulator.RegisterShim("pthread_once", shimPthreadOnce)
	emulator.RegisterShim("pthread_create", shimPthreadCreate)
	emulator.RegisterShim("pthread_mutex_lock", shimMutexLock)
	emulator.RegisterShim("pthread_mutex_unlock", shimMutexUnlock)
	emulator.RegisterShim("pthread_rwlock_init", shimRwlockInit)
	emulator.RegisterShim("pthread_rwlock_rdlock", shimRwlockRdlock)
	emulator.RegisterShim("pthread_rwlock_wrlock", shimRwlockWrlock)
	emulator.RegisterShim("pthread_rwlock_unlock", shimRwlockUnlock)
	emulator.RegisterShim("pthread_rwlock_destroy", shimRwlockDestroy)
}

// shimPthreadOnce never actually guards anything: the guest only calls
// pthread_once from single-threaded initialization paths in this emulator,
// so always reporting success is equivalent to running the real guard.
func shimPthreadOnce(e *emulator.Emulator) error {
	e.Log().Shim("pthread", "pthread_once")
	return e.SetX(0, 0)
}

// shimPthreadCreate reports success without ever spawning a thread: nothing
// this emulator runs depends on the new thread actually making progress.
func shimPthreadCreate(e *emulator.Emulator) error {
	e.Log().Shim("pthread", "pthread_create")
	return e.SetX(0, 0)
}

func shimMutexLock(e *emulator.Emulator) error {
	e.Log().Shim("pthread", "pthread_mutex_lock")
	return e.SetX(0, 0)
}

func shimMutexUnlock(e *emulator.Emulator) error {
	e.Log().Shim("pthread", "pthread_mutex_unlock")
	return e.SetX(0, 0)
}

func shimRwlockInit(e *emulator.Emulator) error {
	e.Log().Shim("pthread", "pthread_rwlock_init")
	return e.SetX(0, 0)
}

func shimRwlockRdlock(e *emulator.Emulator) error {
	e.Log().Shim("pthread", "pthread_rwlock_rdlock")
	return e.SetX(0, 0)
}

func shimRwlockWrlock(e *emulator.Emulator) error {
	e.Log().Shim("pthread", "pthread_rwlock_wrlock")
	return e.SetX(0, 0)
}

func shimRwlockUnlock(e *emulator.Emulator) error {
	e.Log().Shim("pthread", "pthread_rwlock_unlock")
	return e.SetX(0, 0)
}

func shimRwlockDestroy(e *emulator.Emulator) error {
	e.Log().Shim("pthread", "pthread_rwlock_destroy")
	return e.SetX(0, 0)
}

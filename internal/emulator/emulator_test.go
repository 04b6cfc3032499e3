package emulator

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/libanisette/anisette-go/internal/log"
	"github.com/libanisette/anisette-go/internal/vmerr"
)

const scratchCodeAddr = 0x20000

func newTestEmulator(t *testing.T) *Emulator {
	t.Helper()
	e, err := New(log.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func TestInvokeCdeclRunsToReturnSentinel(t *testing.T) {
	e := newTestEmulator(t)

	if err := e.MapRegion(scratchCodeAddr, PageSize); err != nil {
		t.Fatalf("map scratch code: %v", err)
	}

	// mov x0, #42 ; ret
	var code [8]byte
	binary.LittleEndian.PutUint32(code[0:4], 0xD2800540)
	binary.LittleEndian.PutUint32(code[4:8], 0xD65F03C0)
	if err := e.MemWrite(scratchCodeAddr, code[:]); err != nil {
		t.Fatalf("write code: %v", err)
	}

	result, err := e.InvokeCdecl(scratchCodeAddr, nil)
	if err != nil {
		t.Fatalf("InvokeCdecl: %v", err)
	}
	if result != 42 {
		t.Fatalf("result = %d, want 42", result)
	}
}

func TestInvokeCdeclTooManyArguments(t *testing.T) {
	e := newTestEmulator(t)
	args := make([]uint64, 30)
	if _, err := e.InvokeCdecl(scratchCodeAddr, args); !errors.Is(err, vmerr.ErrTooManyArguments) {
		t.Fatalf("expected ErrTooManyArguments, got %v", err)
	}
}

func TestMallocBumpsThroughArena(t *testing.T) {
	e := newTestEmulator(t)

	first, err := e.Malloc(16)
	if err != nil {
		t.Fatalf("malloc 1: %v", err)
	}
	if first != MallocAddress {
		t.Fatalf("first malloc = 0x%X, want 0x%X", first, MallocAddress)
	}

	second, err := e.Malloc(16)
	if err != nil {
		t.Fatalf("malloc 2: %v", err)
	}
	if second != MallocAddress+PageSize {
		t.Fatalf("second malloc = 0x%X, want 0x%X", second, MallocAddress+PageSize)
	}
}

func TestAllocDataRoundTrips(t *testing.T) {
	e := newTestEmulator(t)

	payload := []byte("anisette")
	addr, err := e.AllocData(payload)
	if err != nil {
		t.Fatalf("AllocData: %v", err)
	}

	got, err := e.MemRead(addr, uint64(len(payload)))
	if err != nil {
		t.Fatalf("MemRead: %v", err)
	}
	if string(got) != "anisette" {
		t.Fatalf("read back %q, want %q", got, "anisette")
	}
}

func TestCStringRoundTrip(t *testing.T) {
	e := newTestEmulator(t)

	addr, err := e.AllocTemporary(64)
	if err != nil {
		t.Fatalf("AllocTemporary: %v", err)
	}
	if err := e.WriteCString(addr, "./anisette/adi.pb"); err != nil {
		t.Fatalf("WriteCString: %v", err)
	}

	got, err := e.ReadCString(addr)
	if err != nil {
		t.Fatalf("ReadCString: %v", err)
	}
	if got != "./anisette/adi.pb" {
		t.Fatalf("ReadCString = %q, want %q", got, "./anisette/adi.pb")
	}
}

func TestReadCStringUnterminated(t *testing.T) {
	e := newTestEmulator(t)

	addr, err := e.AllocTemporary(maxCStringLen + PageSize)
	if err != nil {
		t.Fatalf("AllocTemporary: %v", err)
	}
	filler := make([]byte, maxCStringLen+PageSize)
	for i := range filler {
		filler[i] = 'A'
	}
	if err := e.MemWrite(addr, filler); err != nil {
		t.Fatalf("MemWrite: %v", err)
	}

	if _, err := e.ReadCString(addr); !errors.Is(err, vmerr.ErrUnterminatedCString) {
		t.Fatalf("expected ErrUnterminatedCString, got %v", err)
	}
}

func TestDispatchImportStubInvalidAddress(t *testing.T) {
	e := newTestEmulator(t)
	if err := e.dispatchImportStub(0); !errors.Is(err, vmerr.ErrInvalidImportAddress) {
		t.Fatalf("expected ErrInvalidImportAddress, got %v", err)
	}
}

func TestDispatchImportStubUnknownLibrary(t *testing.T) {
	e := newTestEmulator(t)
	if err := e.dispatchImportStub(ImportAddress); !errors.Is(err, vmerr.ErrLibraryNotLoaded) {
		t.Fatalf("expected ErrLibraryNotLoaded, got %v", err)
	}
}

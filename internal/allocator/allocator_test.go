package allocator

import (
	"errors"
	"testing"

	"github.com/libanisette/anisette-go/internal/vmerr"
)

func TestAllocAlignsToPages(t *testing.T) {
	a := New(0x1000_0000, 0x20_000)

	got, err := a.Alloc(1)
	if err != nil {
		t.Fatalf("alloc 1: %v", err)
	}
	if got != 0x1000_0000 {
		t.Fatalf("alloc 1 = 0x%X, want 0x1000_0000", got)
	}

	got, err = a.Alloc(0x1500)
	if err != nil {
		t.Fatalf("alloc 2: %v", err)
	}
	if got != 0x1000_1000 {
		t.Fatalf("alloc 2 = 0x%X, want 0x1000_1000", got)
	}
}

func TestAllocOOM(t *testing.T) {
	a := New(0, 0x2000)
	if _, err := a.Alloc(0x2001); !errors.Is(err, vmerr.ErrAllocatorOOM) {
		t.Fatalf("expected OOM error, got %v", err)
	}
}

func TestAllocMinimumOneByte(t *testing.T) {
	a := New(0x4000, 0x1000)
	got, err := a.Alloc(0)
	if err != nil {
		t.Fatalf("alloc 0: %v", err)
	}
	if got != 0x4000 {
		t.Fatalf("alloc 0 = 0x%X, want 0x4000", got)
	}

	if _, err := a.Alloc(1); !errors.Is(err, vmerr.ErrAllocatorOOM) {
		t.Fatalf("expected OOM on second page, got %v", err)
	}
}

package device

import (
	"path/filepath"
	"testing"
)

func TestLoadMissingFileIsUninitialized(t *testing.T) {
	d, err := Load(filepath.Join(t.TempDir(), "device.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if d.Initialized {
		t.Fatal("expected Initialized=false for a missing file")
	}
}

func TestInitializeDefaultsThenPersistThenReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "device.json")

	d, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := d.InitializeDefaults(); err != nil {
		t.Fatalf("InitializeDefaults: %v", err)
	}
	if d.Data.UniqueDeviceIdentifier == "" || d.Data.AdiIdentifier == "" || d.Data.LocalUserUUID == "" {
		t.Fatalf("InitializeDefaults left fields empty: %+v", d.Data)
	}
	if len(d.Data.AdiIdentifier) != 16 {
		t.Fatalf("AdiIdentifier length = %d, want 16 (8 bytes hex)", len(d.Data.AdiIdentifier))
	}
	if len(d.Data.LocalUserUUID) != 64 {
		t.Fatalf("LocalUserUUID length = %d, want 64 (32 bytes hex)", len(d.Data.LocalUserUUID))
	}

	if err := d.Persist(); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !reloaded.Initialized {
		t.Fatal("reloaded device should be Initialized")
	}
	if reloaded.Data != d.Data {
		t.Fatalf("reloaded data = %+v, want %+v", reloaded.Data, d.Data)
	}
}

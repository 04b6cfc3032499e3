package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Default()
	if cfg != want {
		t.Fatalf("Load(missing) = %+v, want %+v", cfg, want)
	}
}

func TestLoadParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anisette.yaml")
	body := `store_services_core_path: ./lib/libstoreservicescore.so
core_adi_path: ./lib/libCoreADI.so
dsid: 1234567890
debug: true
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StoreServicesCorePath != "./lib/libstoreservicescore.so" {
		t.Fatalf("StoreServicesCorePath = %q", cfg.StoreServicesCorePath)
	}
	if cfg.DSID != 1234567890 {
		t.Fatalf("DSID = %d", cfg.DSID)
	}
	if !cfg.Debug {
		t.Fatal("Debug = false, want true")
	}
	if cfg.LibraryRoot != "./anisette" {
		t.Fatalf("LibraryRoot default not preserved: %q", cfg.LibraryRoot)
	}
}

func TestValidateRequiresFields(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty config")
	}
	cfg.StoreServicesCorePath = "a"
	cfg.CoreADIPath = "b"
	cfg.DSID = 1
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

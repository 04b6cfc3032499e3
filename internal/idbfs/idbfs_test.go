package idbfs

import "testing"

func TestInitNormalizesMountPath(t *testing.T) {
	cases := map[string]string{
		"./anisette/": "/anisette",
		"":            "/",
		"anisette":    "/anisette",
		"/anisette":   "/anisette",
		"  ./foo/  ":  "/foo",
	}
	for in, want := range cases {
		got, err := Init(in)
		if err != nil {
			t.Fatalf("Init(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("Init(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHostSyncIsNoop(t *testing.T) {
	var s Syncer = Host{}
	if err := s.Sync(true); err != nil {
		t.Fatalf("Sync(true) = %v, want nil", err)
	}
	if err := s.Sync(false); err != nil {
		t.Fatalf("Sync(false) = %v, want nil", err)
	}
}

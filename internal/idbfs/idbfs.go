// Package idbfs mirrors the mount-path bookkeeping the original browser
// build performed against Emscripten's IndexedDB-backed filesystem. Outside
// a browser host there is no IDBFS to sync, so Sync is a documented no-op;
// Init's path normalization is real and portable regardless of host.
package idbfs

import "strings"

// Syncer is implemented by anything that can flush pending writes to a
// persistent store. The host implementation never has anything to flush.
type Syncer interface {
	Sync(populateFromStorage bool) error
}

// Host is the non-browser Syncer: every anisette-go deployment target.
type Host struct{}

// Init normalizes path the way the Emscripten build's FS.mount call
// expected its mount point: trailing slashes stripped, a leading "./"
// stripped, and the result always rooted at "/".
func Init(path string) (string, error) {
	return normalizeMountPath(path), nil
}

func normalizeMountPath(path string) string {
	trimmed := strings.TrimSpace(path)
	noSlash := strings.TrimRight(trimmed, "/")
	noDot := strings.TrimPrefix(noSlash, "./")

	switch {
	case noDot == "":
		return "/"
	case strings.HasPrefix(noDot, "/"):
		return noDot
	default:
		return "/" + noDot
	}
}

// Sync is a no-op: this host has no IndexedDB-backed filesystem to flush.
func (Host) Sync(populateFromStorage bool) error {
	return nil
}

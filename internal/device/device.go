// Package device manages the persisted identity anisette-go presents to
// Apple's provisioning servers: a device UUID, an ADI identifier, and a
// local user UUID, plus the client string that accompanies every request.
package device

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// defaultClientInfo mirrors the value real Apple client devices send; it
// has no effect on header validity but some endpoints log it.
const defaultClientInfo = "<MacBookPro13,2> <macOS;13.1;22C65> <com.apple.AuthKit/1 (com.apple.dt.Xcode/3594.4.19)>"

// Data is the identity state persisted to disk between runs.
type Data struct {
	UniqueDeviceIdentifier     string `json:"UUID"`
	ServerFriendlyDescription  string `json:"clientInfo"`
	AdiIdentifier              string `json:"identifier"`
	LocalUserUUID              string `json:"localUUID"`
}

// Device wraps Data with the path it was loaded from and whether it has
// ever been initialized.
type Device struct {
	path        string
	Data        Data
	Initialized bool
}

// Load reads path if it exists; a missing file is not an error, it just
// yields an uninitialized Device ready for InitializeDefaults.
func Load(path string) (*Device, error) {
	bytes, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Device{path: path}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read device file %s: %w", path, err)
	}

	var data Data
	if err := json.Unmarshal(bytes, &data); err != nil {
		return nil, fmt.Errorf("parse device file %s: %w", path, err)
	}
	return &Device{path: path, Data: data, Initialized: true}, nil
}

// InitializeDefaults fills in a fresh identity: a random device UUID, the
// canned client description, and two random hex identifiers.
func (d *Device) InitializeDefaults() error {
	adiIdentifier, err := randomHex(8, false)
	if err != nil {
		return err
	}
	localUserUUID, err := randomHex(32, true)
	if err != nil {
		return err
	}

	d.Data.ServerFriendlyDescription = defaultClientInfo
	d.Data.UniqueDeviceIdentifier = strings.ToUpper(uuid.NewString())
	d.Data.AdiIdentifier = adiIdentifier
	d.Data.LocalUserUUID = localUserUUID
	d.Initialized = true
	return nil
}

// Persist writes the current identity to disk as pretty-printed JSON,
// creating parent directories as needed.
func (d *Device) Persist() error {
	if dir := filepath.Dir(d.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create parent dir %s: %w", dir, err)
		}
	}

	bytes, err := json.MarshalIndent(d.Data, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(d.path, bytes, 0o644); err != nil {
		return fmt.Errorf("write device file %s: %w", d.path, err)
	}
	return nil
}

// randomHex returns byteLen random bytes hex-encoded, deliberately drawing
// from crypto/rand rather than the original's non-cryptographic generator
// since this identifier doubles as an anti-fraud signal Apple checks.
func randomHex(byteLen int, uppercase bool) (string, error) {
	buf := make([]byte, byteLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate random hex: %w", err)
	}
	s := hex.EncodeToString(buf)
	if uppercase {
		s = strings.ToUpper(s)
	}
	return s, nil
}

// Package config loads the YAML file describing where the ADI session
// finds its library blobs and what account it provisions for, with CLI
// flags overriding values read from the file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk (and flag-overridable) shape of an anisette session.
type Config struct {
	StoreServicesCorePath string `yaml:"store_services_core_path"`
	CoreADIPath           string `yaml:"core_adi_path"`
	LibraryRoot           string `yaml:"library_root"`
	ProvisioningPath      string `yaml:"provisioning_path"`
	Identifier            string `yaml:"identifier"`
	DeviceStatePath       string `yaml:"device_state_path"`
	AppleRootPEM          string `yaml:"apple_root_pem"`
	DSID                  uint64 `yaml:"dsid"`
	Debug                 bool   `yaml:"debug"`
}

// Default returns the baseline configuration used when no file is present.
func Default() Config {
	return Config{
		LibraryRoot:     "./anisette",
		DeviceStatePath: "./anisette/device.json",
	}
}

// Load reads a YAML config file at path, starting from Default() so unset
// fields keep their defaults. A missing file is not an error — it returns
// the defaults unchanged, since every field can also be supplied by flags.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports whether the config carries enough to start a session.
func (c Config) Validate() error {
	if c.StoreServicesCorePath == "" {
		return fmt.Errorf("config: store_services_core_path is required")
	}
	if c.CoreADIPath == "" {
		return fmt.Errorf("config: core_adi_path is required")
	}
	if c.DSID == 0 {
		return fmt.Errorf("config: dsid is required")
	}
	return nil
}

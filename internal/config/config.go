// Package config loads the YAML configuration consumed by cmd/orbitlinkd,
// following the load-with-defaults pattern used by the retrieval pack's
// nexctl CLI.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the demo binary's configuration.
type Config struct {
	Port               uint8    `yaml:"port"`
	DefaultTimeoutMS   int      `yaml:"default_timeout_ms"`
	DiagnosticsIDs     []uint32 `yaml:"diagnostics_ids"`
	LogLevel           string   `yaml:"log_level"`
}

// RequestTimeout returns DefaultTimeoutMS as a time.Duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.DefaultTimeoutMS) * time.Millisecond
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		Port:             223,
		DefaultTimeoutMS: 60000,
		DiagnosticsIDs:   []uint32{0x10, 0x20},
		LogLevel:         "info",
	}
}

// Load reads a YAML configuration file at path, applying Default() for any
// field the file doesn't set. A missing file is not an error — it yields
// the default configuration.
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
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Package nodeconfig loads the node's file-based configuration — listen
// address, STUN servers, advertised addresses — the way bamgate's
// internal/config loads its gateway config: TOML on disk, CLI flags win.
// There is no identity section here: per SPEC_FULL.md §6, the node's
// keypair is never persisted.
package nodeconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/BurntSushi/toml"
)

// DefaultSTUNServers mirrors rtcpeer.DefaultSTUNServers; duplicated here
// (rather than imported) so this package has no dependency on the WebRTC
// stack, matching bamgate's config package, which also hardcodes its own
// default STUN list independent of the transport layer that consumes it.
var DefaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// Config is the node's on-disk configuration.
type Config struct {
	Listen struct {
		Address string `toml:"address"`
	} `toml:"listen"`

	STUN struct {
		Servers []string `toml:"servers"`
	} `toml:"stun"`

	Advertise struct {
		Addresses []string `toml:"addresses"`
	} `toml:"advertise"`
}

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	cfg := &Config{}
	cfg.Listen.Address = ":8443"
	cfg.STUN.Servers = append([]string(nil), DefaultSTUNServers...)
	return cfg
}

// Load reads a TOML config file at path, overlaying it onto the defaults.
// A missing file is not an error — the node can run on defaults plus CLI
// flags alone.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("nodeconfig: reading %s: %w", path, err)
	}
	if len(cfg.STUN.Servers) == 0 {
		cfg.STUN.Servers = append([]string(nil), DefaultSTUNServers...)
	}
	return cfg, nil
}

// fileExists is a small helper kept distinct from Load's error handling so
// cmd/hyperspace-node can decide whether to warn about a missing --config
// flag value versus silently falling back to defaults.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Exists reports whether a config file exists at path.
func Exists(path string) bool {
	return path != "" && fileExists(path)
}

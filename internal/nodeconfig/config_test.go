package nodeconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultHasSaneListenAndSTUN(t *testing.T) {
	cfg := Default()
	require.Equal(t, ":8443", cfg.Listen.Address)
	require.Equal(t, DefaultSTUNServers, cfg.STUN.Servers)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadOverlaysTOMLOntoDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.toml")
	contents := `
[listen]
address = ":9999"

[advertise]
addresses = ["wss://example.com/ws"]
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9999", cfg.Listen.Address)
	require.Equal(t, []string{"wss://example.com/ws"}, cfg.Advertise.Addresses)
	require.Equal(t, DefaultSTUNServers, cfg.STUN.Servers)
}

func TestExists(t *testing.T) {
	require.False(t, Exists(""))
	require.False(t, Exists(filepath.Join(t.TempDir(), "nope.toml")))

	path := filepath.Join(t.TempDir(), "present.toml")
	require.NoError(t, os.WriteFile(path, []byte(""), 0o644))
	require.True(t, Exists(path))
}

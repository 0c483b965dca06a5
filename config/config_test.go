package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, defaultRPCAddress, cfg.RPCAddress)
	require.Equal(t, defaultBackend, cfg.Backend)
	require.Equal(t, defaultNetwork, cfg.NetworkName)

	_, err = os.Stat(path)
	require.NoError(t, err, "default config file should be written")

	// A second load reads the file it just wrote.
	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.RPCAddress, reloaded.RPCAddress)
}

func TestLoadAppliesDefaultsToPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("RPCAddress = \"0.0.0.0:9000\"\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:9000", cfg.RPCAddress)
	require.Equal(t, defaultBackend, cfg.Backend)
	require.Equal(t, defaultDataDir, cfg.DataDir)
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	cfg := &Config{Backend: "sqlite"}
	require.Error(t, Validate(cfg))
}

func TestValidateRejectsBadAddresses(t *testing.T) {
	cfg := &Config{Backend: "memory", AdminAddress: "0x1234"}
	require.Error(t, Validate(cfg))

	cfg = &Config{Backend: "memory", ApproverAddresses: []string{"not-hex"}}
	require.Error(t, Validate(cfg))

	cfg = &Config{
		Backend:           "memory",
		AdminAddress:      "0x0000000000000000000000000000000000000001",
		ApproverAddresses: []string{"0x0000000000000000000000000000000000000002"},
	}
	require.NoError(t, Validate(cfg))
}

func TestValidateRejectsNonNumericFloat(t *testing.T) {
	cfg := &Config{Backend: "memory", GenesisFloatWei: "10e9"}
	require.Error(t, Validate(cfg))

	cfg = &Config{Backend: "memory", GenesisFloatWei: "1000000000000000000"}
	require.NoError(t, Validate(cfg))
}

func TestParseAddress(t *testing.T) {
	parsed, err := ParseAddress("0x00000000000000000000000000000000000000ff")
	require.NoError(t, err)
	require.Equal(t, byte(0xff), parsed[19])

	_, err = ParseAddress("0xzz")
	require.Error(t, err)
	_, err = ParseAddress("0x00ff")
	require.Error(t, err)
}

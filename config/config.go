package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config carries the operator-facing settings for an ipledger node.
type Config struct {
	RPCAddress    string `toml:"RPCAddress"`
	DataDir       string `toml:"DataDir"`
	Backend       string `toml:"Backend"`
	NetworkName   string `toml:"NetworkName"`
	AdminAddress  string `toml:"AdminAddress"`
	// ApproverAddresses are granted the loan approver role at boot.
	ApproverAddresses []string `toml:"ApproverAddresses"`
	// PausedModules disables state-mutating operations per module
	// (loan, royalty, token).
	PausedModules []string `toml:"PausedModules"`
	// GenesisFloatWei seeds the loan module float on first start so approvals
	// can disburse before any repayments have landed.
	GenesisFloatWei string `toml:"GenesisFloatWei"`
}

const (
	defaultRPCAddress = "127.0.0.1:8661"
	defaultDataDir    = "./ipledger-data"
	defaultBackend    = "leveldb"
	defaultNetwork    = "ipledger-local"
)

// Load reads the configuration from the given path, creating a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = defaultRPCAddress
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = defaultDataDir
	}
	if strings.TrimSpace(cfg.Backend) == "" {
		cfg.Backend = defaultBackend
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = defaultNetwork
	}
	if cfg.ApproverAddresses == nil {
		cfg.ApproverAddresses = []string{}
	}
	if cfg.PausedModules == nil {
		cfg.PausedModules = []string{}
	}
}

// Validate rejects configurations that would fail later in opaque ways.
func Validate(cfg *Config) error {
	switch cfg.Backend {
	case "leveldb", "bolt", "memory":
	default:
		return fmt.Errorf("config: unknown storage backend %q", cfg.Backend)
	}
	if cfg.AdminAddress != "" {
		if _, err := ParseAddress(cfg.AdminAddress); err != nil {
			return fmt.Errorf("config: AdminAddress: %w", err)
		}
	}
	for _, raw := range cfg.ApproverAddresses {
		if _, err := ParseAddress(raw); err != nil {
			return fmt.Errorf("config: ApproverAddresses: %w", err)
		}
	}
	if cfg.GenesisFloatWei != "" {
		for _, r := range cfg.GenesisFloatWei {
			if r < '0' || r > '9' {
				return fmt.Errorf("config: GenesisFloatWei must be a base-10 integer")
			}
		}
	}
	return nil
}

// ParseAddress decodes a 0x-prefixed 20-byte hex address.
func ParseAddress(raw string) ([20]byte, error) {
	var out [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return out, fmt.Errorf("invalid address %q: %w", raw, err)
	}
	if len(decoded) != len(out) {
		return out, fmt.Errorf("invalid address %q: want %d bytes, got %d", raw, len(out), len(decoded))
	}
	copy(out[:], decoded)
	return out, nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

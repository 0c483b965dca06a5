package rpc

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

func parseAddress(raw string) ([20]byte, error) {
	var out [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return out, fmt.Errorf("invalid address %q", raw)
	}
	if len(decoded) != len(out) {
		return out, fmt.Errorf("invalid address %q: want %d bytes", raw, len(out))
	}
	copy(out[:], decoded)
	return out, nil
}

func parseRef(raw string) ([32]byte, error) {
	var out [32]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return out, fmt.Errorf("invalid reference %q", raw)
	}
	if len(decoded) != len(out) {
		return out, fmt.Errorf("invalid reference %q: want %d bytes", raw, len(out))
	}
	copy(out[:], decoded)
	return out, nil
}

func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return value, nil
}

func encodeAddress(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

func encodeRef(ref [32]byte) string {
	return "0x" + hex.EncodeToString(ref[:])
}

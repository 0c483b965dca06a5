package royalty

import (
	"encoding/binary"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// TokenClass describes one tranche of royalty rights over an IP asset. The
// supply is fixed at issuance; units circulate between holders but are never
// minted again under the same class id.
type TokenClass struct {
	ID            [32]byte `json:"id"`
	Asset         [32]byte `json:"asset"`
	PercentageBps uint64   `json:"percentageBps"`
	TotalSupply   *big.Int `json:"totalSupply"`
	Issuer        [20]byte `json:"issuer"`
	IssuedAt      int64    `json:"issuedAt"`
}

// Clone returns a deep copy of the token class.
func (c *TokenClass) Clone() *TokenClass {
	if c == nil {
		return nil
	}
	clone := *c
	if c.TotalSupply != nil {
		clone.TotalSupply = new(big.Int).Set(c.TotalSupply)
	} else {
		clone.TotalSupply = big.NewInt(0)
	}
	return &clone
}

// DeriveClassID computes the deterministic class identifier for an
// (asset, percentage) pair. Issuing twice under the same pair is rejected
// because the derived key collides.
func DeriveClassID(asset [32]byte, percentageBps uint64) [32]byte {
	buf := make([]byte, len(asset)+8)
	copy(buf, asset[:])
	binary.BigEndian.PutUint64(buf[len(asset):], percentageBps)
	var id [32]byte
	copy(id[:], ethcrypto.Keccak256(buf))
	return id
}

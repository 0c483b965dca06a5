package state

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"ipledger/native/royalty"
	"ipledger/storage"
)

func royaltyClassKey(id [32]byte) []byte {
	return storageKey(royaltyClassPrefix, id[:])
}

func royaltyPoolKey(id [32]byte) []byte {
	return storageKey(royaltyPoolPrefix, id[:])
}

func royaltyHoldingKey(id [32]byte, holder [20]byte) []byte {
	return storageKey(royaltyHoldingPrefix, id[:], holder[:])
}

type storedTokenClass struct {
	ID            [32]byte
	Asset         [32]byte
	PercentageBps uint64
	TotalSupply   *big.Int
	Issuer        [20]byte
	IssuedAt      *big.Int
}

func newStoredTokenClass(c *royalty.TokenClass) *storedTokenClass {
	supply := big.NewInt(0)
	if c.TotalSupply != nil {
		supply = new(big.Int).Set(c.TotalSupply)
	}
	return &storedTokenClass{
		ID:            c.ID,
		Asset:         c.Asset,
		PercentageBps: c.PercentageBps,
		TotalSupply:   supply,
		Issuer:        c.Issuer,
		IssuedAt:      big.NewInt(c.IssuedAt),
	}
}

func (s *storedTokenClass) toTokenClass() (*royalty.TokenClass, error) {
	if s == nil {
		return nil, fmt.Errorf("state: nil token class record")
	}
	out := &royalty.TokenClass{
		ID:            s.ID,
		Asset:         s.Asset,
		PercentageBps: s.PercentageBps,
		TotalSupply:   big.NewInt(0),
		Issuer:        s.Issuer,
	}
	if s.TotalSupply != nil {
		out.TotalSupply = new(big.Int).Set(s.TotalSupply)
	}
	if s.IssuedAt != nil {
		out.IssuedAt = s.IssuedAt.Int64()
	}
	return out, nil
}

// RoyaltyClassGet loads a token class by derived id.
func (m *Manager) RoyaltyClassGet(id [32]byte) (*royalty.TokenClass, bool, error) {
	data, err := m.db.Get(royaltyClassKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	stored := new(storedTokenClass)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, false, err
	}
	class, err := stored.toTokenClass()
	if err != nil {
		return nil, false, err
	}
	return class, true, nil
}

// RoyaltyClassPut persists a token class. The supply is immutable at the
// engine layer; storage just writes what it is handed.
func (m *Manager) RoyaltyClassPut(c *royalty.TokenClass) error {
	if c == nil {
		return fmt.Errorf("state: nil token class")
	}
	encoded, err := rlp.EncodeToBytes(newStoredTokenClass(c))
	if err != nil {
		return err
	}
	return m.db.Put(royaltyClassKey(c.ID), encoded)
}

// RoyaltyPoolGet returns the undistributed accrual for a class; absent pools
// read as zero.
func (m *Manager) RoyaltyPoolGet(id [32]byte) (*big.Int, error) {
	return m.loadBigInt(royaltyPoolKey(id))
}

// RoyaltyPoolPut replaces the undistributed accrual for a class.
func (m *Manager) RoyaltyPoolPut(id [32]byte, accumulated *big.Int) error {
	if accumulated != nil && accumulated.Sign() < 0 {
		return fmt.Errorf("state: negative royalty pool")
	}
	return m.writeBigInt(royaltyPoolKey(id), accumulated)
}

// RoyaltyHoldingGet returns the units a holder carries in a class; absent
// holdings read as zero.
func (m *Manager) RoyaltyHoldingGet(id [32]byte, holder [20]byte) (*big.Int, error) {
	return m.loadBigInt(royaltyHoldingKey(id, holder))
}

// RoyaltyHoldingPut replaces a holding balance. Holdings are zeroed rather
// than deleted so the ledger keeps every identity it has seen.
func (m *Manager) RoyaltyHoldingPut(id [32]byte, holder [20]byte, balance *big.Int) error {
	if balance != nil && balance.Sign() < 0 {
		return fmt.Errorf("state: negative royalty holding")
	}
	return m.writeBigInt(royaltyHoldingKey(id, holder), balance)
}

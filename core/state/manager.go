package state

import (
	"errors"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"ipledger/core/types"
	"ipledger/storage"
)

// Manager is the owned persistence layer for every protocol entity: accounts
// and allowances, the loan registry, royalty classes with their pools and
// holdings, the asset ownership mirror and role grants. Keys are hashed with
// a per-entity prefix; records are RLP-encoded stored structs so signed
// values ride as big integers.
type Manager struct {
	db storage.Database
}

// NewManager wraps a key-value database in the state manager.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// Atomic runs fn against a staged view of the store. Writes buffer in an
// overlay and land on the backing database in a single batch only when fn
// returns nil; any error discards every staged write, so a failed operation
// leaves no partial state behind.
func (m *Manager) Atomic(fn func(*Manager) error) error {
	overlay := storage.NewOverlay(m.db)
	if err := fn(NewManager(overlay)); err != nil {
		return err
	}
	return overlay.Commit()
}

var (
	accountPrefix        = []byte("account/")
	allowancePrefix      = []byte("allowance/")
	rolePrefix           = []byte("role/")
	loanRecordPrefix     = []byte("loan/record/")
	loanCounterPrefix    = []byte("loan/counter")
	royaltyClassPrefix   = []byte("royalty/class/")
	royaltyPoolPrefix    = []byte("royalty/pool/")
	royaltyHoldingPrefix = []byte("royalty/holding/")
	assetOwnerPrefix     = []byte("asset/owner/")
)

func storageKey(prefix []byte, parts ...[]byte) []byte {
	size := len(prefix)
	for _, part := range parts {
		size += len(part)
	}
	buf := make([]byte, 0, size)
	buf = append(buf, prefix...)
	for _, part := range parts {
		buf = append(buf, part...)
	}
	return ethcrypto.Keccak256(buf)
}

func (m *Manager) loadBigInt(key []byte) (*big.Int, error) {
	data, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	value := new(big.Int)
	if err := rlp.DecodeBytes(data, value); err != nil {
		return nil, err
	}
	return value, nil
}

func (m *Manager) writeBigInt(key []byte, value *big.Int) error {
	if value == nil {
		value = big.NewInt(0)
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.db.Put(key, encoded)
}

// --- Accounts ---

type storedAccount struct {
	Nonce   uint64
	Balance *big.Int
}

func accountKey(addr []byte) []byte {
	return storageKey(accountPrefix, addr)
}

// GetAccount returns the stored account or nil when none exists. Engines
// treat a nil account as a fresh zero-balance record.
func (m *Manager) GetAccount(addr []byte) (*types.Account, error) {
	data, err := m.db.Get(accountKey(addr))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	stored := new(storedAccount)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, err
	}
	account := &types.Account{Nonce: stored.Nonce, Balance: big.NewInt(0)}
	if stored.Balance != nil {
		account.Balance = new(big.Int).Set(stored.Balance)
	}
	return account, nil
}

// PutAccount persists the account record.
func (m *Manager) PutAccount(addr []byte, account *types.Account) error {
	if account == nil {
		return errors.New("state: nil account")
	}
	balance := big.NewInt(0)
	if account.Balance != nil {
		balance = new(big.Int).Set(account.Balance)
	}
	encoded, err := rlp.EncodeToBytes(&storedAccount{Nonce: account.Nonce, Balance: balance})
	if err != nil {
		return err
	}
	return m.db.Put(accountKey(addr), encoded)
}

// --- Allowances ---

func allowanceKey(owner, spender [20]byte) []byte {
	return storageKey(allowancePrefix, owner[:], spender[:])
}

// Allowance returns the remaining grant from owner to spender; absent grants
// read as zero.
func (m *Manager) Allowance(owner, spender [20]byte) (*big.Int, error) {
	return m.loadBigInt(allowanceKey(owner, spender))
}

// SetAllowance replaces the grant from owner to spender. A zero amount
// clears the entry.
func (m *Manager) SetAllowance(owner, spender [20]byte, amount *big.Int) error {
	key := allowanceKey(owner, spender)
	if amount == nil || amount.Sign() == 0 {
		return m.db.Delete(key)
	}
	if amount.Sign() < 0 {
		return errors.New("state: negative allowance")
	}
	return m.writeBigInt(key, amount)
}

// --- Roles ---

func roleKey(role string, addr []byte) []byte {
	return storageKey(rolePrefix, []byte(role), addr)
}

// HasRole reports whether the address carries the role grant. Lookup errors
// read as "no grant" so gated operations fail closed.
func (m *Manager) HasRole(role string, addr []byte) bool {
	ok, err := m.db.Has(roleKey(role, addr))
	if err != nil {
		return false
	}
	return ok
}

// GrantRole records a role grant for the address.
func (m *Manager) GrantRole(role string, addr []byte) error {
	return m.db.Put(roleKey(role, addr), []byte{1})
}

// RevokeRole removes a role grant for the address.
func (m *Manager) RevokeRole(role string, addr []byte) error {
	return m.db.Delete(roleKey(role, addr))
}

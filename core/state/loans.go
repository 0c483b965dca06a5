package state

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"ipledger/native/loan"
	"ipledger/storage"
)

func loanRecordKey(id uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, id)
	return storageKey(loanRecordPrefix, buf)
}

func loanCounterKey() []byte {
	return storageKey(loanCounterPrefix)
}

type storedLoan struct {
	ID              uint64
	Borrower        [20]byte
	Collateral      [32]byte
	Principal       *big.Int
	InterestRateBps uint64
	PeriodSeconds   uint64
	StartTime       *big.Int
	EndTime         *big.Int
	Status          uint8
}

func newStoredLoan(l *loan.Loan) *storedLoan {
	principal := big.NewInt(0)
	if l.Principal != nil {
		principal = new(big.Int).Set(l.Principal)
	}
	return &storedLoan{
		ID:              l.ID,
		Borrower:        l.Borrower,
		Collateral:      l.Collateral,
		Principal:       principal,
		InterestRateBps: l.InterestRateBps,
		PeriodSeconds:   l.PeriodSeconds,
		StartTime:       big.NewInt(l.StartTime),
		EndTime:         big.NewInt(l.EndTime),
		Status:          uint8(l.Status),
	}
}

func (s *storedLoan) toLoan() (*loan.Loan, error) {
	if s == nil {
		return nil, fmt.Errorf("state: nil loan record")
	}
	out := &loan.Loan{
		ID:              s.ID,
		Borrower:        s.Borrower,
		Collateral:      s.Collateral,
		Principal:       big.NewInt(0),
		InterestRateBps: s.InterestRateBps,
		PeriodSeconds:   s.PeriodSeconds,
		Status:          loan.Status(s.Status),
	}
	if s.Principal != nil {
		out.Principal = new(big.Int).Set(s.Principal)
	}
	if s.StartTime != nil {
		out.StartTime = s.StartTime.Int64()
	}
	if s.EndTime != nil {
		out.EndTime = s.EndTime.Int64()
	}
	if !out.Status.Valid() {
		return nil, fmt.Errorf("state: invalid loan status %d", s.Status)
	}
	return out, nil
}

// LoanGet loads a loan record by id.
func (m *Manager) LoanGet(id uint64) (*loan.Loan, bool, error) {
	data, err := m.db.Get(loanRecordKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	stored := new(storedLoan)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, false, err
	}
	record, err := stored.toLoan()
	if err != nil {
		return nil, false, err
	}
	return record, true, nil
}

// LoanPut persists a loan record.
func (m *Manager) LoanPut(l *loan.Loan) error {
	if l == nil {
		return fmt.Errorf("state: nil loan")
	}
	if !l.Status.Valid() {
		return fmt.Errorf("state: invalid loan status %d", l.Status)
	}
	encoded, err := rlp.EncodeToBytes(newStoredLoan(l))
	if err != nil {
		return err
	}
	return m.db.Put(loanRecordKey(l.ID), encoded)
}

// NextLoanID advances the registry counter and returns the fresh identifier.
// Identifiers start at 1 so a zero id always means "unset".
func (m *Manager) NextLoanID() (uint64, error) {
	key := loanCounterKey()
	current, err := m.loadBigInt(key)
	if err != nil {
		return 0, err
	}
	if current.Sign() < 0 {
		return 0, fmt.Errorf("state: negative loan counter")
	}
	if current.BitLen() > 63 {
		return 0, fmt.Errorf("state: loan counter overflow")
	}
	next := current.Uint64() + 1
	if err := m.writeBigInt(key, new(big.Int).SetUint64(next)); err != nil {
		return 0, err
	}
	return next, nil
}

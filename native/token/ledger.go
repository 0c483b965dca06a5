package token

import (
	"errors"
	"math/big"

	"ipledger/core/events"
	"ipledger/core/types"
	nativecommon "ipledger/native/common"
)

var (
	errNilState              = errors.New("token ledger: state not configured")
	errInvalidAmount         = errors.New("token ledger: amount must be positive")
	errInsufficientBalance   = errors.New("token ledger: insufficient balance")
	errInsufficientAllowance = errors.New("token ledger: insufficient allowance")
)

// ErrNotAdmin is returned when the mint caller lacks the admin role.
// Exported so the RPC layer can map it onto its unauthorized error code.
var ErrNotAdmin = errors.New("token ledger: caller lacks admin role")

const moduleName = "token"

type ledgerState interface {
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
	Allowance(owner, spender [20]byte) (*big.Int, error)
	SetAllowance(owner, spender [20]byte, amount *big.Int) error
	HasRole(role string, addr []byte) bool
}

// Ledger is the fungible settlement-token surface: direct transfers,
// allowance grants consumed by the loan and royalty modules, and an
// admin-gated mint used to seed module floats.
type Ledger struct {
	state   ledgerState
	emitter events.Emitter
	pauses  nativecommon.PauseView
}

// NewLedger constructs a token ledger with default dependencies.
func NewLedger() *Ledger {
	return &Ledger{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the ledger.
func (l *Ledger) SetState(state ledgerState) { l.state = state }

// SetEmitter configures the event emitter used by the ledger.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

// SetPauses wires the operator pause switches.
func (l *Ledger) SetPauses(p nativecommon.PauseView) {
	if l == nil {
		return
	}
	l.pauses = p
}

// WithState returns a copy of the ledger bound to the given state backend.
// Emitter and pause wiring carry over, so a staged transaction runs with the
// same dependencies as the parent ledger.
func (l *Ledger) WithState(state ledgerState) *Ledger {
	if l == nil {
		return nil
	}
	clone := *l
	clone.state = state
	return &clone
}

func (l *Ledger) emit(evt *types.Event) {
	if l == nil || evt == nil || l.emitter == nil {
		return
	}
	l.emitter.Emit(WrapEvent(evt))
}

func (l *Ledger) loadAccount(addr [20]byte) (*types.Account, error) {
	acc, err := l.state.GetAccount(addr[:])
	if err != nil {
		return nil, err
	}
	if acc == nil {
		acc = types.NewAccount()
	}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	return acc, nil
}

// Transfer moves value directly between two accounts.
func (l *Ledger) Transfer(from, to [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	fromAcc, err := l.loadAccount(from)
	if err != nil {
		return err
	}
	if fromAcc.Balance.Cmp(amount) < 0 {
		return errInsufficientBalance
	}
	toAcc, err := l.loadAccount(to)
	if err != nil {
		return err
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amount)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amount)
	if err := l.state.PutAccount(from[:], fromAcc); err != nil {
		return err
	}
	if err := l.state.PutAccount(to[:], toAcc); err != nil {
		return err
	}
	l.emit(TransferredEvent(from, to, amount.String()))
	return nil
}

// Approve sets the allowance a spender may pull from the owner. The grant
// replaces any previous value rather than accumulating.
func (l *Ledger) Approve(owner, spender [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return errInvalidAmount
	}
	if err := l.state.SetAllowance(owner, spender, new(big.Int).Set(amount)); err != nil {
		return err
	}
	l.emit(ApprovedEvent(owner, spender, amount.String()))
	return nil
}

// TransferFrom moves value from the owner to the recipient on the strength of
// a prior allowance grant to the spender.
func (l *Ledger) TransferFrom(spender, owner, to [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	allowance, err := l.state.Allowance(owner, spender)
	if err != nil {
		return err
	}
	if allowance == nil || allowance.Cmp(amount) < 0 {
		return errInsufficientAllowance
	}
	ownerAcc, err := l.loadAccount(owner)
	if err != nil {
		return err
	}
	if ownerAcc.Balance.Cmp(amount) < 0 {
		return errInsufficientBalance
	}
	toAcc, err := l.loadAccount(to)
	if err != nil {
		return err
	}
	if err := l.state.SetAllowance(owner, spender, new(big.Int).Sub(allowance, amount)); err != nil {
		return err
	}
	ownerAcc.Balance = new(big.Int).Sub(ownerAcc.Balance, amount)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amount)
	if err := l.state.PutAccount(owner[:], ownerAcc); err != nil {
		return err
	}
	if err := l.state.PutAccount(to[:], toAcc); err != nil {
		return err
	}
	l.emit(TransferredEvent(owner, to, amount.String()))
	return nil
}

// Mint credits freshly issued value to the recipient. Restricted to the
// protocol admin; used to seed the loan module float and test fixtures.
func (l *Ledger) Mint(caller, to [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return err
	}
	if !l.state.HasRole(nativecommon.RoleProtocolAdmin, caller[:]) {
		return ErrNotAdmin
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	toAcc, err := l.loadAccount(to)
	if err != nil {
		return err
	}
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amount)
	if err := l.state.PutAccount(to[:], toAcc); err != nil {
		return err
	}
	l.emit(MintedEvent(to, amount.String()))
	return nil
}

// BalanceOf returns the settlement balance of an account.
func (l *Ledger) BalanceOf(addr [20]byte) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	acc, err := l.loadAccount(addr)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(acc.Balance), nil
}

// AllowanceOf returns the remaining allowance from owner to spender.
func (l *Ledger) AllowanceOf(owner, spender [20]byte) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	allowance, err := l.state.Allowance(owner, spender)
	if err != nil {
		return nil, err
	}
	if allowance == nil {
		return big.NewInt(0), nil
	}
	return allowance, nil
}

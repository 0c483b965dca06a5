package loan

import (
	"errors"
	"math/big"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"ipledger/core/events"
	"ipledger/core/types"
	nativecommon "ipledger/native/common"
)

var (
	errNilState              = errors.New("loan engine: state not configured")
	errInvalidPrincipal      = errors.New("loan engine: principal must be positive")
	errInvalidPeriod         = errors.New("loan engine: repayment period must be positive")
	errInvalidRate           = errors.New("loan engine: interest rate exceeds 10000 basis points")
	errAssetNotFound         = errors.New("loan engine: collateral asset not registered")
	errNotAssetOwner         = errors.New("loan engine: caller does not own collateral asset")
	errLoanNotFound          = errors.New("loan engine: loan not found")
	errLoanNotApplied        = errors.New("loan engine: loan already approved or closed")
	errLoanNotActive         = errors.New("loan engine: loan is not active")
	errRepayWindowClosed     = errors.New("loan engine: repayment window has closed")
	errLoanNotMatured        = errors.New("loan engine: loan has not passed its deadline")
	errInsufficientFloat     = errors.New("loan engine: module float cannot cover principal")
	errInsufficientAllowance = errors.New("loan engine: allowance below repayment due")
	errInsufficientBalance   = errors.New("loan engine: insufficient balance")
)

// Authorization failures are exported so the RPC layer can map them onto its
// unauthorized error code.
var (
	// ErrNotApprover is returned when the approve caller lacks the approver role.
	ErrNotApprover = errors.New("loan engine: caller lacks approver role")
	// ErrNotAdmin is returned when the liquidate caller lacks the admin role.
	ErrNotAdmin = errors.New("loan engine: caller lacks admin role")
	// ErrNotBorrower is returned when someone other than the borrower repays.
	ErrNotBorrower = errors.New("loan engine: caller is not the borrower")
)

const moduleName = "loan"

type engineState interface {
	LoanGet(id uint64) (*Loan, bool, error)
	LoanPut(l *Loan) error
	NextLoanID() (uint64, error)
	AssetOwner(ref [32]byte) ([20]byte, bool, error)
	AssetTransfer(ref [32]byte, from, to [20]byte) error
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
	Allowance(owner, spender [20]byte) (*big.Int, error)
	SetAllowance(owner, spender [20]byte, amount *big.Int) error
	HasRole(role string, addr []byte) bool
}

// Engine orchestrates the loan registry state machine: collateral custody,
// principal disbursement and the repay/liquidate window.
type Engine struct {
	state   engineState
	emitter events.Emitter
	nowFn   func() int64
	pauses  nativecommon.PauseView
}

// ModuleAddress is the registry's own account: it custodies collateral and
// carries the disbursement float.
func ModuleAddress() [20]byte {
	var out [20]byte
	copy(out[:], ethcrypto.Keccak256([]byte("ipledger/module/loan"))[12:])
	return out
}

// NewEngine constructs a loan engine with default dependencies.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn: func() int64 {
			return time.Now().Unix()
		},
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used for deterministic testing.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetPauses wires the operator pause switches.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// WithState returns a copy of the engine bound to the given state backend.
// Emitter, clock and pause wiring carry over, so a staged transaction runs
// with the same dependencies as the parent engine.
func (e *Engine) WithState(state engineState) *Engine {
	if e == nil {
		return nil
	}
	clone := *e
	clone.state = state
	return &clone
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || evt == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(WrapEvent(evt))
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) loadAccount(addr [20]byte) (*types.Account, error) {
	acc, err := e.state.GetAccount(addr[:])
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

// Apply escrows the caller's collateral asset and records a fresh loan in the
// Applied state. The collateral moves into module custody atomically with
// record creation, so a second application against the same asset fails the
// ownership check.
func (e *Engine) Apply(borrower [20]byte, collateral [32]byte, principal *big.Int, rateBps uint64, periodSeconds uint64) (*Loan, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if principal == nil || principal.Sign() <= 0 {
		return nil, errInvalidPrincipal
	}
	if periodSeconds == 0 {
		return nil, errInvalidPeriod
	}
	if rateBps > 10_000 {
		return nil, errInvalidRate
	}

	owner, ok, err := e.state.AssetOwner(collateral)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errAssetNotFound
	}
	if owner != borrower {
		return nil, errNotAssetOwner
	}

	id, err := e.state.NextLoanID()
	if err != nil {
		return nil, err
	}
	record := &Loan{
		ID:              id,
		Borrower:        borrower,
		Collateral:      collateral,
		Principal:       new(big.Int).Set(principal),
		InterestRateBps: rateBps,
		PeriodSeconds:   periodSeconds,
		Status:          StatusApplied,
	}
	if err := e.state.LoanPut(record); err != nil {
		return nil, err
	}
	if err := e.state.AssetTransfer(collateral, borrower, ModuleAddress()); err != nil {
		return nil, err
	}

	e.emit(AppliedEvent(record))
	return record.Clone(), nil
}

// Approve activates an applied loan: the repayment window opens at the
// current time and the principal is disbursed from the module float to the
// borrower. Restricted to holders of the approver role.
func (e *Engine) Approve(approver [20]byte, id uint64) (*Loan, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if !e.state.HasRole(nativecommon.RoleLoanApprover, approver[:]) {
		return nil, ErrNotApprover
	}

	record, ok, err := e.state.LoanGet(id)
	if err != nil {
		return nil, err
	}
	if !ok || record == nil {
		return nil, errLoanNotFound
	}
	if record.Status != StatusApplied {
		return nil, errLoanNotApplied
	}

	module := ModuleAddress()
	moduleAcc, err := e.loadAccount(module)
	if err != nil {
		return nil, err
	}
	if moduleAcc.Balance.Cmp(record.Principal) < 0 {
		return nil, errInsufficientFloat
	}
	borrowerAcc, err := e.loadAccount(record.Borrower)
	if err != nil {
		return nil, err
	}

	now := e.now()
	record.Status = StatusActive
	record.StartTime = now
	record.EndTime = now + int64(record.PeriodSeconds)
	if err := e.state.LoanPut(record); err != nil {
		return nil, err
	}

	moduleAcc.Balance = new(big.Int).Sub(moduleAcc.Balance, record.Principal)
	borrowerAcc.Balance = new(big.Int).Add(borrowerAcc.Balance, record.Principal)
	if err := e.state.PutAccount(module[:], moduleAcc); err != nil {
		return nil, err
	}
	if err := e.state.PutAccount(record.Borrower[:], borrowerAcc); err != nil {
		return nil, err
	}

	e.emit(ApprovedEvent(record, approver))
	return record.Clone(), nil
}

// Repay settles an active loan inside its window. The repayment total is
// pulled from the borrower through the allowance they granted the module, the
// loan becomes terminal and the collateral returns to the borrower. Late
// repayment is rejected outright; the collateral becomes liquidatable
// instead.
func (e *Engine) Repay(caller [20]byte, id uint64) (*Loan, *big.Int, error) {
	if e == nil || e.state == nil {
		return nil, nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, nil, err
	}

	record, ok, err := e.state.LoanGet(id)
	if err != nil {
		return nil, nil, err
	}
	if !ok || record == nil {
		return nil, nil, errLoanNotFound
	}
	if caller != record.Borrower {
		return nil, nil, ErrNotBorrower
	}
	if record.Status != StatusActive {
		return nil, nil, errLoanNotActive
	}
	if e.now() > record.EndTime {
		return nil, nil, errRepayWindowClosed
	}

	due := RepaymentDue(record.Principal, record.InterestRateBps)

	module := ModuleAddress()
	allowance, err := e.state.Allowance(record.Borrower, module)
	if err != nil {
		return nil, nil, err
	}
	if allowance == nil || allowance.Cmp(due) < 0 {
		return nil, nil, errInsufficientAllowance
	}
	borrowerAcc, err := e.loadAccount(record.Borrower)
	if err != nil {
		return nil, nil, err
	}
	if borrowerAcc.Balance.Cmp(due) < 0 {
		return nil, nil, errInsufficientBalance
	}
	moduleAcc, err := e.loadAccount(module)
	if err != nil {
		return nil, nil, err
	}

	record.Status = StatusRepaid
	if err := e.state.LoanPut(record); err != nil {
		return nil, nil, err
	}

	if err := e.state.SetAllowance(record.Borrower, module, new(big.Int).Sub(allowance, due)); err != nil {
		return nil, nil, err
	}
	borrowerAcc.Balance = new(big.Int).Sub(borrowerAcc.Balance, due)
	moduleAcc.Balance = new(big.Int).Add(moduleAcc.Balance, due)
	if err := e.state.PutAccount(record.Borrower[:], borrowerAcc); err != nil {
		return nil, nil, err
	}
	if err := e.state.PutAccount(module[:], moduleAcc); err != nil {
		return nil, nil, err
	}

	if err := e.state.AssetTransfer(record.Collateral, module, record.Borrower); err != nil {
		return nil, nil, err
	}

	e.emit(RepaidEvent(record, due.String()))
	return record.Clone(), due, nil
}

// Liquidate seizes the collateral of an active loan whose window has passed.
// The asset moves to the calling admin; the borrower keeps the principal and
// receives nothing further.
func (e *Engine) Liquidate(admin [20]byte, id uint64) (*Loan, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if !e.state.HasRole(nativecommon.RoleProtocolAdmin, admin[:]) {
		return nil, ErrNotAdmin
	}

	record, ok, err := e.state.LoanGet(id)
	if err != nil {
		return nil, err
	}
	if !ok || record == nil {
		return nil, errLoanNotFound
	}
	if record.Status != StatusActive {
		return nil, errLoanNotActive
	}
	if e.now() <= record.EndTime {
		return nil, errLoanNotMatured
	}

	record.Status = StatusLiquidated
	if err := e.state.LoanPut(record); err != nil {
		return nil, err
	}
	if err := e.state.AssetTransfer(record.Collateral, ModuleAddress(), admin); err != nil {
		return nil, err
	}

	e.emit(LiquidatedEvent(record, admin))
	return record.Clone(), nil
}

// Loan returns the stored record for the given id without mutating state.
func (e *Engine) Loan(id uint64) (*Loan, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	record, ok, err := e.state.LoanGet(id)
	if err != nil {
		return nil, err
	}
	if !ok || record == nil {
		return nil, errLoanNotFound
	}
	return record.Clone(), nil
}

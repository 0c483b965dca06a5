package royalty

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
	errNilState              = errors.New("royalty engine: state not configured")
	errInvalidAmount         = errors.New("royalty engine: amount must be positive")
	errInvalidPercentage     = errors.New("royalty engine: percentage must be within (0, 10000] basis points")
	errAssetNotFound         = errors.New("royalty engine: asset not registered")
	errNotAssetOwner         = errors.New("royalty engine: caller does not own asset")
	errClassExists           = errors.New("royalty engine: token class already issued for this pair")
	errClassNotFound         = errors.New("royalty engine: token class not found")
	errNoHoldings            = errors.New("royalty engine: caller holds no units in class")
	errInsufficientHoldings  = errors.New("royalty engine: holding below transfer amount")
	errNothingToClaim        = errors.New("royalty engine: claimable amount rounds to zero")
	errInsufficientAllowance = errors.New("royalty engine: allowance below deposit amount")
	errInsufficientBalance   = errors.New("royalty engine: insufficient balance")
	errVaultUnderfunded      = errors.New("royalty engine: vault cannot cover claim")
)

// ErrNotAdmin is returned when the deposit caller lacks the admin role.
// Exported so the RPC layer can map it onto its unauthorized error code.
var ErrNotAdmin = errors.New("royalty engine: caller lacks admin role")

const moduleName = "royalty"

type engineState interface {
	RoyaltyClassGet(id [32]byte) (*TokenClass, bool, error)
	RoyaltyClassPut(c *TokenClass) error
	RoyaltyPoolGet(id [32]byte) (*big.Int, error)
	RoyaltyPoolPut(id [32]byte, accumulated *big.Int) error
	RoyaltyHoldingGet(id [32]byte, holder [20]byte) (*big.Int, error)
	RoyaltyHoldingPut(id [32]byte, holder [20]byte, balance *big.Int) error
	AssetOwner(ref [32]byte) ([20]byte, bool, error)
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
	Allowance(owner, spender [20]byte) (*big.Int, error)
	SetAllowance(owner, spender [20]byte, amount *big.Int) error
	HasRole(role string, addr []byte) bool
}

// Engine maintains royalty token classes, their circulating holdings and the
// per-class accrual pools, and settles pro-rata claims against the vault.
type Engine struct {
	state   engineState
	emitter events.Emitter
	nowFn   func() int64
	pauses  nativecommon.PauseView
}

// VaultAddress is the account that escrows deposited royalties until holders
// claim them.
func VaultAddress() [20]byte {
	var out [20]byte
	copy(out[:], ethcrypto.Keccak256([]byte("ipledger/module/royalty"))[12:])
	return out
}

// NewEngine constructs a royalty engine with default dependencies.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn: func() int64 {
			return time.Now().Unix()
		},
	}
}

// SetState configures the state backend used by the engine.
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

func (e *Engine) holding(id [32]byte, holder [20]byte) (*big.Int, error) {
	balance, err := e.state.RoyaltyHoldingGet(id, holder)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		return big.NewInt(0), nil
	}
	return balance, nil
}

func (e *Engine) pool(id [32]byte) (*big.Int, error) {
	accumulated, err := e.state.RoyaltyPoolGet(id)
	if err != nil {
		return nil, err
	}
	if accumulated == nil {
		return big.NewInt(0), nil
	}
	return accumulated, nil
}

// Issue creates a token class for the (asset, percentage) pair and mints the
// entire fixed supply to the asset owner. The pair key makes re-issuance
// collide; a different percentage over the same asset still creates an
// independent class.
//
// TODO: coordinate overlapping percentage classes per asset before issuance
// is opened beyond admin-registered assets.
func (e *Engine) Issue(caller [20]byte, asset [32]byte, percentageBps uint64, amount *big.Int) (*TokenClass, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if percentageBps == 0 || percentageBps > 10_000 {
		return nil, errInvalidPercentage
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, errInvalidAmount
	}

	owner, ok, err := e.state.AssetOwner(asset)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errAssetNotFound
	}
	if owner != caller {
		return nil, errNotAssetOwner
	}

	id := DeriveClassID(asset, percentageBps)
	if existing, ok, err := e.state.RoyaltyClassGet(id); err != nil {
		return nil, err
	} else if ok && existing != nil {
		return nil, errClassExists
	}

	class := &TokenClass{
		ID:            id,
		Asset:         asset,
		PercentageBps: percentageBps,
		TotalSupply:   new(big.Int).Set(amount),
		Issuer:        caller,
		IssuedAt:      e.now(),
	}
	if err := e.state.RoyaltyClassPut(class); err != nil {
		return nil, err
	}
	if err := e.state.RoyaltyHoldingPut(id, caller, new(big.Int).Set(amount)); err != nil {
		return nil, err
	}

	e.emit(IssuedEvent(class))
	return class.Clone(), nil
}

// Transfer moves units of a class between holders. Holdings are zeroed, never
// destroyed, so the sum across holders stays equal to the fixed supply.
func (e *Engine) Transfer(from, to [20]byte, classID [32]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}

	if _, ok, err := e.state.RoyaltyClassGet(classID); err != nil {
		return err
	} else if !ok {
		return errClassNotFound
	}

	fromBalance, err := e.holding(classID, from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return errInsufficientHoldings
	}
	toBalance, err := e.holding(classID, to)
	if err != nil {
		return err
	}

	if err := e.state.RoyaltyHoldingPut(classID, from, new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	if err := e.state.RoyaltyHoldingPut(classID, to, new(big.Int).Add(toBalance, amount)); err != nil {
		return err
	}

	e.emit(TransferredEvent(classID, from, to, amount.String()))
	return nil
}

// Deposit pulls value from the admin caller into the vault and adds it to the
// class accrual pool. Deposits are purely additive; there is no cap relative
// to the class supply.
func (e *Engine) Deposit(caller [20]byte, classID [32]byte, amount *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if !e.state.HasRole(nativecommon.RoleProtocolAdmin, caller[:]) {
		return nil, ErrNotAdmin
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, errInvalidAmount
	}

	if _, ok, err := e.state.RoyaltyClassGet(classID); err != nil {
		return nil, err
	} else if !ok {
		return nil, errClassNotFound
	}

	vault := VaultAddress()
	allowance, err := e.state.Allowance(caller, vault)
	if err != nil {
		return nil, err
	}
	if allowance == nil || allowance.Cmp(amount) < 0 {
		return nil, errInsufficientAllowance
	}
	callerAcc, err := e.loadAccount(caller)
	if err != nil {
		return nil, err
	}
	if callerAcc.Balance.Cmp(amount) < 0 {
		return nil, errInsufficientBalance
	}
	vaultAcc, err := e.loadAccount(vault)
	if err != nil {
		return nil, err
	}

	accumulated, err := e.pool(classID)
	if err != nil {
		return nil, err
	}
	accumulated = new(big.Int).Add(accumulated, amount)
	if err := e.state.RoyaltyPoolPut(classID, accumulated); err != nil {
		return nil, err
	}

	if err := e.state.SetAllowance(caller, vault, new(big.Int).Sub(allowance, amount)); err != nil {
		return nil, err
	}
	callerAcc.Balance = new(big.Int).Sub(callerAcc.Balance, amount)
	vaultAcc.Balance = new(big.Int).Add(vaultAcc.Balance, amount)
	if err := e.state.PutAccount(caller[:], callerAcc); err != nil {
		return nil, err
	}
	if err := e.state.PutAccount(vault[:], vaultAcc); err != nil {
		return nil, err
	}

	e.emit(DepositedEvent(classID, caller, amount.String(), accumulated.String()))
	return accumulated, nil
}

// Claim pays the caller their floor pro-rata share of the accumulated pool.
// The pool decrements by exactly the payout, so immediate re-claims compute
// against the reduced remainder and cumulative claims can never exceed
// cumulative deposits. Shares too small to floor above zero stay stranded
// until more value accrues.
func (e *Engine) Claim(caller [20]byte, classID [32]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}

	class, ok, err := e.state.RoyaltyClassGet(classID)
	if err != nil {
		return nil, err
	}
	if !ok || class == nil {
		return nil, errClassNotFound
	}

	balance, err := e.holding(classID, caller)
	if err != nil {
		return nil, err
	}
	if balance.Sign() == 0 {
		return nil, errNoHoldings
	}

	accumulated, err := e.pool(classID)
	if err != nil {
		return nil, err
	}
	claimable := new(big.Int).Mul(accumulated, balance)
	claimable = claimable.Quo(claimable, class.TotalSupply)
	if claimable.Sign() == 0 {
		return nil, errNothingToClaim
	}

	vault := VaultAddress()
	vaultAcc, err := e.loadAccount(vault)
	if err != nil {
		return nil, err
	}
	if vaultAcc.Balance.Cmp(claimable) < 0 {
		return nil, errVaultUnderfunded
	}
	claimantAcc, err := e.loadAccount(caller)
	if err != nil {
		return nil, err
	}

	remaining := new(big.Int).Sub(accumulated, claimable)
	if err := e.state.RoyaltyPoolPut(classID, remaining); err != nil {
		return nil, err
	}

	vaultAcc.Balance = new(big.Int).Sub(vaultAcc.Balance, claimable)
	claimantAcc.Balance = new(big.Int).Add(claimantAcc.Balance, claimable)
	if err := e.state.PutAccount(vault[:], vaultAcc); err != nil {
		return nil, err
	}
	if err := e.state.PutAccount(caller[:], claimantAcc); err != nil {
		return nil, err
	}

	e.emit(ClaimedEvent(classID, caller, claimable.String(), remaining.String()))
	return claimable, nil
}

// Class returns the stored token class without mutating state.
func (e *Engine) Class(classID [32]byte) (*TokenClass, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	class, ok, err := e.state.RoyaltyClassGet(classID)
	if err != nil {
		return nil, err
	}
	if !ok || class == nil {
		return nil, errClassNotFound
	}
	return class.Clone(), nil
}

// Holding returns the caller-visible balance of a holder in a class.
func (e *Engine) Holding(classID [32]byte, holder [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if _, ok, err := e.state.RoyaltyClassGet(classID); err != nil {
		return nil, err
	} else if !ok {
		return nil, errClassNotFound
	}
	return e.holding(classID, holder)
}

// Pool returns the undistributed accrual for a class.
func (e *Engine) Pool(classID [32]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if _, ok, err := e.state.RoyaltyClassGet(classID); err != nil {
		return nil, err
	} else if !ok {
		return nil, errClassNotFound
	}
	return e.pool(classID)
}

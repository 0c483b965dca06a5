package loan

import "math/big"

// Status tracks the lifecycle position of a loan. Applied loans hold the
// collateral but have not been funded; Active loans have a running repayment
// window; Repaid and Liquidated are terminal.
type Status uint8

const (
	StatusApplied Status = iota
	StatusActive
	StatusRepaid
	StatusLiquidated
)

// Valid reports whether the status is one of the defined lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusApplied, StatusActive, StatusRepaid, StatusLiquidated:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	switch s {
	case StatusApplied:
		return "applied"
	case StatusActive:
		return "active"
	case StatusRepaid:
		return "repaid"
	case StatusLiquidated:
		return "liquidated"
	default:
		return "unknown"
	}
}

// Loan is the registry record for a collateralized position. The collateral
// reference is an externally minted IP asset identifier; the registry never
// creates them, it only takes custody.
type Loan struct {
	ID              uint64   `json:"id"`
	Borrower        [20]byte `json:"borrower"`
	Collateral      [32]byte `json:"collateral"`
	Principal       *big.Int `json:"principal"`
	InterestRateBps uint64   `json:"interestRateBps"`
	PeriodSeconds   uint64   `json:"periodSeconds"`
	StartTime       int64    `json:"startTime"`
	EndTime         int64    `json:"endTime"`
	Status          Status   `json:"status"`
}

// Clone returns a deep copy of the loan record.
func (l *Loan) Clone() *Loan {
	if l == nil {
		return nil
	}
	clone := *l
	if l.Principal != nil {
		clone.Principal = new(big.Int).Set(l.Principal)
	} else {
		clone.Principal = big.NewInt(0)
	}
	return &clone
}

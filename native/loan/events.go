package loan

import (
	"encoding/hex"
	"strconv"

	"ipledger/core/events"
	"ipledger/core/types"
)

const (
	// EventTypeLoanApplied is emitted when a borrower escrows collateral and
	// opens a loan application.
	EventTypeLoanApplied = "loan.applied"
	// EventTypeLoanApproved is emitted when an approver activates a loan and
	// the principal is disbursed.
	EventTypeLoanApproved = "loan.approved"
	// EventTypeLoanRepaid is emitted when the borrower settles the loan
	// inside the repayment window.
	EventTypeLoanRepaid = "loan.repaid"
	// EventTypeLoanLiquidated is emitted when an admin seizes collateral from
	// a defaulted loan.
	EventTypeLoanLiquidated = "loan.liquidated"
)

type eventEnvelope struct {
	evt *types.Event
}

func (e eventEnvelope) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e eventEnvelope) Event() *types.Event { return e.evt }

// WrapEvent converts a raw event payload into the emitter-friendly envelope.
func WrapEvent(evt *types.Event) events.Event { return eventEnvelope{evt: evt} }

func hexAddr(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

func hexRef(ref [32]byte) string {
	return "0x" + hex.EncodeToString(ref[:])
}

// AppliedEvent carries the full parameter set of a fresh application.
func AppliedEvent(l *Loan) *types.Event {
	return &types.Event{
		Type: EventTypeLoanApplied,
		Attributes: map[string]string{
			"loanId":          strconv.FormatUint(l.ID, 10),
			"borrower":        hexAddr(l.Borrower),
			"collateral":      hexRef(l.Collateral),
			"principal":       l.Principal.String(),
			"interestRateBps": strconv.FormatUint(l.InterestRateBps, 10),
			"periodSeconds":   strconv.FormatUint(l.PeriodSeconds, 10),
		},
	}
}

// ApprovedEvent captures activation and the computed repayment window.
func ApprovedEvent(l *Loan, approver [20]byte) *types.Event {
	return &types.Event{
		Type: EventTypeLoanApproved,
		Attributes: map[string]string{
			"loanId":    strconv.FormatUint(l.ID, 10),
			"approver":  hexAddr(approver),
			"borrower":  hexAddr(l.Borrower),
			"principal": l.Principal.String(),
			"startTime": strconv.FormatInt(l.StartTime, 10),
			"endTime":   strconv.FormatInt(l.EndTime, 10),
		},
	}
}

// RepaidEvent captures settlement including the interest charged.
func RepaidEvent(l *Loan, totalRepayment string) *types.Event {
	return &types.Event{
		Type: EventTypeLoanRepaid,
		Attributes: map[string]string{
			"loanId":         strconv.FormatUint(l.ID, 10),
			"borrower":       hexAddr(l.Borrower),
			"collateral":     hexRef(l.Collateral),
			"totalRepayment": totalRepayment,
		},
	}
}

// LiquidatedEvent captures the collateral seizure after default.
func LiquidatedEvent(l *Loan, admin [20]byte) *types.Event {
	return &types.Event{
		Type: EventTypeLoanLiquidated,
		Attributes: map[string]string{
			"loanId":     strconv.FormatUint(l.ID, 10),
			"admin":      hexAddr(admin),
			"borrower":   hexAddr(l.Borrower),
			"collateral": hexRef(l.Collateral),
		},
	}
}

package royalty

import (
	"encoding/hex"
	"strconv"

	"ipledger/core/events"
	"ipledger/core/types"
)

const (
	// EventTypeRoyaltyIssued is emitted when a new token class is created.
	EventTypeRoyaltyIssued = "royalty.issued"
	// EventTypeRoyaltyTransferred is emitted when units move between holders.
	EventTypeRoyaltyTransferred = "royalty.transferred"
	// EventTypeRoyaltyDeposited is emitted when value accrues to a class pool.
	EventTypeRoyaltyDeposited = "royalty.deposited"
	// EventTypeRoyaltyClaimed is emitted when a holder withdraws their
	// pro-rata share of the pool.
	EventTypeRoyaltyClaimed = "royalty.claimed"
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

// IssuedEvent announces a new class and its immutable supply.
func IssuedEvent(c *TokenClass) *types.Event {
	return &types.Event{
		Type: EventTypeRoyaltyIssued,
		Attributes: map[string]string{
			"classId":       hexRef(c.ID),
			"asset":         hexRef(c.Asset),
			"percentageBps": strconv.FormatUint(c.PercentageBps, 10),
			"totalSupply":   c.TotalSupply.String(),
			"issuer":        hexAddr(c.Issuer),
		},
	}
}

// TransferredEvent records a holding move between two identities.
func TransferredEvent(classID [32]byte, from, to [20]byte, amount string) *types.Event {
	return &types.Event{
		Type: EventTypeRoyaltyTransferred,
		Attributes: map[string]string{
			"classId": hexRef(classID),
			"from":    hexAddr(from),
			"to":      hexAddr(to),
			"amount":  amount,
		},
	}
}

// DepositedEvent records an accrual into a class pool.
func DepositedEvent(classID [32]byte, depositor [20]byte, amount, accumulated string) *types.Event {
	return &types.Event{
		Type: EventTypeRoyaltyDeposited,
		Attributes: map[string]string{
			"classId":     hexRef(classID),
			"depositor":   hexAddr(depositor),
			"amount":      amount,
			"accumulated": accumulated,
		},
	}
}

// ClaimedEvent records a pro-rata payout from a class pool.
func ClaimedEvent(classID [32]byte, claimant [20]byte, amount, remaining string) *types.Event {
	return &types.Event{
		Type: EventTypeRoyaltyClaimed,
		Attributes: map[string]string{
			"classId":   hexRef(classID),
			"claimant":  hexAddr(claimant),
			"amount":    amount,
			"remaining": remaining,
		},
	}
}

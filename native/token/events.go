package token

import (
	"encoding/hex"

	"ipledger/core/events"
	"ipledger/core/types"
)

const (
	// EventTypeTokenTransferred is emitted for both direct and
	// allowance-based transfers.
	EventTypeTokenTransferred = "token.transferred"
	// EventTypeTokenApproved is emitted when an allowance is set.
	EventTypeTokenApproved = "token.approved"
	// EventTypeTokenMinted is emitted when new value enters circulation.
	EventTypeTokenMinted = "token.minted"
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

// TransferredEvent records value moving between accounts.
func TransferredEvent(from, to [20]byte, amount string) *types.Event {
	return &types.Event{
		Type: EventTypeTokenTransferred,
		Attributes: map[string]string{
			"from":   hexAddr(from),
			"to":     hexAddr(to),
			"amount": amount,
		},
	}
}

// ApprovedEvent records an allowance grant.
func ApprovedEvent(owner, spender [20]byte, amount string) *types.Event {
	return &types.Event{
		Type: EventTypeTokenApproved,
		Attributes: map[string]string{
			"owner":   hexAddr(owner),
			"spender": hexAddr(spender),
			"amount":  amount,
		},
	}
}

// MintedEvent records new issuance.
func MintedEvent(to [20]byte, amount string) *types.Event {
	return &types.Event{
		Type: EventTypeTokenMinted,
		Attributes: map[string]string{
			"to":     hexAddr(to),
			"amount": amount,
		},
	}
}

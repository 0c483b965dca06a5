package events

import (
	"log/slog"

	"ipledger/core/types"
)

// Event represents a structured state change emitted by a protocol module.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (RPC streams,
// indexers, log sinks).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events.
// Engines default to it so event emission is always optional.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// LogEmitter writes every event to a structured logger. It is the default
// sink on a running node; indexer integrations replace it with their own
// Emitter.
type LogEmitter struct {
	Logger *slog.Logger
}

type payloadCarrier interface {
	Event() *types.Event
}

// Emit implements the Emitter interface.
func (l LogEmitter) Emit(evt Event) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if evt == nil {
		return
	}
	attrs := []any{slog.String("event", evt.EventType())}
	if carrier, ok := evt.(payloadCarrier); ok {
		if payload := carrier.Event(); payload != nil {
			for key, value := range payload.Attributes {
				attrs = append(attrs, slog.String(key, value))
			}
		}
	}
	logger.Info("protocol event", attrs...)
}

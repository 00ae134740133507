package mux

import (
	"encoding/json"
	"time"
)

// Frame is one inbound message unit from the transport, tagged with a type.
// The payload is opaque to the multiplexer; its schema is owned by subscribers.
type Frame struct {
	Type       string          // Message type (e.g., "market.tick", "analysis.stream")
	Data       json.RawMessage // Opaque payload
	ReceivedAt time.Time       // Local timestamp when the transport received the frame
}

// Handler receives every inbound frame whose type matches the subscription.
type Handler func(Frame)

// UnsubscribeFunc releases one registration. Safe to call more than once;
// calls after the first are no-ops. Must not be called synchronously from
// inside the registration's own handler.
type UnsubscribeFunc func()

// Stats contains runtime statistics.
type Stats struct {
	FramesReceived   int64
	FramesDispatched int64
	ParseErrors      int64
	UnknownTypes     int64
	HandlerFailures  int64
	ActiveKeys       int
	ActiveHandlers   int
}

// envelope is the wire format for every frame in both directions.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// subscribePayload is the data carried by subscribe/unsubscribe control frames.
type subscribePayload struct {
	Type   string          `json:"type"`
	Params json.RawMessage `json:"params"`
}

// Control frame types for server-side subscription signaling.
const (
	typeSubscribe   = "subscribe"
	typeUnsubscribe = "unsubscribe"
)

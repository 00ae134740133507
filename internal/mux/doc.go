// Package mux implements the subscription multiplexer over the transport.
//
// The multiplexer:
//   - Routes inbound frames by message type to zero or more handlers
//   - Collapses logically identical subscriptions onto one network-level
//     registration, keyed by (type, canonical params), ref-counted
//   - Dispatches each frame to subscribers in registration order, isolating
//     per-handler failures
//   - Rehydrates server-side subscriptions after a reconnect
//
// Release of a handle is immediately effective: once the returned
// UnsubscribeFunc has returned, the handler is never invoked again. The cost
// of that guarantee is that a handler must not release its own handle
// synchronously from inside itself.
package mux

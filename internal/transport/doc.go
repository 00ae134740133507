// Package transport implements the WebSocket connection to the realtime gateway.
//
// The client:
//   - Maintains one persistent connection per instance
//   - Handles reconnection with exponential backoff
//   - Fires registered hooks after each reconnect so the subscription
//     layer can rehydrate server-side subscriptions
//   - Delivers raw inbound frames to a single consumer channel
//
// Frames lost while disconnected are not replayed.
package transport

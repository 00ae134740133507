package transport

import (
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected  = errors.New("not connected")
	ErrAlreadyClosed = errors.New("already closed")
)

// Message wraps raw frame data with a receive timestamp.
type Message struct {
	Data       []byte    // Raw frame bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL                string        // WebSocket URL (e.g., wss://stream.finsight.app/realtime/v1)
	AuthToken          string        // Bearer token for the Authorization header (empty = no auth)
	HandshakeTimeout   time.Duration // Dial handshake deadline
	WriteTimeout       time.Duration // Write deadline for sends
	PingInterval       time.Duration // Keepalive ping interval
	ReconnectBaseDelay time.Duration // Base wait time for reconnection
	ReconnectMaxDelay  time.Duration // Max wait time for reconnection
	BufferSize         int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout:   10 * time.Second,
		WriteTimeout:       5 * time.Second,
		PingInterval:       30 * time.Second,
		ReconnectBaseDelay: 1 * time.Second,
		ReconnectMaxDelay:  60 * time.Second,
		BufferSize:         1000,
	}
}

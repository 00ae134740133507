package notify

import "time"

// Type classifies a notification.
type Type string

const (
	TypeSuccess Type = "success"
	TypeError   Type = "error"
	TypeWarning Type = "warning"
	TypeInfo    Type = "info"
)

// Position is the screen anchor a notification renders at.
type Position string

const (
	TopRight     Position = "top-right"
	TopLeft      Position = "top-left"
	BottomRight  Position = "bottom-right"
	BottomLeft   Position = "bottom-left"
	TopCenter    Position = "top-center"
	BottomCenter Position = "bottom-center"
)

// Toast is one ephemeral notification.
type Toast struct {
	ID         string
	Type       Type
	Title      string
	Message    string
	Duration   time.Duration
	Persistent bool
	Position   Position
	CreatedAt  time.Time
	Visible    bool
}

// Options describes a notification to show. Zero values fall back to the
// center's configured defaults.
type Options struct {
	ID         string
	Type       Type
	Title      string
	Message    string
	Duration   time.Duration
	Persistent bool // Persistent toasts never auto-dismiss
	Position   Position
}

// Config configures a Center.
type Config struct {
	MaxVisible      int           // Concurrent visible toasts before eviction
	DefaultDuration time.Duration // Auto-dismiss delay when Options.Duration is unset
	RemoveDelay     time.Duration // Delay between hide and removal, reserved for exit presentation
	DefaultPosition Position
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxVisible:      5,
		DefaultDuration: 5 * time.Second,
		RemoveDelay:     300 * time.Millisecond,
		DefaultPosition: TopRight,
	}
}

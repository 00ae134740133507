package config

import "time"

// Config is the root configuration for a realtime client instance.
type Config struct {
	Instance      InstanceConfig      `yaml:"instance"`
	Realtime      RealtimeConfig      `yaml:"realtime"`
	Stream        StreamConfig        `yaml:"stream"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Archive       ArchiveConfig       `yaml:"archive"`
	Database      DatabaseConfig      `yaml:"database"`
}

// InstanceConfig identifies this client instance.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// RealtimeConfig holds WebSocket transport settings.
type RealtimeConfig struct {
	WSURL              string        `yaml:"ws_url"`
	AuthToken          string        `yaml:"auth_token"` // Bearer token (empty = no auth)
	HandshakeTimeout   time.Duration `yaml:"handshake_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	PingInterval       time.Duration `yaml:"ping_interval"`
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	BufferSize         int           `yaml:"buffer_size"`
}

// StreamConfig holds streamed-analysis settings.
type StreamConfig struct {
	MessageType string `yaml:"message_type"`
}

// NotificationsConfig holds notification center settings.
type NotificationsConfig struct {
	MaxVisible      int           `yaml:"max_visible"`
	DefaultDuration time.Duration `yaml:"default_duration"`
	RemoveDelay     time.Duration `yaml:"remove_delay"`
	DefaultPosition string        `yaml:"default_position"`
}

// ArchiveConfig holds frame archive settings.
type ArchiveConfig struct {
	Enabled       bool          `yaml:"enabled"`
	MessageTypes  []string      `yaml:"message_types"`
	Table         string        `yaml:"table"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// DatabaseConfig holds the archive database connection.
type DatabaseConfig struct {
	Timescale DBConfig `yaml:"timescale"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

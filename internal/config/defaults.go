package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultWSURL              = "wss://stream.finsight.app/realtime/v1"
	DefaultHandshakeTimeout   = 10 * time.Second
	DefaultWriteTimeout       = 5 * time.Second
	DefaultPingInterval       = 30 * time.Second
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultReconnectMaxDelay  = 60 * time.Second
	DefaultBufferSize         = 1000
	DefaultStreamMessageType  = "analysis.stream"
	DefaultMaxVisible         = 5
	DefaultToastDuration      = 5 * time.Second
	DefaultRemoveDelay        = 300 * time.Millisecond
	DefaultPosition           = "top-right"
	DefaultArchiveTable       = "frames"
	DefaultBatchSize          = 500
	DefaultFlushInterval      = 1 * time.Second
	DefaultArchiveBufferSize  = 5000
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 10
	DefaultMinConns           = 2
)

func (c *Config) applyDefaults() {
	// Realtime defaults
	if c.Realtime.WSURL == "" {
		c.Realtime.WSURL = DefaultWSURL
	}
	if c.Realtime.HandshakeTimeout == 0 {
		c.Realtime.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Realtime.WriteTimeout == 0 {
		c.Realtime.WriteTimeout = DefaultWriteTimeout
	}
	if c.Realtime.PingInterval == 0 {
		c.Realtime.PingInterval = DefaultPingInterval
	}
	if c.Realtime.ReconnectBaseDelay == 0 {
		c.Realtime.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Realtime.ReconnectMaxDelay == 0 {
		c.Realtime.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Realtime.BufferSize == 0 {
		c.Realtime.BufferSize = DefaultBufferSize
	}

	// Stream defaults
	if c.Stream.MessageType == "" {
		c.Stream.MessageType = DefaultStreamMessageType
	}

	// Notification defaults
	if c.Notifications.MaxVisible == 0 {
		c.Notifications.MaxVisible = DefaultMaxVisible
	}
	if c.Notifications.DefaultDuration == 0 {
		c.Notifications.DefaultDuration = DefaultToastDuration
	}
	if c.Notifications.RemoveDelay == 0 {
		c.Notifications.RemoveDelay = DefaultRemoveDelay
	}
	if c.Notifications.DefaultPosition == "" {
		c.Notifications.DefaultPosition = DefaultPosition
	}

	// Archive defaults
	if c.Archive.Table == "" {
		c.Archive.Table = DefaultArchiveTable
	}
	if c.Archive.BatchSize == 0 {
		c.Archive.BatchSize = DefaultBatchSize
	}
	if c.Archive.FlushInterval == 0 {
		c.Archive.FlushInterval = DefaultFlushInterval
	}
	if c.Archive.BufferSize == 0 {
		c.Archive.BufferSize = DefaultArchiveBufferSize
	}

	// Database defaults
	applyDBDefaults(&c.Database.Timescale)
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}

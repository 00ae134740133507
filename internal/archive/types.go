package archive

import (
	"time"

	"github.com/google/uuid"
)

// Config holds frame archive settings.
type Config struct {
	MessageTypes  []string      // Message types to archive
	Table         string        // Destination table name
	BatchSize     int           // Rows per batch insert
	FlushInterval time.Duration // Max time a row waits before flush
	BufferSize    int           // Ring capacity between handlers and flush loop
}

// Metrics tracks recorder activity.
type Metrics struct {
	Inserts   int64 // Rows written
	Conflicts int64 // Rows skipped by ON CONFLICT
	Flushes   int64 // Successful batch flushes
	Errors    int64 // Failed batch inserts
	Dropped   int64 // Frames dropped because the ring was full
}

// frameRow is the database representation of an archived frame.
type frameRow struct {
	ID         uuid.UUID
	ReceivedAt int64 // Unix microseconds
	MsgType    string
	Payload    []byte
}

// Package database provides connection pool management for the frame archive.
//
// The archive uses a single TimescaleDB (PostgreSQL) pool holding the
// append-only frames hypertable.
package database

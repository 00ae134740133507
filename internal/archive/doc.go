// Package archive persists received frames to TimescaleDB for offline
// replay and analysis.
//
// A Recorder subscribes to a configurable set of message types through the
// multiplexer. Frames are transformed to rows on the dispatch goroutine,
// buffered in a fixed-capacity ring, and written in batches by a dedicated
// flush loop using pgx batch inserts with ON CONFLICT DO NOTHING. A full
// ring drops frames rather than blocking dispatch.
package archive

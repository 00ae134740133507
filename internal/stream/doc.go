// Package stream implements the single-flight aggregator for streamed
// analysis content.
//
// At most one stream is active per Aggregator. Chunks are delivered to the
// content callback one frame at a time in arrival order. A finished marker
// ends consumption logically but leaves the subscription registered until
// Stop is called.
package stream

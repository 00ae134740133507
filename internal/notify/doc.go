// Package notify implements the capacity-bounded, auto-expiring notification
// queue consumed by rendering surfaces.
//
// Ordering is newest-first by Show() call order. At most MaxVisible toasts
// are visible at once; inserting past capacity drops the oldest entry
// synchronously. Every other removal is preceded by a hide and a fixed exit
// delay. Ids are unique for the lifetime of the center.
package notify

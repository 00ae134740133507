package archive

import "sync"

// buffer is a fixed-capacity ring between the subscription handlers and the
// flush loop. Push never blocks the dispatch path; when the ring is full the
// frame is dropped and counted by the recorder.
type buffer[T any] struct {
	mu    sync.Mutex
	buf   []T
	head  int
	tail  int
	count int
}

func newBuffer[T any](capacity int) *buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &buffer[T]{buf: make([]T, capacity)}
}

// push adds an item. Returns false if the ring is full.
func (b *buffer[T]) push(item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == len(b.buf) {
		return false
	}

	b.buf[b.tail] = item
	b.tail = (b.tail + 1) % len(b.buf)
	b.count++
	return true
}

// drain removes and returns up to max items in insertion order.
// max <= 0 drains everything.
func (b *buffer[T]) drain(max int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}

	n := b.count
	if max > 0 && max < n {
		n = max
	}

	out := make([]T, n)
	var zero T
	for i := 0; i < n; i++ {
		out[i] = b.buf[b.head]
		b.buf[b.head] = zero // Clear reference for GC
		b.head = (b.head + 1) % len(b.buf)
	}
	b.count -= n
	return out
}

// len returns the current number of buffered items.
func (b *buffer[T]) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

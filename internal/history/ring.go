// Package history provides a bounded, order-preserving buffer.
package history

// Ring keeps the most recent items up to a fixed capacity. Pushing onto a
// full ring drops the oldest item. Not safe for concurrent use.
type Ring[T any] struct {
	data  []T
	head  int // next write position
	count int
}

// NewRing creates a ring holding at most capacity items. A non-positive
// capacity falls back to DefaultCapacity.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	return &Ring[T]{data: make([]T, capacity)}
}

// DefaultCapacity is the capacity used when none is given.
const DefaultCapacity = 1000

// Push appends an item, evicting the oldest one when full.
func (r *Ring[T]) Push(item T) {
	r.data[r.head] = item
	r.head = (r.head + 1) % len(r.data)

	if r.count < len(r.data) {
		r.count++
	}
}

// Len returns the number of stored items.
func (r *Ring[T]) Len() int {
	return r.count
}

// Cap returns the capacity.
func (r *Ring[T]) Cap() int {
	return len(r.data)
}

// Slice returns a copy of the items from oldest to newest.
func (r *Ring[T]) Slice() []T {
	out := make([]T, r.count)
	if r.count == 0 {
		return out
	}

	tail := (r.head - r.count + len(r.data)) % len(r.data)
	n := copy(out, r.data[tail:min(tail+r.count, len(r.data))])
	copy(out[n:], r.data[:r.count-n])

	return out
}

// Newest returns the most recently pushed item.
func (r *Ring[T]) Newest() (T, bool) {
	var zero T
	if r.count == 0 {
		return zero, false
	}

	return r.data[(r.head-1+len(r.data))%len(r.data)], true
}

// Reset removes every item.
func (r *Ring[T]) Reset() {
	clear(r.data)
	r.head = 0
	r.count = 0
}

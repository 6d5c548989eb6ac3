// Package ring implements the fixed-capacity circular byte buffer shared
// between a device's event producer and its readers.
package ring

import "fmt"

// Buffer is a circular byte queue with a capacity fixed at construction.
//
// Full and empty are told apart by an explicit count rather than a
// sacrificed slot, so every slot of the capacity is usable. head is the
// next byte to consume, tail the next free slot; both stay in
// [0, capacity) and are only meaningful together with count.
//
// Buffer does no locking. The owning channel serializes all access.
type Buffer struct {
	data  []byte
	head  int
	tail  int
	count int
}

// New creates a Buffer holding up to capacity bytes.
func New(capacity int) (*Buffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("ring: capacity must be positive, got %d", capacity)
	}
	return &Buffer{data: make([]byte, capacity)}, nil
}

// Capacity returns the fixed capacity in bytes.
func (b *Buffer) Capacity() int {
	return len(b.data)
}

// AvailableToRead returns the number of buffered unread bytes.
func (b *Buffer) AvailableToRead() int {
	return b.count
}

// AvailableToWrite returns the number of bytes Append can accept without
// overwriting unread data.
func (b *Buffer) AvailableToWrite() int {
	return len(b.data) - b.count
}

// Append copies as many bytes of p as fit and returns the number copied.
// It never blocks and never overwrites unread data; when the buffer is
// full it returns 0.
func (b *Buffer) Append(p []byte) int {
	n := len(b.data) - b.count
	if n > len(p) {
		n = len(p)
	}
	if n == 0 {
		return 0
	}
	first := copy(b.data[b.tail:], p[:n])
	if first < n {
		copy(b.data, p[first:n])
	}
	b.tail = (b.tail + n) % len(b.data)
	b.count += n
	return n
}

// Consume removes up to max buffered bytes and returns them in arrival
// order. It returns an empty slice when the buffer is empty.
func (b *Buffer) Consume(max int) []byte {
	if max > b.count {
		max = b.count
	}
	if max <= 0 {
		return nil
	}
	out := make([]byte, max)
	first := copy(out, b.data[b.head:])
	if first < max {
		copy(out[first:], b.data)
	}
	b.head = (b.head + max) % len(b.data)
	b.count -= max
	return out
}

// Reset discards all buffered bytes.
func (b *Buffer) Reset() {
	b.head = 0
	b.tail = 0
	b.count = 0
}

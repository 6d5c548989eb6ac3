package cdev

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tinyrange/chardev/internal/ring"
	"github.com/tinyrange/chardev/internal/waitq"
)

// ChannelStats counts traffic through a channel.
type ChannelStats struct {
	BytesRead    uint64
	BytesWritten uint64
	EventBytes   uint64
	Overruns     uint64
	ReaderWakes  uint64
	WriterWakes  uint64
}

// Channel is the buffered data path of a device: one ring buffer, a
// queue of blocked readers, a queue of blocked writers, and a single
// mutex guarding all three. Any number of goroutines may read and write
// concurrently; each call is atomic with respect to the buffer indices
// and every byte is delivered to exactly one reader.
type Channel struct {
	name string
	log  *slog.Logger

	mu      sync.Mutex
	buf     *ring.Buffer
	readers *waitq.Queue
	writers *waitq.Queue
	closed  bool
	stats   ChannelStats
}

// NewChannel creates a channel buffering up to capacity bytes.
func NewChannel(name string, capacity int, log *slog.Logger) (*Channel, error) {
	buf, err := ring.New(capacity)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	c := &Channel{name: name, log: log, buf: buf}
	c.readers = waitq.New(&c.mu)
	c.writers = waitq.New(&c.mu)
	return c, nil
}

// Name returns the channel's device name.
func (c *Channel) Name() string {
	return c.name
}

// Capacity returns the ring buffer capacity.
func (c *Channel) Capacity() int {
	return c.buf.Capacity()
}

// Read returns between 1 and max buffered bytes, in arrival order.
//
// With an empty buffer a non-blocking read fails with ErrWouldBlock;
// a blocking read suspends until data arrives, the channel closes
// (ErrClosed), or ctx fires (ErrInterrupted, with nothing consumed).
// After Close, buffered data remains readable until drained.
func (c *Channel) Read(ctx context.Context, max int, nonBlocking bool) ([]byte, error) {
	if max <= 0 {
		return nil, fmt.Errorf("%w: read size %d", ErrInvalidArgument, max)
	}

	c.mu.Lock()
	for c.buf.AvailableToRead() == 0 {
		if c.closed {
			c.mu.Unlock()
			return nil, ErrClosed
		}
		if nonBlocking {
			c.mu.Unlock()
			return nil, ErrWouldBlock
		}
		res := c.readers.WaitUntil(ctx, func() bool {
			return c.buf.AvailableToRead() > 0 || c.closed
		}, 0)
		if res == waitq.Interrupted {
			c.mu.Unlock()
			return nil, ErrInterrupted
		}
	}

	data := c.buf.Consume(max)
	c.stats.BytesRead += uint64(len(data))
	c.stats.WriterWakes++
	c.mu.Unlock()

	// Space was freed, so one blocked writer can make progress.
	c.writers.WakeOne()
	return data, nil
}

// Write appends p to the buffer and returns the number of bytes taken.
//
// With a full buffer a non-blocking write fails with ErrWouldBlock; a
// blocking write suspends until space frees up. Once any space exists it
// appends what fits, so short writes happen and the caller resubmits the
// remainder.
func (c *Channel) Write(ctx context.Context, p []byte, nonBlocking bool) (int, error) {
	if len(p) == 0 {
		return 0, fmt.Errorf("%w: empty write", ErrInvalidArgument)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, ErrClosed
	}
	for c.buf.AvailableToWrite() == 0 {
		if nonBlocking {
			c.mu.Unlock()
			return 0, ErrWouldBlock
		}
		res := c.writers.WaitUntil(ctx, func() bool {
			return c.buf.AvailableToWrite() > 0 || c.closed
		}, 0)
		if res == waitq.Interrupted {
			c.mu.Unlock()
			return 0, ErrInterrupted
		}
		if c.closed {
			c.mu.Unlock()
			return 0, ErrClosed
		}
	}

	n := c.buf.Append(p)
	c.stats.BytesWritten += uint64(n)
	c.stats.ReaderWakes++
	c.mu.Unlock()

	c.readers.WakeOne()
	return n, nil
}

// OnEventData is the producer entry point: the event source appends data
// and wakes a reader in one critical section. It returns the number of
// bytes accepted; what does not fit is dropped and counted rather than
// blocking the producer.
func (c *Channel) OnEventData(p []byte) int {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0
	}
	n := c.buf.Append(p)
	c.stats.EventBytes += uint64(n)
	if n < len(p) {
		c.stats.Overruns += uint64(len(p) - n)
	}
	if n > 0 {
		c.stats.ReaderWakes++
		c.readers.WakeOne()
	}
	c.mu.Unlock()

	if n < len(p) {
		c.log.Warn("channel overrun", "device", c.name, "dropped", len(p)-n)
	}
	return n
}

// Flush discards everything buffered and releases writers blocked on a
// full buffer.
func (c *Channel) Flush() {
	c.mu.Lock()
	c.buf.Reset()
	c.mu.Unlock()
	c.writers.WakeAll()
}

// Close marks the channel closed and wakes every waiter. Blocked writers
// fail with ErrClosed; readers drain what is buffered, then get
// ErrClosed.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.closed = true
	c.mu.Unlock()

	c.readers.WakeAll()
	c.writers.WakeAll()
	return nil
}

// Closed reports whether Close was called.
func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Buffered returns the number of bytes waiting to be read.
func (c *Channel) Buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.AvailableToRead()
}

// Free returns the number of bytes the buffer can still take.
func (c *Channel) Free() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.AvailableToWrite()
}

// Stats returns a snapshot of the traffic counters.
func (c *Channel) Stats() ChannelStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// BlockedReaders returns how many readers are suspended.
func (c *Channel) BlockedReaders() int {
	return c.readers.Len()
}

// BlockedWriters returns how many writers are suspended.
func (c *Channel) BlockedWriters() int {
	return c.writers.Len()
}
